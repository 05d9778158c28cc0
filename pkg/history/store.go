// Package history persists grading outcomes across exam sessions.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Run scopes.
const (
	ScopeTask = "task"
	ScopeAll  = "all"
)

// ErrNotFound is returned when an exam has no recorded runs.
var ErrNotFound = errors.New("no runs recorded")

// CheckRecord is the stored outcome of one check.
type CheckRecord struct {
	TaskID   string `json:"task_id"`
	CheckID  string `json:"check_id"`
	Status   string `json:"status"`
	ActualRC *int   `json:"actual_rc,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Run is one VerifyTask or VerifyAll invocation.
type Run struct {
	ID         string        `json:"id"`
	ExamID     string        `json:"exam_id"`
	Scope      string        `json:"scope"`
	TaskID     string        `json:"task_id,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Earned     float64       `json:"earned"`
	Total      float64       `json:"total"`
	Score      float64       `json:"score"`
	Checks     []CheckRecord `json:"checks"`
}

// Recorder accepts finished runs.
type Recorder interface {
	Record(run Run) error
}

// Store is a bbolt-backed run history with one bucket per exam.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	return &Store{db: db}, nil
}

// runKey sorts by start time, then by id for runs started in the same
// nanosecond.
func runKey(r Run) []byte {
	return []byte(r.StartedAt.UTC().Format("20060102T150405.000000000Z") + "/" + r.ID)
}

// Record stores run, assigning an id when it has none.
func (s *Store) Record(run Run) error {
	if run.ExamID == "" {
		return fmt.Errorf("record run: exam id is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(run.ExamID))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", run.ExamID, err)
		}
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		return b.Put(runKey(run), data)
	})
}

// List returns every run of examID, oldest first.
func (s *Store) List(examID string) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []Run
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(examID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", string(k), err)
			}
			runs = append(runs, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Latest returns the most recent run of examID.
func (s *Store) Latest(examID string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var run Run
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(examID))
		if b == nil {
			return ErrNotFound
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &run)
	})
	if err != nil {
		return Run{}, fmt.Errorf("latest run for %s: %w", examID, err)
	}
	return run, nil
}

// Exams lists the exam ids with recorded runs.
func (s *Store) Exams() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			ids = append(ids, string(name))
			return nil
		})
	})
	return ids, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
