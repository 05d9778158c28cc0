// Package status serves a read-only HTTP view of a running exam session.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/history"
)

// HistoryLister returns recorded runs for an exam.
type HistoryLister interface {
	List(examID string) ([]history.Run, error)
}

// Server is the status HTTP + server-sent events server.
type Server struct {
	exam      *exam.Exam
	bus       events.EventBus
	history   HistoryLister
	log       *zap.Logger
	mux       *http.ServeMux
	clients   map[*client]bool
	clientsMu sync.Mutex
	startTime time.Time
}

// client represents a connected event stream.
type client struct {
	send chan []byte
}

// New creates a status server. history may be nil when recording is off.
func New(e *exam.Exam, bus events.EventBus, hist HistoryLister, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		exam:      e,
		bus:       bus,
		history:   hist,
		log:       log,
		mux:       http.NewServeMux(),
		clients:   make(map[*client]bool),
		startTime: time.Now(),
	}

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/tasks", s.handleTasks)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on port until ctx is canceled.
func (s *Server) Serve(ctx context.Context, port int) error {
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)
	go s.broadcastEvents(ch)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.log.Info("status server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) broadcastEvents(ch <-chan events.Event) {
	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}

		s.clientsMu.Lock()
		for c := range s.clients {
			select {
			case c.send <- data:
			default:
				// Client is slow, drop the event.
			}
		}
		s.clientsMu.Unlock()
	}
}

// handleEvents streams bus events as server-sent events, starting with the
// retained history.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	c := &client{send: make(chan []byte, 64)}
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
	}()

	for _, ev := range s.bus.History(time.Time{}) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sum := exam.Summarize(s.exam)
	counts := make(map[exam.CheckStatus]int)
	for _, t := range sum.Tasks {
		for _, res := range t.Results {
			counts[res.Status]++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
		"exam_id":       sum.ExamID,
		"title":         sum.Title,
		"earned":        sum.Earned,
		"total":         sum.Total,
		"score":         sum.Score,
		"passing_score": sum.PassingScore,
		"passed":        sum.Passed,
		"checks":        counts,
		"events":        len(s.bus.History(time.Time{})),
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, exam.Summarize(s.exam).Tasks)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, t := range exam.Summarize(s.exam).Tasks {
		if t.ID == id {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown task " + id})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []history.Run{})
		return
	}
	runs, err := s.history.List(s.exam.ID)
	if err != nil {
		s.log.Warn("list history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
