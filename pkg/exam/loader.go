package exam

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader defaults applied when the exam file omits a field.
const (
	DefaultTitle        = "Untitled Exam"
	DefaultDuration     = 4 * time.Hour
	DefaultPassingScore = 70
	DefaultWorkingDir   = "/home/vagrant/ansible"
	DefaultTaskPoints   = 1
)

type rawExam struct {
	ID            string             `yaml:"id"`
	Title         string             `yaml:"title"`
	Duration      *int               `yaml:"duration"` // seconds
	PassingScore  *float64           `yaml:"passing_score"`
	Hosts         map[string]rawHost `yaml:"hosts"`
	Tasks         []rawTask          `yaml:"tasks"`
	WorkingDir    string             `yaml:"working_dir"`
	SolutionsFile string             `yaml:"solutions_file"`
}

type rawHost struct {
	Hostname string   `yaml:"hostname"`
	IP       string   `yaml:"ip"`
	SSHUser  string   `yaml:"ssh_user"`
	Groups   []string `yaml:"groups"`
}

type rawTask struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Points      *float64   `yaml:"points"`
	Description string     `yaml:"description"`
	Checks      []rawCheck `yaml:"checks"`
}

type rawCheck struct {
	ID                   string    `yaml:"id"`
	Description          string    `yaml:"description"`
	Node                 string    `yaml:"node"`
	Command              string    `yaml:"command"`
	ExpectRC             yaml.Node `yaml:"expect_rc"`
	ExpectStdout         *string   `yaml:"expect_stdout"`
	ExpectStdoutContains *string   `yaml:"expect_stdout_contains"`
}

// ExamInfo describes an exam file found by DiscoverExams.
type ExamInfo struct {
	Path  string `json:"path"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// LoadExam reads a YAML exam file. The solutions file, when declared, is
// resolved relative to the exam file's directory.
func LoadExam(path string) (*Exam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exam %s: %w", path, err)
	}

	e, err := ParseExam(data, path)
	if err != nil {
		return nil, err
	}

	if e.SolutionsFile != "" && !filepath.IsAbs(e.SolutionsFile) {
		abs, err := filepath.Abs(filepath.Join(filepath.Dir(path), e.SolutionsFile))
		if err != nil {
			return nil, fmt.Errorf("resolve solutions file: %w", err)
		}
		e.SolutionsFile = abs
	}
	return e, nil
}

// ParseExam parses YAML exam data. source names the origin of the data; its
// stem becomes the exam id when the document does not set one.
func ParseExam(data []byte, source string) (*Exam, error) {
	var raw rawExam
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse exam: %w", err)
	}

	e := &Exam{
		ID:            raw.ID,
		Title:         raw.Title,
		Duration:      DefaultDuration,
		PassingScore:  DefaultPassingScore,
		Hosts:         make(map[string]Host, len(raw.Hosts)),
		WorkingDir:    raw.WorkingDir,
		SolutionsFile: raw.SolutionsFile,
	}
	if e.ID == "" {
		e.ID = stem(source)
	}
	if e.Title == "" {
		e.Title = DefaultTitle
	}
	if raw.Duration != nil {
		e.Duration = time.Duration(*raw.Duration) * time.Second
	}
	if raw.PassingScore != nil {
		e.PassingScore = *raw.PassingScore
	}
	if e.WorkingDir == "" {
		e.WorkingDir = DefaultWorkingDir
	}

	for name, rh := range raw.Hosts {
		h := Host{
			Name:     name,
			Hostname: rh.Hostname,
			IP:       rh.IP,
			User:     rh.SSHUser,
			Groups:   rh.Groups,
		}
		if h.Hostname == "" {
			h.Hostname = name
		}
		if h.User == "" {
			h.User = DefaultUser
		}
		e.Hosts[name] = h
	}

	for i, rt := range raw.Tasks {
		t := &Task{
			ID:          rt.ID,
			Title:       rt.Title,
			Points:      DefaultTaskPoints,
			Description: rt.Description,
			Checks:      make([]Check, 0, len(rt.Checks)),
		}
		if rt.Points != nil {
			t.Points = *rt.Points
		}
		for j, rc := range rt.Checks {
			c, err := rc.toCheck()
			if err != nil {
				return nil, fmt.Errorf("parse exam: tasks[%d].checks[%d]: %w", i, j, err)
			}
			t.Checks = append(t.Checks, c)
		}
		e.Tasks = append(e.Tasks, t)
	}

	e.InitResults()
	return e, nil
}

// toCheck applies the expect_rc default: absent means 0, explicit null
// disables the exit-code expectation.
func (rc rawCheck) toCheck() (Check, error) {
	c := Check{
		ID:                   rc.ID,
		Description:          rc.Description,
		Node:                 rc.Node,
		Command:              rc.Command,
		ExpectStdout:         rc.ExpectStdout,
		ExpectStdoutContains: rc.ExpectStdoutContains,
	}

	switch {
	case rc.ExpectRC.Kind == 0:
		zero := 0
		c.ExpectRC = &zero
	case rc.ExpectRC.ShortTag() == "!!null":
		c.ExpectRC = nil
	default:
		var rcv int
		if err := rc.ExpectRC.Decode(&rcv); err != nil {
			return Check{}, fmt.Errorf("expect_rc: %w", err)
		}
		c.ExpectRC = &rcv
	}
	return c, nil
}

// DiscoverExams lists the exam files in dir, sorted by path. Files that fail
// to parse are skipped.
func DiscoverExams(dir string) ([]ExamInfo, error) {
	var paths []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("discover exams: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	var infos []ExamInfo
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var head struct {
			ID    string `yaml:"id"`
			Title string `yaml:"title"`
		}
		if err := yaml.Unmarshal(data, &head); err != nil {
			continue
		}
		info := ExamInfo{Path: p, ID: head.ID, Title: head.Title}
		if info.ID == "" {
			info.ID = stem(p)
		}
		if info.Title == "" {
			info.Title = stem(p)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func stem(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
