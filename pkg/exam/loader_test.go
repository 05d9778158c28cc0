package exam

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const sampleExam = `
id: rhce-1
title: RHCE Practice 1
duration: 7200
passing_score: 75
working_dir: /home/vagrant/work
solutions_file: solutions.md
hosts:
  control:
    ip: 192.168.56.10
  node1:
    hostname: node1.lab
    ip: 192.168.56.11
    ssh_user: admin
    groups: [web, prod]
tasks:
  - id: "1"
    title: Install httpd
    points: 10
    description: Install and start httpd on node1.
    checks:
      - id: pkg
        description: httpd installed
        node: node1
        command: rpm -q httpd
      - id: active
        description: httpd running
        node: node1
        command: systemctl is-active httpd
        expect_stdout: active
      - id: motd
        description: motd mentions lab
        node: node1
        command: cat /etc/motd; exit 3
        expect_rc: null
        expect_stdout_contains: lab
  - id: "2"
    title: Inventory
    description: Write an inventory.
    checks:
      - id: inv
        description: inventory exists
        node: control
        command: test -f inventory
        expect_rc: 0
`

func TestParseExam(t *testing.T) {
	e, err := ParseExam([]byte(sampleExam), "exams/rhce-1.yml")
	if err != nil {
		t.Fatalf("ParseExam: %v", err)
	}

	if e.ID != "rhce-1" || e.Title != "RHCE Practice 1" {
		t.Errorf("id/title = %q/%q", e.ID, e.Title)
	}
	if e.Duration != 2*time.Hour {
		t.Errorf("Duration = %v, want 2h", e.Duration)
	}
	if e.PassingScore != 75 {
		t.Errorf("PassingScore = %v, want 75", e.PassingScore)
	}
	if e.WorkingDir != "/home/vagrant/work" {
		t.Errorf("WorkingDir = %q", e.WorkingDir)
	}

	wantHosts := map[string]Host{
		"control": {Name: "control", Hostname: "control", IP: "192.168.56.10", User: "vagrant"},
		"node1":   {Name: "node1", Hostname: "node1.lab", IP: "192.168.56.11", User: "admin", Groups: []string{"web", "prod"}},
	}
	if diff := cmp.Diff(wantHosts, e.Hosts); diff != "" {
		t.Errorf("hosts mismatch (-want +got):\n%s", diff)
	}

	if len(e.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(e.Tasks))
	}
	if e.Tasks[1].Points != DefaultTaskPoints {
		t.Errorf("default points = %v", e.Tasks[1].Points)
	}

	zero := 0
	active := "active"
	lab := "lab"
	wantChecks := []Check{
		{ID: "pkg", Description: "httpd installed", Node: "node1", Command: "rpm -q httpd", ExpectRC: &zero},
		{ID: "active", Description: "httpd running", Node: "node1", Command: "systemctl is-active httpd", ExpectRC: &zero, ExpectStdout: &active},
		{ID: "motd", Description: "motd mentions lab", Node: "node1", Command: "cat /etc/motd; exit 3", ExpectStdoutContains: &lab},
	}
	if diff := cmp.Diff(wantChecks, e.Tasks[0].Checks); diff != "" {
		t.Errorf("checks mismatch (-want +got):\n%s", diff)
	}

	for _, task := range e.Tasks {
		if len(task.Results) != len(task.Checks) {
			t.Errorf("task %s: results not initialised", task.ID)
		}
	}
}

func TestParseExamDefaults(t *testing.T) {
	e, err := ParseExam([]byte("tasks: []\n"), "/tmp/exams/minimal.yaml")
	if err != nil {
		t.Fatalf("ParseExam: %v", err)
	}

	want := &Exam{
		ID:           "minimal",
		Title:        DefaultTitle,
		Duration:     DefaultDuration,
		PassingScore: DefaultPassingScore,
		Hosts:        map[string]Host{},
		WorkingDir:   DefaultWorkingDir,
	}
	if diff := cmp.Diff(want, e, cmpopts.IgnoreUnexported(Exam{})); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestParseExamInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "tasks: [unclosed"},
		{"bad expect_rc", "tasks:\n  - id: a\n    checks:\n      - id: c\n        expect_rc: zero\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseExam([]byte(tt.data), "x.yml"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadExamResolvesSolutions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rhce-1.yml")
	if err := os.WriteFile(path, []byte(sampleExam), 0644); err != nil {
		t.Fatal(err)
	}

	e, err := LoadExam(path)
	if err != nil {
		t.Fatalf("LoadExam: %v", err)
	}
	want := filepath.Join(dir, "solutions.md")
	if e.SolutionsFile != want {
		t.Errorf("SolutionsFile = %q, want %q", e.SolutionsFile, want)
	}
}

func TestLoadExamMissingFile(t *testing.T) {
	if _, err := LoadExam(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDiscoverExams(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.yml":    "id: second\ntitle: Second\n",
		"a.yaml":   "title: First\n",
		"bad.yml":  "id: [oops",
		"notes.md": "# not an exam",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := DiscoverExams(dir)
	if err != nil {
		t.Fatalf("DiscoverExams: %v", err)
	}

	want := []ExamInfo{
		{Path: filepath.Join(dir, "a.yaml"), ID: "a", Title: "First"},
		{Path: filepath.Join(dir, "b.yml"), ID: "second", Title: "Second"},
	}
	if diff := cmp.Diff(want, infos); diff != "" {
		t.Errorf("exams mismatch (-want +got):\n%s", diff)
	}
}
