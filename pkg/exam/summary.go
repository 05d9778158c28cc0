package exam

// Summary is a point-in-time copy of an exam's scoring state, safe to hand to
// encoders and other goroutines.
type Summary struct {
	ExamID       string        `json:"exam_id"`
	Title        string        `json:"title"`
	Earned       float64       `json:"earned"`
	Total        float64       `json:"total"`
	Score        float64       `json:"score"`
	PassingScore float64       `json:"passing_score"`
	Passed       bool          `json:"passed"`
	Tasks        []TaskSummary `json:"tasks"`
}

// TaskSummary is the scoring state of a single task.
type TaskSummary struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Status  TaskStatus    `json:"status"`
	Points  float64       `json:"points"`
	Earned  float64       `json:"earned"`
	Results []CheckResult `json:"results"`
}

// Summarize snapshots the exam under its read lock.
func Summarize(e *Exam) Summary {
	var s Summary
	e.View(func() {
		s = Summary{
			ExamID:       e.ID,
			Title:        e.Title,
			Earned:       e.EarnedPoints(),
			Total:        e.TotalPoints(),
			Score:        e.ScorePercent(),
			PassingScore: e.PassingScore,
			Passed:       e.Passed(),
			Tasks:        make([]TaskSummary, 0, len(e.Tasks)),
		}
		for _, t := range e.Tasks {
			ts := TaskSummary{
				ID:      t.ID,
				Title:   t.Title,
				Status:  t.Status(),
				Points:  t.Points,
				Earned:  t.EarnedPoints(),
				Results: make([]CheckResult, len(t.Results)),
			}
			for i, r := range t.Results {
				ts.Results[i] = *r
			}
			s.Tasks = append(s.Tasks, ts)
		}
	})
	return s
}

// HasErrors reports whether any check in the summary ended in error.
func (s Summary) HasErrors() bool {
	for _, t := range s.Tasks {
		for _, r := range t.Results {
			if r.Status == CheckError {
				return true
			}
		}
	}
	return false
}
