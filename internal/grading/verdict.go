// Package grading produces correctness verdicts for submitted code, asking an AI
// collaborator first and falling back to a deterministic heuristic grader.
package grading

// Source records which grader produced a verdict.
type Source string

const (
	SourceAI        Source = "ai"
	SourceHeuristic Source = "heuristic"
)

// Verdict is the uniform output of grading a submission.
type Verdict struct {
	IsCorrect   bool   `json:"isCorrect"`
	TestsPassed int    `json:"testsPassed"`
	TotalTests  int    `json:"totalTests"`
	Feedback    string `json:"feedback"`
	Hint        string `json:"hint,omitempty"`
	Source      Source `json:"source"`
}
