package grading

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/pai-arena/internal/ai"
	"github.com/p-n-ai/pai-arena/internal/content"
)

const defaultAITimeout = 5 * time.Second

const (
	emptySubmissionFeedback = "You haven't written any code yet. Write your solution in the editor, then submit it again."
	emptySubmissionHint     = "Start from the starter code and fill in the missing steps"
)

// Submission is one grading request.
type Submission struct {
	UserID      string
	Code        string
	Item        content.Item
	AIAvailable bool
}

// EngineConfig holds dependencies for the grading engine.
type EngineConfig struct {
	Collaborator Collaborator     // optional; nil means heuristic-only grading
	Heuristic    *HeuristicGrader // default: NewHeuristicGrader(nil)
	Budget       ai.BudgetChecker // optional per-user AI token budget
	AITimeout    time.Duration    // default 5s
}

// Engine grades submissions, preferring the AI collaborator and falling back to heuristics.
type Engine struct {
	collaborator Collaborator
	heuristic    *HeuristicGrader
	budget       ai.BudgetChecker
	aiTimeout    time.Duration
}

// NewEngine creates a new grading engine.
func NewEngine(cfg EngineConfig) *Engine {
	heuristic := cfg.Heuristic
	if heuristic == nil {
		heuristic = NewHeuristicGrader(nil)
	}
	timeout := cfg.AITimeout
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	return &Engine{
		collaborator: cfg.Collaborator,
		heuristic:    heuristic,
		budget:       cfg.Budget,
		aiTimeout:    timeout,
	}
}

// Grade always returns a complete verdict; AI failures are absorbed by the fallback.
func (e *Engine) Grade(ctx context.Context, sub Submission) Verdict {
	if strings.TrimSpace(sub.Code) == "" {
		total := sub.Item.TotalTests()
		return Verdict{
			TestsPassed: 0,
			TotalTests:  total,
			Feedback:    emptySubmissionFeedback,
			Hint:        emptySubmissionHint,
			Source:      SourceHeuristic,
		}
	}

	if e.shouldAskAI(ctx, sub) {
		res := e.askAI(ctx, sub)
		if res.OK() {
			e.recordUsage(ctx, sub.UserID, res.Tokens)
			return res.Verdict
		}
		slog.Info("AI grading unavailable, using heuristic grader",
			"item_id", sub.Item.ID,
			"user_id", sub.UserID,
			"reason", res.Err,
		)
	}

	return e.heuristic.Grade(sub.Code, sub.Item)
}

func (e *Engine) shouldAskAI(ctx context.Context, sub Submission) bool {
	if e.collaborator == nil || !sub.AIAvailable {
		return false
	}
	if e.budget == nil || sub.UserID == "" {
		return true
	}
	ok, err := e.budget.Check(ctx, sub.UserID)
	if err != nil {
		slog.Warn("AI budget check failed, skipping AI grading", "user_id", sub.UserID, "error", err)
		return false
	}
	if !ok {
		slog.Info("AI budget exhausted, using heuristic grader", "user_id", sub.UserID)
	}
	return ok
}

func (e *Engine) askAI(ctx context.Context, sub Submission) Result {
	ctx, cancel := context.WithTimeout(ctx, e.aiTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- e.collaborator.Grade(ctx, sub.Code, sub.Item)
	}()

	select {
	case res := <-done:
		if res.OK() && ctx.Err() != nil {
			return Fail(ctx.Err())
		}
		return res
	case <-ctx.Done():
		return Fail(ctx.Err())
	}
}

func (e *Engine) recordUsage(ctx context.Context, userID string, tokens int) {
	if e.budget == nil || userID == "" || tokens <= 0 {
		return
	}
	if err := e.budget.Record(ctx, userID, tokens); err != nil {
		slog.Warn("failed to record AI budget usage", "user_id", userID, "error", err)
	}
}
