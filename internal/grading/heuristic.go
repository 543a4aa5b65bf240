package grading

import (
	"github.com/p-n-ai/pai-arena/internal/content"
)

const (
	correctThreshold = 0.7
	partialThreshold = 0.4
)

const (
	correctFeedback = "Great job! Your solution works correctly. You've successfully solved this challenge. Keep up the excellent work!"
	partialFeedback = "You're on the right track! Your solution is partially correct, but there are some issues. Double-check your logic, syntax, and make sure you're handling all the requirements. You're close!"
	partialHint     = "Review your code carefully - you're almost there!"
	genericFeedback = "Your solution isn't quite right yet. Take another look at the challenge description and the examples provided. Make sure you understand what the problem is asking for, then try breaking it down into smaller steps."
	genericHint     = "Go back to the lesson content and examples to better understand the concept"
)

// HeuristicGrader grades without the AI collaborator, from similarity to the
// reference solution and a tag-keyed keyword table.
type HeuristicGrader struct {
	rules []KeywordRule
}

// NewHeuristicGrader creates a grader using rules, or DefaultKeywordRules when rules is empty.
func NewHeuristicGrader(rules []KeywordRule) *HeuristicGrader {
	if len(rules) == 0 {
		rules = DefaultKeywordRules()
	}
	return &HeuristicGrader{rules: rules}
}

// Grade returns a verdict for code submitted against item. The first matching rule wins.
func (g *HeuristicGrader) Grade(code string, item content.Item) Verdict {
	total := item.TotalTests()
	score := Similarity(code, item.ReferenceSolution)

	if score > correctThreshold {
		return Verdict{
			IsCorrect:   true,
			TestsPassed: total,
			TotalTests:  total,
			Feedback:    correctFeedback,
			Source:      SourceHeuristic,
		}
	}

	lowered := lowerCode(code)
	for _, rule := range g.rules {
		if !item.HasTag(rule.Tag) || rule.satisfiedBy(lowered) {
			continue
		}
		return Verdict{
			TestsPassed: 0,
			TotalTests:  total,
			Feedback:    rule.Feedback,
			Hint:        rule.Hint,
			Source:      SourceHeuristic,
		}
	}

	if score > partialThreshold {
		return Verdict{
			TestsPassed: min(1, total),
			TotalTests:  total,
			Feedback:    partialFeedback,
			Hint:        partialHint,
			Source:      SourceHeuristic,
		}
	}

	return Verdict{
		TestsPassed: 0,
		TotalTests:  total,
		Feedback:    genericFeedback,
		Hint:        genericHint,
		Source:      SourceHeuristic,
	}
}
