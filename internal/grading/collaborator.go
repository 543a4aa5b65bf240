package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-arena/internal/ai"
	"github.com/p-n-ai/pai-arena/internal/content"
)

// ErrAIGradingUnavailable marks every AI collaborator failure. It never reaches users:
// the engine falls back to the heuristic grader.
var ErrAIGradingUnavailable = errors.New("ai grading unavailable")

// Result is the outcome of one AI grading attempt: a verdict or a failure reason.
type Result struct {
	Verdict Verdict
	Tokens  int
	Err     error
}

// Ok wraps a successful AI verdict.
func Ok(v Verdict, tokens int) Result {
	v.Source = SourceAI
	return Result{Verdict: v, Tokens: tokens}
}

// Fail wraps a failure reason.
func Fail(reason error) Result {
	return Result{Err: fmt.Errorf("%w: %w", ErrAIGradingUnavailable, reason)}
}

// OK reports whether the attempt produced a verdict.
func (r Result) OK() bool {
	return r.Err == nil
}

// Collaborator grades a submission with an external service.
type Collaborator interface {
	Grade(ctx context.Context, code string, item content.Item) Result
}

// Completer is the slice of the AI gateway the collaborator needs.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

const verdictSchema = `{
  "type": "object",
  "required": ["isCorrect", "feedback", "testsPassed"],
  "properties": {
    "isCorrect":   {"type": "boolean"},
    "feedback":    {"type": "string", "minLength": 1},
    "testsPassed": {"type": "integer", "minimum": 0},
    "hints":       {"type": ["string", "null"]}
  }
}`

const graderSystemPrompt = "You are an encouraging coding instructor who provides constructive feedback."

// AICollaborator grades through an LLM and accepts only responses matching the verdict schema.
type AICollaborator struct {
	completer Completer
	schema    *gojsonschema.Schema
	model     string
}

// NewAICollaborator creates a collaborator backed by completer (usually an *ai.Router).
func NewAICollaborator(completer Completer, model string) (*AICollaborator, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is nil")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(verdictSchema))
	if err != nil {
		return nil, fmt.Errorf("compile verdict schema: %w", err)
	}
	return &AICollaborator{completer: completer, schema: schema, model: model}, nil
}

type aiVerdict struct {
	IsCorrect   bool    `json:"isCorrect"`
	Feedback    string  `json:"feedback"`
	TestsPassed float64 `json:"testsPassed"`
	Hints       *string `json:"hints"`
}

// Grade asks the model for a verdict. Any deviation from the expected shape is a failure.
func (c *AICollaborator) Grade(ctx context.Context, code string, item content.Item) Result {
	total := item.TotalTests()

	resp, err := c.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: graderSystemPrompt},
			{Role: "user", Content: buildGradingPrompt(code, item, total)},
		},
		Model:       c.model,
		MaxTokens:   400,
		Temperature: 0.6,
		JSONMode:    true,
		Task:        ai.TaskGrading,
	})
	if err != nil {
		return Fail(err)
	}

	payload := stripCodeFences(resp.Content)
	check, err := c.schema.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return Fail(fmt.Errorf("parse ai verdict: %w", err))
	}
	if !check.Valid() {
		reasons := make([]string, 0, len(check.Errors()))
		for _, e := range check.Errors() {
			reasons = append(reasons, e.String())
		}
		return Fail(fmt.Errorf("ai verdict does not match schema: %s", strings.Join(reasons, "; ")))
	}

	var raw aiVerdict
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Fail(fmt.Errorf("decode ai verdict: %w", err))
	}

	passed := int(raw.TestsPassed)
	if passed > total {
		return Fail(fmt.Errorf("ai verdict testsPassed %d exceeds %d tests", passed, total))
	}
	if strings.TrimSpace(raw.Feedback) == "" {
		return Fail(fmt.Errorf("ai verdict feedback is blank"))
	}

	v := Verdict{
		IsCorrect:   raw.IsCorrect,
		TestsPassed: passed,
		TotalTests:  total,
		Feedback:    strings.TrimSpace(raw.Feedback),
	}
	if raw.Hints != nil && !raw.IsCorrect {
		v.Hint = strings.TrimSpace(*raw.Hints)
	}
	return Ok(v, resp.TotalTokens())
}

func buildGradingPrompt(code string, item content.Item, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Challenge: %s\n", item.Title)
	fmt.Fprintf(&b, "Description: %s\n", item.Description)
	fmt.Fprintf(&b, "Language: %s\n", item.Language)
	fmt.Fprintf(&b, "Expected Solution:\n%s\n\n", item.ReferenceSolution)
	fmt.Fprintf(&b, "Student's Code:\n%s\n\n", code)
	fmt.Fprintf(&b, `Evaluate the student's code and respond with a JSON object only:
{
  "isCorrect": true or false,
  "feedback": "encouraging explanation of what works and what is missing, without giving the solution away",
  "testsPassed": integer from 0 to %d,
  "hints": "one specific hint if the solution is wrong"
}`, total)
	return b.String()
}

// stripCodeFences removes the markdown ```json fence some models wrap around JSON.
// Only the outer fence is trimmed; backticks inside the payload are kept.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
