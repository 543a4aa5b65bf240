// Package content holds the gradable catalog: lessons and challenges loaded from YAML.
package content

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrItemNotFound is returned when a lesson or challenge id is unknown.
var ErrItemNotFound = errors.New("item not found")

// Kind tags an Item as a lesson or a challenge.
type Kind string

const (
	KindLesson    Kind = "lesson"
	KindChallenge Kind = "challenge"
)

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindLesson:
		return KindLesson, nil
	case KindChallenge:
		return KindChallenge, nil
	default:
		return "", fmt.Errorf("unknown item kind %q", s)
	}
}

// Difficulty of a gradable item.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func (d Difficulty) valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// defaultTotalTests is used when a challenge declares no test cases.
const defaultTotalTests = 2

// TestCase describes one check a challenge solution is expected to pass.
type TestCase struct {
	Description    string `yaml:"description" json:"description"`
	Input          string `yaml:"input" json:"input,omitempty"`
	ExpectedOutput string `yaml:"expected_output" json:"expectedOutput,omitempty"`
}

// Item is a lesson or challenge. Kind decides which fields are required.
type Item struct {
	Kind              Kind       `yaml:"kind" json:"kind"`
	ID                string     `yaml:"id" json:"id"`
	Title             string     `yaml:"title" json:"title"`
	Description       string     `yaml:"description" json:"description,omitempty"`
	Language          string     `yaml:"language" json:"language,omitempty"`
	ReferenceSolution string     `yaml:"reference_solution" json:"-"`
	Tags              []string   `yaml:"tags" json:"tags,omitempty"`
	Difficulty        Difficulty `yaml:"difficulty" json:"difficulty,omitempty"`
	XPReward          int        `yaml:"xp_reward" json:"xpReward"`
	Order             int        `yaml:"order" json:"order"`
	UnlockXPRequired  int        `yaml:"unlock_xp_required" json:"unlockXPRequired"`
	Tests             []TestCase `yaml:"tests" json:"-"`
}

// Validate checks the fields the grading and progression engine rely on.
func (it Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("id is required")
	}
	if it.Kind != KindLesson && it.Kind != KindChallenge {
		return fmt.Errorf("item %s: unknown kind %q", it.ID, it.Kind)
	}
	if it.XPReward <= 0 {
		return fmt.Errorf("item %s: xp_reward must be positive, got %d", it.ID, it.XPReward)
	}
	if it.UnlockXPRequired < 0 {
		return fmt.Errorf("item %s: unlock_xp_required must be non-negative, got %d", it.ID, it.UnlockXPRequired)
	}
	if it.Kind == KindChallenge {
		if strings.TrimSpace(it.ReferenceSolution) == "" {
			return fmt.Errorf("challenge %s: reference_solution is required", it.ID)
		}
		if !it.Difficulty.valid() {
			return fmt.Errorf("challenge %s: difficulty must be Easy, Medium or Hard, got %q", it.ID, it.Difficulty)
		}
	}
	if it.Kind == KindLesson && it.Difficulty != "" && !it.Difficulty.valid() {
		return fmt.Errorf("lesson %s: invalid difficulty %q", it.ID, it.Difficulty)
	}
	return nil
}

// HasTag reports whether the item carries the tag (case-insensitive).
func (it Item) HasTag(tag string) bool {
	return slices.ContainsFunc(it.Tags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

// TotalTests is the number of tests a full solution passes.
func (it Item) TotalTests() int {
	if len(it.Tests) == 0 {
		return defaultTotalTests
	}
	return len(it.Tests)
}
