// Package progress holds learner progression state and the ledger that mutates it.
package progress

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/p-n-ai/pai-arena/internal/content"
)

// DefaultLevelDivisor is the XP needed per level.
const DefaultLevelDivisor = 100

// LevelFor derives the level from total XP. Level is never stored.
func LevelFor(xp, divisor int) int {
	if divisor <= 0 {
		divisor = DefaultLevelDivisor
	}
	if xp < 0 {
		xp = 0
	}
	return xp/divisor + 1
}

// OnboardingQuizXP is awarded once, for finishing the onboarding quiz.
const OnboardingQuizXP = 50

// SkillLevel is the self-assessed starting level from the onboarding quiz.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

// SkillLevelFor maps a quiz score in [0,100] to a skill level.
func SkillLevelFor(score int) SkillLevel {
	switch {
	case score >= 80:
		return SkillAdvanced
	case score >= 50:
		return SkillIntermediate
	default:
		return SkillBeginner
	}
}

// OnboardingQuiz records the learner's onboarding quiz outcome.
type OnboardingQuiz struct {
	Finished   bool       `json:"finished"`
	Score      int        `json:"score"`
	SkillLevel SkillLevel `json:"skillLevel,omitempty"`
}

// IDSet is an unordered set of item ids.
type IDSet map[string]struct{}

// NewIDSet creates a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether it was new.
func (s IDSet) Add(id string) bool {
	if s.Has(id) {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// LearnerProgress is the persistent progression record of one learner.
type LearnerProgress struct {
	UserID              string    `json:"userId"`
	CompletedLessons    IDSet     `json:"completedLessons"`
	CompletedChallenges IDSet     `json:"completedChallenges"`
	XPTotal             int       `json:"xpTotal"`
	WeeklyXP            int       `json:"weeklyXp"`
	CurrentLessonOrder  int       `json:"currentLessonOrder"`
	DailyStreak         int       `json:"dailyStreak"`
	LastActivityAt      time.Time `json:"lastActivityAt"`
	CreatedAt           time.Time `json:"createdAt"`

	OnboardingQuiz OnboardingQuiz `json:"onboardingQuiz"`
}

// NewLearnerProgress returns the zeroed record created with an account.
func NewLearnerProgress(userID string, at time.Time) LearnerProgress {
	return LearnerProgress{
		UserID:              userID,
		CompletedLessons:    IDSet{},
		CompletedChallenges: IDSet{},
		CurrentLessonOrder:  1,
		LastActivityAt:      at,
		CreatedAt:           at,
	}
}

func (p LearnerProgress) boardXP(board Board) int {
	if board == BoardWeekly {
		return p.WeeklyXP
	}
	return p.XPTotal
}

// Clone returns a deep copy.
func (p LearnerProgress) Clone() LearnerProgress {
	p.CompletedLessons = p.CompletedLessons.Clone()
	p.CompletedChallenges = p.CompletedChallenges.Clone()
	return p
}

// HasCompleted reports whether the item of the given kind is in the completion sets.
func (p LearnerProgress) HasCompleted(kind content.Kind, id string) bool {
	switch kind {
	case content.KindLesson:
		return p.CompletedLessons.Has(id)
	case content.KindChallenge:
		return p.CompletedChallenges.Has(id)
	default:
		return false
	}
}

func (p *LearnerProgress) markCompleted(kind content.Kind, id string) bool {
	switch kind {
	case content.KindLesson:
		if p.CompletedLessons == nil {
			p.CompletedLessons = IDSet{}
		}
		return p.CompletedLessons.Add(id)
	case content.KindChallenge:
		if p.CompletedChallenges == nil {
			p.CompletedChallenges = IDSet{}
		}
		return p.CompletedChallenges.Add(id)
	default:
		return false
	}
}

// completion identifies one completed item.
type completion struct {
	Kind content.Kind
	ID   string
}

// newCompletions lists the completions present in after but not in before.
func newCompletions(before, after LearnerProgress) []completion {
	var out []completion
	for _, id := range after.CompletedLessons.Sorted() {
		if !before.CompletedLessons.Has(id) {
			out = append(out, completion{Kind: content.KindLesson, ID: id})
		}
	}
	for _, id := range after.CompletedChallenges.Sorted() {
		if !before.CompletedChallenges.Has(id) {
			out = append(out, completion{Kind: content.KindChallenge, ID: id})
		}
	}
	return out
}
