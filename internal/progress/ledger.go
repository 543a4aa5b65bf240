package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-arena/internal/content"
	"github.com/p-n-ai/pai-arena/internal/grading"
)

// CompletionResult is the outcome of applying a completion.
type CompletionResult struct {
	XPEarned           int  `json:"xpEarned"`
	AlreadyCompleted   bool `json:"alreadyCompleted"`
	XPTotal            int  `json:"xpTotal"`
	Level              int  `json:"level"`
	LeveledUp          bool `json:"leveledUp,omitempty"`
	CurrentLessonOrder int  `json:"currentLessonOrder,omitempty"`
}

// QuizResult is the outcome of completing the onboarding quiz.
type QuizResult struct {
	XPEarned         int        `json:"xpEarned"`
	AlreadyCompleted bool       `json:"alreadyCompleted"`
	XPTotal          int        `json:"xpTotal"`
	Level            int        `json:"level"`
	LeveledUp        bool       `json:"leveledUp,omitempty"`
	Score            int        `json:"score"`
	SkillLevel       SkillLevel `json:"skillLevel"`
}

// CompletionRequest is a direct completion of a catalog item.
type CompletionRequest struct {
	UserID string
	ItemID string
	Kind   content.Kind
}

// ActivityResult is the streak state after a recorded activity.
type ActivityResult struct {
	DailyStreak    int       `json:"dailyStreak"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// LedgerConfig holds dependencies for the ledger.
type LedgerConfig struct {
	Store        Store
	Catalog      content.Catalog
	Events       EventLogger // default: NopEventLogger
	Leaderboard  Leaderboard // optional
	LevelDivisor int         // default: DefaultLevelDivisor
	Now          func() time.Time
}

// Ledger is the only writer of learner progress.
type Ledger struct {
	store        Store
	catalog      content.Catalog
	events       EventLogger
	leaderboard  Leaderboard
	levelDivisor int
	now          func() time.Time
}

// NewLedger creates a progression ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	divisor := cfg.LevelDivisor
	if divisor <= 0 {
		divisor = DefaultLevelDivisor
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		events:       events,
		leaderboard:  cfg.Leaderboard,
		levelDivisor: divisor,
		now:          now,
	}, nil
}

// Level returns the level for xp under this ledger's divisor.
func (l *Ledger) Level(xp int) int {
	return LevelFor(xp, l.levelDivisor)
}

// CreateLearner creates the zeroed progress record for a new account.
func (l *Ledger) CreateLearner(ctx context.Context, userID string, at time.Time) (LearnerProgress, error) {
	if userID == "" {
		return LearnerProgress{}, fmt.Errorf("user_id is required")
	}
	if at.IsZero() {
		at = l.now()
	}
	p := NewLearnerProgress(userID, at)

	ctx = context.WithoutCancel(ctx)
	if err := l.store.Create(ctx, p); err != nil {
		return LearnerProgress{}, err
	}

	l.publish(Event{UserID: userID, EventType: EventLearnerCreated, CreatedAt: at})
	return p, nil
}

// Progress returns the stored record for userID.
func (l *Ledger) Progress(ctx context.Context, userID string) (LearnerProgress, error) {
	return l.store.Get(ctx, userID)
}

// ApplyCompletion credits item to userID when verdict is correct and the item is not
// yet completed. Anything else leaves progress untouched and earns 0 XP.
func (l *Ledger) ApplyCompletion(ctx context.Context, userID string, item content.Item, verdict grading.Verdict) (CompletionResult, error) {
	if err := item.Validate(); err != nil {
		return CompletionResult{}, fmt.Errorf("apply completion: %w", err)
	}
	if !verdict.IsCorrect {
		p, err := l.store.Get(ctx, userID)
		if err != nil {
			return CompletionResult{}, err
		}
		return l.result(p, item, 0, p.HasCompleted(item.Kind, item.ID)), nil
	}
	return l.credit(ctx, userID, item)
}

// Complete resolves a catalog item and credits it as a direct completion event.
func (l *Ledger) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	item, err := l.catalog.Get(req.Kind, req.ItemID)
	if err != nil {
		return CompletionResult{}, err
	}
	return l.credit(ctx, req.UserID, item)
}

func (l *Ledger) credit(ctx context.Context, userID string, item content.Item) (CompletionResult, error) {
	var prevXP int
	var credited bool

	p, err := l.store.Update(context.WithoutCancel(ctx), userID, func(p *LearnerProgress) (bool, error) {
		credited = false
		if p.HasCompleted(item.Kind, item.ID) {
			return false, nil
		}
		prevXP = p.XPTotal
		p.markCompleted(item.Kind, item.ID)
		p.XPTotal += item.XPReward
		p.WeeklyXP += item.XPReward
		if item.Kind == content.KindLesson {
			p.CurrentLessonOrder = max(p.CurrentLessonOrder, item.Order+1)
		}
		credited = true
		return true, nil
	})
	if errors.Is(err, ErrCompletionConflict) {
		slog.Info("completion already recorded", "user_id", userID, "item_id", item.ID)
		p, err = l.store.Get(context.WithoutCancel(ctx), userID)
		if err != nil {
			return CompletionResult{}, err
		}
		return l.result(p, item, 0, true), nil
	}
	if err != nil {
		return CompletionResult{}, fmt.Errorf("credit %s %s: %w", item.Kind, item.ID, err)
	}
	if !credited {
		return l.result(p, item, 0, true), nil
	}

	res := l.result(p, item, item.XPReward, false)
	res.LeveledUp = l.Level(p.XPTotal) > l.Level(prevXP)
	l.afterCredit(ctx, p, item, res)
	return res, nil
}

func (l *Ledger) afterCredit(ctx context.Context, p LearnerProgress, item content.Item, res CompletionResult) {
	at := l.now()

	slog.Info("item completed",
		"user_id", p.UserID,
		"item_id", item.ID,
		"kind", string(item.Kind),
		"xp_earned", res.XPEarned,
		"xp_total", res.XPTotal,
	)

	l.publish(Event{
		UserID:    p.UserID,
		EventType: EventItemCompleted,
		CreatedAt: at,
		Data: map[string]any{
			"kind":      string(item.Kind),
			"item_id":   item.ID,
			"xp_earned": res.XPEarned,
			"xp_total":  res.XPTotal,
		},
	})
	l.xpChanged(ctx, p.UserID, res.Level, res.LeveledUp, at)
}

// xpChanged publishes a level-up and drops cached rankings after a committed XP credit.
func (l *Ledger) xpChanged(ctx context.Context, userID string, level int, leveledUp bool, at time.Time) {
	if leveledUp {
		l.publish(Event{
			UserID:    userID,
			EventType: EventLevelUp,
			CreatedAt: at,
			Data:      map[string]any{"level": level},
		})
	}

	if l.leaderboard != nil {
		if err := l.leaderboard.Invalidate(context.WithoutCancel(ctx), userID); err != nil {
			slog.Warn("failed to invalidate leaderboard", "user_id", userID, "error", err)
		}
	}
}

// CompleteOnboardingQuiz records the onboarding quiz score and skill level and
// awards OnboardingQuizXP the first time only. Later calls return the stored outcome.
func (l *Ledger) CompleteOnboardingQuiz(ctx context.Context, userID string, score int) (QuizResult, error) {
	if score < 0 || score > 100 {
		return QuizResult{}, fmt.Errorf("score %d: %w", score, ErrInvalidQuizScore)
	}

	var prevXP int
	var credited bool
	p, err := l.store.Update(context.WithoutCancel(ctx), userID, func(p *LearnerProgress) (bool, error) {
		credited = false
		if p.OnboardingQuiz.Finished {
			return false, nil
		}
		prevXP = p.XPTotal
		p.OnboardingQuiz = OnboardingQuiz{
			Finished:   true,
			Score:      score,
			SkillLevel: SkillLevelFor(score),
		}
		p.XPTotal += OnboardingQuizXP
		credited = true
		return true, nil
	})
	if err != nil {
		return QuizResult{}, fmt.Errorf("complete onboarding quiz: %w", err)
	}

	res := QuizResult{
		AlreadyCompleted: !credited,
		XPTotal:          p.XPTotal,
		Level:            l.Level(p.XPTotal),
		Score:            p.OnboardingQuiz.Score,
		SkillLevel:       p.OnboardingQuiz.SkillLevel,
	}
	if !credited {
		return res, nil
	}

	res.XPEarned = OnboardingQuizXP
	res.LeveledUp = res.Level > l.Level(prevXP)

	at := l.now()
	slog.Info("onboarding quiz completed",
		"user_id", userID,
		"score", score,
		"skill_level", string(res.SkillLevel),
	)
	l.publish(Event{
		UserID:    userID,
		EventType: EventQuizCompleted,
		CreatedAt: at,
		Data: map[string]any{
			"score":       score,
			"skill_level": string(res.SkillLevel),
			"xp_earned":   res.XPEarned,
			"xp_total":    res.XPTotal,
		},
	})
	l.xpChanged(ctx, userID, res.Level, res.LeveledUp, at)
	return res, nil
}

// RecordActivity applies a login at `at` to the learner's daily streak.
func (l *Ledger) RecordActivity(ctx context.Context, userID string, at time.Time) (ActivityResult, error) {
	if at.IsZero() {
		at = l.now()
	}

	var prevStreak int
	p, err := l.store.Update(context.WithoutCancel(ctx), userID, func(p *LearnerProgress) (bool, error) {
		prevStreak = p.DailyStreak
		p.DailyStreak = nextStreak(p.DailyStreak, p.LastActivityAt, at)
		p.LastActivityAt = at
		return true, nil
	})
	if err != nil {
		return ActivityResult{}, fmt.Errorf("record activity: %w", err)
	}

	if p.DailyStreak != prevStreak {
		l.publish(Event{
			UserID:    userID,
			EventType: EventStreakUpdated,
			CreatedAt: at,
			Data:      map[string]any{"daily_streak": p.DailyStreak},
		})
	}
	return ActivityResult{DailyStreak: p.DailyStreak, LastActivityAt: p.LastActivityAt}, nil
}

// Listing returns the catalog items of kind annotated for userID.
func (l *Ledger) Listing(ctx context.Context, userID string, kind content.Kind) ([]ListingEntry, error) {
	p, err := l.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildListing(p, l.catalog.List(kind)), nil
}

func (l *Ledger) result(p LearnerProgress, item content.Item, earned int, already bool) CompletionResult {
	res := CompletionResult{
		XPEarned:         earned,
		AlreadyCompleted: already,
		XPTotal:          p.XPTotal,
		Level:            l.Level(p.XPTotal),
	}
	if item.Kind == content.KindLesson {
		res.CurrentLessonOrder = p.CurrentLessonOrder
	}
	return res
}

func (l *Ledger) publish(e Event) {
	if err := l.events.LogEvent(e); err != nil {
		slog.Warn("failed to log progress event", "type", e.EventType, "user_id", e.UserID, "error", err)
	}
}
