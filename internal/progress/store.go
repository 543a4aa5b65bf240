package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLearnerNotFound is returned when no progress record exists for a user.
	ErrLearnerNotFound = errors.New("learner not found")
	// ErrLearnerExists is returned when creating a record that already exists.
	ErrLearnerExists = errors.New("learner already exists")
	// ErrCompletionConflict is returned when a completion row for the item is already stored.
	ErrCompletionConflict = errors.New("completion already recorded")
	// ErrInvalidQuizScore is returned for onboarding quiz scores outside [0,100].
	ErrInvalidQuizScore = errors.New("quiz score must be between 0 and 100")
)

// Mutation edits a progress record in place and reports whether anything changed.
// Returning changed=false or an error discards the edit.
type Mutation func(p *LearnerProgress) (changed bool, err error)

// Store persists learner progress.
//
// Update is the only write path for existing records: it reads the current record,
// applies m and commits the result as one atomic step per user.
type Store interface {
	Create(ctx context.Context, p LearnerProgress) error
	Get(ctx context.Context, userID string) (LearnerProgress, error)
	Update(ctx context.Context, userID string, m Mutation) (LearnerProgress, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	learners map[string]LearnerProgress
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		learners: make(map[string]LearnerProgress),
	}
}

func (s *MemoryStore) Create(_ context.Context, p LearnerProgress) error {
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.learners[p.UserID]; ok {
		return fmt.Errorf("create %s: %w", p.UserID, ErrLearnerExists)
	}
	s.learners[p.UserID] = p.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (LearnerProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.learners[userID]
	if !ok {
		return LearnerProgress{}, fmt.Errorf("get %s: %w", userID, ErrLearnerNotFound)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, userID string, m Mutation) (LearnerProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return LearnerProgress{}, err
	}

	current, ok := s.learners[userID]
	if !ok {
		return LearnerProgress{}, fmt.Errorf("update %s: %w", userID, ErrLearnerNotFound)
	}

	next := current.Clone()
	changed, err := m(&next)
	if err != nil {
		return current.Clone(), err
	}
	if !changed {
		return current.Clone(), nil
	}

	s.learners[userID] = next
	return next.Clone(), nil
}

// Rank orders all learners by XPTotal (global) or WeeklyXP (weekly).
func (s *MemoryStore) Rank(ctx context.Context, board Board, n int) ([]Standing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Standing, 0, len(s.learners))
	for _, p := range s.learners {
		out = append(out, Standing{UserID: p.UserID, XP: p.boardXP(board)})
	}
	return rankStandings(out, n), nil
}

// Len returns the number of stored learners.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.learners)
}
