package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetChecker checks and records AI token usage per user and day.
// A limit of zero means unlimited.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining today.
	Check(ctx context.Context, userID string) (bool, error)
	// Record adds token usage for the user.
	Record(ctx context.Context, userID string, tokens int) error
	// Usage returns today's usage and the limit for the user.
	Usage(ctx context.Context, userID string) (used int64, limit int64, err error)
}

// InMemoryBudget is an in-memory budget tracker for development and tests.
type InMemoryBudget struct {
	mu           sync.RWMutex
	defaultLimit int64
	limits       map[string]int64 // userID -> limit override
	usage        map[string]int64 // userID:day -> tokens used
	now          func() time.Time
}

// NewInMemoryBudget creates a tracker where every user gets defaultLimit tokens per day.
func NewInMemoryBudget(defaultLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		defaultLimit: defaultLimit,
		limits:       make(map[string]int64),
		usage:        make(map[string]int64),
		now:          time.Now,
	}
}

// SetBudget overrides the daily token limit for a user.
func (b *InMemoryBudget) SetBudget(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[userID] = tokens
}

func (b *InMemoryBudget) limitFor(userID string) int64 {
	if l, ok := b.limits[userID]; ok {
		return l
	}
	return b.defaultLimit
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limitFor(userID)
	if limit <= 0 {
		return true, nil
	}
	return b.usage[budgetKey(userID, b.now())] < limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[budgetKey(userID, b.now())] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[budgetKey(userID, b.now())], b.limitFor(userID), nil
}

const budgetKeyTTL = 48 * time.Hour

// RedisBudget tracks usage in Redis/Dragonfly with one counter per user and UTC day.
type RedisBudget struct {
	client redis.Cmdable
	prefix string
	limit  int64
	now    func() time.Time
}

// NewRedisBudget creates a Redis-backed tracker. Keys are namespaced under prefix.
func NewRedisBudget(client redis.Cmdable, prefix string, limit int64) *RedisBudget {
	return &RedisBudget{
		client: client,
		prefix: prefix,
		limit:  limit,
		now:    time.Now,
	}
}

func (b *RedisBudget) key(userID string) string {
	return b.prefix + "ai_budget:" + budgetKey(userID, b.now())
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, _, err := b.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	key := b.key(userID)
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, budgetKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record ai budget: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := b.client.Get(ctx, b.key(userID)).Int64()
	if err == redis.Nil {
		return 0, b.limit, nil
	}
	if err != nil {
		return 0, b.limit, fmt.Errorf("read ai budget: %w", err)
	}
	return used, b.limit, nil
}

func budgetKey(userID string, at time.Time) string {
	return userID + ":" + at.UTC().Format(time.DateOnly)
}
