package progress

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Board selects a leaderboard ranking.
type Board string

const (
	BoardGlobal Board = "global" // ranked by XPTotal
	BoardWeekly Board = "weekly" // ranked by WeeklyXP, which the weekly reset job zeroes
)

// ParseBoard converts a query value into a Board. Empty means global.
func ParseBoard(s string) (Board, error) {
	switch Board(strings.ToLower(strings.TrimSpace(s))) {
	case "", BoardGlobal:
		return BoardGlobal, nil
	case BoardWeekly:
		return BoardWeekly, nil
	default:
		return "", fmt.Errorf("unknown leaderboard filter %q", s)
	}
}

// Standing is one ranked leaderboard row. Rank starts at 1.
type Standing struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	XP     int    `json:"xp"`
}

// Ranker orders learners by their stored XP. MemoryStore and PostgresStore implement it.
type Ranker interface {
	Rank(ctx context.Context, board Board, n int) ([]Standing, error)
}

// Leaderboard serves XP rankings.
type Leaderboard interface {
	// Top returns at most n standings of board. n <= 0 means all.
	Top(ctx context.Context, board Board, n int) ([]Standing, error)
	// Invalidate is called after userID's XP changed.
	Invalidate(ctx context.Context, userID string) error
}

// rankStandings sorts by XP descending, then user id, trims to n and assigns ranks.
func rankStandings(out []Standing, n int) []Standing {
	slices.SortFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.XP, a.XP); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// StoreLeaderboard reads rankings straight from the progress store, so it always
// agrees with the stored XP totals.
type StoreLeaderboard struct {
	ranker Ranker
}

// NewStoreLeaderboard creates a leaderboard backed by ranker.
func NewStoreLeaderboard(ranker Ranker) *StoreLeaderboard {
	return &StoreLeaderboard{ranker: ranker}
}

func (l *StoreLeaderboard) Top(ctx context.Context, board Board, n int) ([]Standing, error) {
	return l.ranker.Rank(ctx, board, n)
}

func (l *StoreLeaderboard) Invalidate(context.Context, string) error {
	return nil
}

const defaultLeaderboardCacheTTL = 30 * time.Second

// RedisLeaderboard caches another leaderboard's standings in Redis hashes, one per
// board, keyed by the requested size. Any XP change drops both boards.
type RedisLeaderboard struct {
	source Leaderboard
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisLeaderboard caches source under keys starting with prefix.
func NewRedisLeaderboard(source Leaderboard, client redis.Cmdable, prefix string) *RedisLeaderboard {
	return &RedisLeaderboard{
		source: source,
		client: client,
		prefix: prefix,
		ttl:    defaultLeaderboardCacheTTL,
	}
}

func (l *RedisLeaderboard) key(board Board) string {
	return l.prefix + "leaderboard:" + string(board)
}

// Top serves cached standings, refilling from the source on a miss. Redis failures
// fall through to the source.
func (l *RedisLeaderboard) Top(ctx context.Context, board Board, n int) ([]Standing, error) {
	key, field := l.key(board), strconv.Itoa(n)

	data, err := l.client.HGet(ctx, key, field).Bytes()
	switch {
	case err == nil:
		var cached []Standing
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		slog.Warn("discarding corrupt leaderboard cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		slog.Warn("leaderboard cache read failed", "key", key, "error", err)
	}

	standings, err := l.source.Top(ctx, board, n)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(standings); err == nil {
		pipe := l.client.TxPipeline()
		pipe.HSet(ctx, key, field, data)
		pipe.Expire(ctx, key, l.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			slog.Warn("leaderboard cache write failed", "key", key, "error", err)
		}
	}
	return standings, nil
}

func (l *RedisLeaderboard) Invalidate(ctx context.Context, userID string) error {
	if err := l.client.Del(ctx, l.key(BoardGlobal), l.key(BoardWeekly)).Err(); err != nil {
		return fmt.Errorf("invalidate leaderboard for %s: %w", userID, err)
	}
	return l.source.Invalidate(ctx, userID)
}
