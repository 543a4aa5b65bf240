package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-arena/internal/content"
)

const dbTimeout = 5 * time.Second

// querier is the read surface shared by the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore is a PostgreSQL-backed Store implementation.
// Completions live in their own table keyed by (user_id, item_kind, item_id).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, p LearnerProgress) error {
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	lastActivity := p.LastActivityAt
	if lastActivity.IsZero() {
		lastActivity = createdAt
	}
	cursor := max(p.CurrentLessonOrder, 1)

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO learner_progress
		   (user_id, xp_total, weekly_xp, current_lesson_order, daily_streak, last_activity_at,
		    quiz_finished, quiz_score, quiz_skill_level, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.UserID,
		p.XPTotal,
		p.WeeklyXP,
		cursor,
		p.DailyStreak,
		lastActivity,
		p.OnboardingQuiz.Finished,
		p.OnboardingQuiz.Score,
		string(p.OnboardingQuiz.SkillLevel),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("create learner: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("create %s: %w", p.UserID, ErrLearnerExists)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (LearnerProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return s.load(ctx, s.pool, userID, false)
}

// Update locks the learner row for the length of the transaction, so concurrent
// updates for one user are serialized. A completion row that already exists
// aborts the transaction with ErrCompletionConflict.
func (s *PostgresStore) Update(ctx context.Context, userID string, m Mutation) (LearnerProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return LearnerProgress{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.load(ctx, tx, userID, true)
	if err != nil {
		return LearnerProgress{}, err
	}

	next := current.Clone()
	changed, err := m(&next)
	if err != nil {
		return current, err
	}
	if !changed {
		return current, nil
	}

	for _, c := range newCompletions(current, next) {
		cmd, err := tx.Exec(ctx,
			`INSERT INTO completions (user_id, item_kind, item_id)
			 VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			userID,
			string(c.Kind),
			c.ID,
		)
		if err != nil {
			return current, fmt.Errorf("insert completion: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return current, fmt.Errorf("%s %s: %w", c.Kind, c.ID, ErrCompletionConflict)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE learner_progress
		 SET xp_total = $2,
		     weekly_xp = $3,
		     current_lesson_order = $4,
		     daily_streak = $5,
		     last_activity_at = $6,
		     quiz_finished = $7,
		     quiz_score = $8,
		     quiz_skill_level = $9,
		     updated_at = NOW()
		 WHERE user_id = $1`,
		userID,
		next.XPTotal,
		next.WeeklyXP,
		next.CurrentLessonOrder,
		next.DailyStreak,
		next.LastActivityAt,
		next.OnboardingQuiz.Finished,
		next.OnboardingQuiz.Score,
		string(next.OnboardingQuiz.SkillLevel),
	); err != nil {
		return current, fmt.Errorf("update learner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return current, fmt.Errorf("commit update: %w", err)
	}
	return next, nil
}

// Rank orders learners by xp_total (global) or weekly_xp (weekly).
func (s *PostgresStore) Rank(ctx context.Context, board Board, n int) ([]Standing, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT user_id, xp_total FROM learner_progress
		 ORDER BY xp_total DESC, user_id ASC
		 LIMIT $1`
	if board == BoardWeekly {
		query = `SELECT user_id, weekly_xp FROM learner_progress
		 ORDER BY weekly_xp DESC, user_id ASC
		 LIMIT $1`
	}
	var limit any
	if n > 0 {
		limit = n
	}

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", board, err)
	}
	defer rows.Close()

	var out []Standing
	for rows.Next() {
		var st Standing
		if err := rows.Scan(&st.UserID, &st.XP); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		st.Rank = len(out) + 1
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate standings: %w", err)
	}
	if out == nil {
		out = []Standing{}
	}
	return out, nil
}

func (s *PostgresStore) load(ctx context.Context, q querier, userID string, forUpdate bool) (LearnerProgress, error) {
	query := `SELECT user_id, xp_total, weekly_xp, current_lesson_order, daily_streak, last_activity_at,
		        quiz_finished, quiz_score, quiz_skill_level, created_at
		 FROM learner_progress
		 WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p LearnerProgress
	var skill string
	err := q.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.XPTotal,
		&p.WeeklyXP,
		&p.CurrentLessonOrder,
		&p.DailyStreak,
		&p.LastActivityAt,
		&p.OnboardingQuiz.Finished,
		&p.OnboardingQuiz.Score,
		&skill,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LearnerProgress{}, fmt.Errorf("get %s: %w", userID, ErrLearnerNotFound)
		}
		return LearnerProgress{}, fmt.Errorf("get learner: %w", err)
	}
	p.OnboardingQuiz.SkillLevel = SkillLevel(skill)

	rows, err := q.Query(ctx,
		`SELECT item_kind, item_id FROM completions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return LearnerProgress{}, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	p.CompletedLessons = IDSet{}
	p.CompletedChallenges = IDSet{}
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			return LearnerProgress{}, fmt.Errorf("scan completion: %w", err)
		}
		p.markCompleted(content.Kind(kind), id)
	}
	if err := rows.Err(); err != nil {
		return LearnerProgress{}, fmt.Errorf("iterate completions: %w", err)
	}

	return p, nil
}
