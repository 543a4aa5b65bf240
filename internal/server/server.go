// Package server exposes grading and progression over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-arena/internal/content"
	"github.com/p-n-ai/pai-arena/internal/grading"
	"github.com/p-n-ai/pai-arena/internal/progress"
)

const defaultLeaderboardSize = 100

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds dependencies for the HTTP server.
type Config struct {
	Engine          *grading.Engine
	Ledger          *progress.Ledger
	Catalog         content.Catalog
	Leaderboard     progress.Leaderboard
	LeaderboardSize int                      // default: 100
	Notifier        http.Handler             // optional websocket progress stream
	Checks          map[string]HealthChecker // readiness probes by name
	Now             func() time.Time
}

// Server routes API requests to the grading engine and the progression ledger.
type Server struct {
	engine          *grading.Engine
	ledger          *progress.Ledger
	catalog         content.Catalog
	leaderboard     progress.Leaderboard
	leaderboardSize int
	notifier        http.Handler
	checks          map[string]HealthChecker
	now             func() time.Time
}

// New creates a server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("grading engine is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Leaderboard == nil {
		return nil, fmt.Errorf("leaderboard is required")
	}

	size := cfg.LeaderboardSize
	if size <= 0 {
		size = defaultLeaderboardSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Server{
		engine:          cfg.Engine,
		ledger:          cfg.Ledger,
		catalog:         cfg.Catalog,
		leaderboard:     cfg.Leaderboard,
		leaderboardSize: size,
		notifier:        cfg.Notifier,
		checks:          cfg.Checks,
		now:             now,
	}, nil
}

// Handler returns the routed HTTP handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.newMux())
}

func (s *Server) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/challenges/{id}/validate", s.handleValidate)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users/{userID}/progress", s.handleProgress)
	mux.HandleFunc("POST /api/users/{userID}/activity", s.handleActivity)
	mux.HandleFunc("POST /api/users/{userID}/challenges/{id}/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/users/{userID}/lessons/{id}/complete", s.handleCompleteLesson)
	mux.HandleFunc("POST /api/users/{userID}/onboarding-quiz", s.handleOnboardingQuiz)
	mux.HandleFunc("GET /api/users/{userID}/lessons", s.handleListing(content.KindLesson))
	mux.HandleFunc("GET /api/users/{userID}/challenges", s.handleListing(content.KindChallenge))
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/leaderboard/export", s.handleLeaderboardExport)

	if s.notifier != nil {
		mux.Handle("GET /ws/progress", s.notifier)
	}
	return mux
}
