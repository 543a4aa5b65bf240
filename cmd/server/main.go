package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-arena/internal/ai"
	"github.com/p-n-ai/pai-arena/internal/content"
	"github.com/p-n-ai/pai-arena/internal/grading"
	"github.com/p-n-ai/pai-arena/internal/notify"
	"github.com/p-n-ai/pai-arena/internal/platform/cache"
	"github.com/p-n-ai/pai-arena/internal/platform/config"
	"github.com/p-n-ai/pai-arena/internal/platform/database"
	"github.com/p-n-ai/pai-arena/internal/platform/logging"
	"github.com/p-n-ai/pai-arena/internal/progress"
	"github.com/p-n-ai/pai-arena/internal/server"
)

const deepSeekBaseURL = "https://api.deepseek.com/v1"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if _, err := logging.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format); err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	catalog, err := content.NewLoader(cfg.ContentPath)
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}

	rules, err := loadKeywordRules(cfg.KeywordsPath)
	if err != nil {
		return err
	}

	checks := make(map[string]server.HealthChecker)

	var redisCache *cache.Cache
	if cfg.Cache.Enabled {
		redisCache, err = cache.New(ctx, cfg.Cache.URL, cfg.Cache.KeyPrefix)
		if err != nil {
			return fmt.Errorf("connecting to cache: %w", err)
		}
		defer redisCache.Close()
		checks["cache"] = redisCache
	}

	router := newAIRouter(cfg)
	engineCfg := grading.EngineConfig{
		Heuristic: grading.NewHeuristicGrader(rules),
		Budget:    newBudget(cfg, redisCache),
		AITimeout: cfg.AI.Timeout,
	}
	if router.HasProvider() {
		collab, err := grading.NewAICollaborator(router, "")
		if err != nil {
			return err
		}
		engineCfg.Collaborator = collab
	} else {
		slog.Warn("no AI provider configured, grading with heuristics only")
	}
	engine := grading.NewEngine(engineCfg)

	hub := notify.NewHub()
	events := progress.MultiEventLogger{hub}

	var store interface {
		progress.Store
		progress.Ranker
	}
	switch cfg.Progression.Store {
	case "postgres":
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		pgStore, err := progress.NewPostgresStore(db.Pool)
		if err != nil {
			return err
		}
		store = pgStore
		events = append(events, progress.NewPostgresEventLogger(db.Pool))
		checks["database"] = db
	default:
		slog.Warn("using in-memory progress store; progress is lost on restart")
		store = progress.NewMemoryStore()
	}

	var board progress.Leaderboard = progress.NewStoreLeaderboard(store)
	if redisCache != nil {
		board = progress.NewRedisLeaderboard(board, redisCache.Client, redisCache.Prefix())
	}

	ledger, err := progress.NewLedger(progress.LedgerConfig{
		Store:        store,
		Catalog:      catalog,
		Events:       events,
		Leaderboard:  board,
		LevelDivisor: cfg.Progression.LevelDivisor,
	})
	if err != nil {
		return err
	}

	api, err := server.New(server.Config{
		Engine:          engine,
		Ledger:          ledger,
		Catalog:         catalog,
		Leaderboard:     board,
		LeaderboardSize: cfg.Progression.LeaderboardSize,
		Notifier:        hub,
		Checks:          checks,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"store", cfg.Progression.Store,
			"cache", cfg.Cache.Enabled,
			"ai", router.HasProvider(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// newAIRouter registers every configured provider in fallback order.
func newAIRouter(cfg *config.Config) *ai.Router {
	router := ai.NewRouter(ai.WithBreakerCooldown(cfg.AI.BreakerCooldown))

	if cfg.AI.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.AI.OpenAI.APIKey,
			ai.WithBaseURL(cfg.AI.OpenAI.BaseURL),
			ai.WithDefaultModel(cfg.AI.OpenAI.Model),
		))
	}
	if cfg.AI.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewOpenAIProvider(cfg.AI.DeepSeek.APIKey,
			ai.WithBaseURL(deepSeekBaseURL),
			ai.WithProviderName("deepseek"),
			ai.WithDefaultModel("deepseek-chat"),
		))
	}
	if cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.AI.Ollama.URL,
			ai.WithDefaultModel(cfg.AI.Ollama.Model),
		))
	}
	return router
}

// newBudget returns nil when AI usage is unlimited.
func newBudget(cfg *config.Config, c *cache.Cache) ai.BudgetChecker {
	limit := int64(cfg.AI.DailyTokenBudget)
	if limit <= 0 {
		return nil
	}
	if c != nil {
		return ai.NewRedisBudget(c.Client, c.Prefix(), limit)
	}
	return ai.NewInMemoryBudget(limit)
}

func loadKeywordRules(path string) ([]grading.KeywordRule, error) {
	if path == "" {
		return grading.DefaultKeywordRules(), nil
	}
	rules, err := grading.LoadKeywordRules(path)
	if err != nil {
		return nil, fmt.Errorf("loading keyword rules: %w", err)
	}
	slog.Info("keyword rules loaded", "path", path, "count", len(rules))
	return rules, nil
}
