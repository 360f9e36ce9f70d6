package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/ai"
	"github.com/kiranshivaraju/mdmdedup/internal/analysis"
	"github.com/kiranshivaraju/mdmdedup/internal/api"
	"github.com/kiranshivaraju/mdmdedup/internal/api/handler"
	mw "github.com/kiranshivaraju/mdmdedup/internal/api/middleware"
	"github.com/kiranshivaraju/mdmdedup/internal/cache"
	"github.com/kiranshivaraju/mdmdedup/internal/config"
	"github.com/kiranshivaraju/mdmdedup/internal/rules"
	"github.com/kiranshivaraju/mdmdedup/internal/store"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

const shutdownTimeout = 30 * time.Second

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	logger := zap.L()
	logger.Info("config loaded",
		zap.String("env", cfg.Server.Env),
		zap.Int("providers", len(cfg.AI.Providers)))

	// 1. Database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database ready")
	pgStore := store.NewPostgresStore(pool)

	// 2. Redis
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connected")

	// 3. Rules: built-ins, the rules file, then enabled rules from the database.
	base, err := baseRules(cfg)
	if err != nil {
		return err
	}
	engine, err := newEngine(base)
	if err != nil {
		return err
	}
	reload := ruleReloader(engine, base, pgStore)
	if err := reload(ctx); err != nil {
		return err
	}

	// 4. Providers
	orch, err := newOrchestrator(ctx, cfg, engine)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}
	reg := orch.Registry()
	reg.RunHealthChecks(ctx, cfg.AI.InferenceTimeout)
	logger.Info("ai providers ready", zap.String("current", reg.Status().CurrentProvider))

	svc := analysis.NewService(orch,
		analysis.WithCache(redisCache, cfg.Redis.AnalysisTTL),
		analysis.WithStore(pgStore),
		analysis.WithMaxRetries(cfg.AI.MaxRetries),
		analysis.WithConcurrency(cfg.Rules.BatchConcurrency),
		analysis.WithLogger(logger))
	ruleHandlers := handler.NewRules(pgStore, newHarness(cfg, engine), reload)

	// 5. Router
	auth := mw.NewAuth(pgStore)
	router := api.NewRouter(api.Dependencies{
		Auth:        auth,
		RateLimit:   mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),
		CORSOrigins: cfg.Server.CORSOrigins,

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": pgStore,
			"cache":    redisCache,
		}, version),

		AnalyzeHandler:      handler.NewAnalyzeHandler(svc),
		AnalyzeBatchHandler: handler.NewAnalyzeBatchHandler(svc),
		AnalyzeSmartHandler: handler.NewSmartAnalyzeHandler(engine),

		ProviderStatusHandler: handler.NewProviderStatusHandler(reg),
		SwitchProviderHandler: handler.NewSwitchProviderHandler(reg),
		HealthCheckHandler:    handler.NewHealthCheckHandler(reg, cfg.AI.InferenceTimeout),

		ListRules:       ruleHandlers.List,
		CreateRule:      ruleHandlers.Create,
		GetRule:         ruleHandlers.Get,
		TestRule:        ruleHandlers.Test,
		ValidateRule:    ruleHandlers.Validate,
		BenchmarkRule:   ruleHandlers.Benchmark,
		GenerateTests:   ruleHandlers.GenerateTests,
		ListTestResults: ruleHandlers.TestResults,

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	})

	// 6. Background health checks
	hcCtx, hcCancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runHealthChecks(hcCtx, reg, cfg.AI.HealthCheckInterval, cfg.AI.InferenceTimeout)
	}()
	defer wg.Wait()
	defer hcCancel()

	// 7. HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// ruleLister is the store call ruleReloader needs.
type ruleLister interface {
	ListRules(ctx context.Context, filter store.RuleFilter) ([]*models.BusinessRule, error)
}

// ruleReloader returns a func that replaces the engine's rules with base plus
// the enabled rules stored in the database.
func ruleReloader(engine *rules.Engine, base []models.BusinessRule, st ruleLister) func(context.Context) error {
	return func(ctx context.Context) error {
		stored, err := st.ListRules(ctx, store.RuleFilter{EnabledOnly: true})
		if err != nil {
			return fmt.Errorf("list stored rules: %w", err)
		}
		set := append([]models.BusinessRule{}, base...)
		for _, r := range stored {
			set = append(set, *r)
		}
		if err := engine.SetRules(set); err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		zap.L().Info("business rules loaded", zap.Int("count", len(set)))
		return nil
	}
}

// runHealthChecks probes every provider on each tick until ctx is done.
func runHealthChecks(ctx context.Context, reg *ai.Registry, interval, timeout time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.RunHealthChecks(ctx, timeout)
			zap.L().Debug("provider health checks complete",
				zap.String("current", reg.Status().CurrentProvider))
		}
	}
}
