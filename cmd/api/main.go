package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/previmed/visit-assistant/cmd/mainconfig"
	"github.com/previmed/visit-assistant/internal/api/router"
	"github.com/previmed/visit-assistant/internal/app/bootstrap"
	"github.com/previmed/visit-assistant/internal/compliance"
	appconfig "github.com/previmed/visit-assistant/internal/config"
	"github.com/previmed/visit-assistant/internal/conversation"
	"github.com/previmed/visit-assistant/internal/directory"
	httpmiddleware "github.com/previmed/visit-assistant/internal/http/middleware"
	"github.com/previmed/visit-assistant/internal/observability/metrics"
	"github.com/previmed/visit-assistant/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting Previmed visit assistant",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer application.close()

	go application.limiter.RunEviction(ctx, 5*time.Minute, 10*time.Minute)

	// Visit creation may take up to DIRECTORY_CREATE_TIMEOUT.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      application.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DirectoryCreateTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler http.Handler
	limiter *httpmiddleware.RateLimiter
	auditDB *sql.DB
}

func (a *app) close() {
	if a.auditDB != nil {
		_ = a.auditDB.Close()
	}
}

// buildApp wires every collaborator from cfg. Optional pieces (LLM, audit,
// notifications) are skipped with a log line when not configured.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	metricsHandler, convMetrics := setupMetrics()

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &loaded
	}

	dir := directory.NewClient(cfg.BackendURL,
		directory.WithLogger(logger),
		directory.WithTimeouts(cfg.DirectoryTimeout, cfg.DirectoryCreateTimeout),
		directory.WithObserver(convMetrics),
	)

	store, err := bootstrap.BuildSessionStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	llm, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	audit, auditDB, err := bootstrap.BuildAuditService(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	engine, err := bootstrap.BuildEngine(bootstrap.EngineDeps{
		Config:    cfg,
		Directory: dir,
		Store:     store,
		LLM:       llm,
		Audit:     audit,
		Notifier:  bootstrap.BuildVisitNotifier(cfg, awsCfg, logger),
		Metrics:   convMetrics,
		Logger:    logger,
	})
	if err != nil {
		if auditDB != nil {
			_ = auditDB.Close()
		}
		return nil, err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateBurst)
	routerCfg := &router.Config{
		Logger:             logger,
		ChatHandler:        conversation.NewHandler(engine, logger),
		MetricsHandler:     metricsHandler,
		ChatLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AdminAuthSecret:    cfg.AdminJWTSecret,
	}
	if audit != nil {
		routerCfg.AuditHandler = compliance.NewHandler(audit, logger)
	}

	return &app{handler: router.New(routerCfg), limiter: limiter, auditDB: auditDB}, nil
}

func setupMetrics() (http.Handler, *metrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewConversationMetrics(reg)
}
