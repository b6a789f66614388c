package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aegisgraph/aegisgraph/cmd/mainconfig"
	"github.com/aegisgraph/aegisgraph/internal/api/router"
	"github.com/aegisgraph/aegisgraph/internal/archive"
	appconfig "github.com/aegisgraph/aegisgraph/internal/config"
	"github.com/aegisgraph/aegisgraph/internal/history"
	"github.com/aegisgraph/aegisgraph/internal/http/handlers"
	httpmiddleware "github.com/aegisgraph/aegisgraph/internal/http/middleware"
	"github.com/aegisgraph/aegisgraph/internal/incident"
	"github.com/aegisgraph/aegisgraph/internal/intent"
	"github.com/aegisgraph/aegisgraph/internal/llm"
	"github.com/aegisgraph/aegisgraph/internal/notify"
	"github.com/aegisgraph/aegisgraph/internal/observability/metrics"
	"github.com/aegisgraph/aegisgraph/internal/pipeline"
	"github.com/aegisgraph/aegisgraph/internal/policy"
	"github.com/aegisgraph/aegisgraph/internal/response"
	"github.com/aegisgraph/aegisgraph/internal/safety"
	"github.com/aegisgraph/aegisgraph/internal/security"
	appmigrations "github.com/aegisgraph/aegisgraph/migrations"
	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting aegisgraph gateway",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	llmClient, closeLLM := newLLMClient(ctx, cfg, awsCfg, logger)
	defer closeLLM()

	// Relationship graph lookups run on the pgx pool; audit writes go
	// through database/sql.
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()

	if cfg.MigrateOnBoot {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	modes := security.NewModeController(cfg.EscalationCooldown, logger)
	detector := security.NewEscalationDetector(security.DetectorConfig{
		Window:    cfg.EscalationWindow,
		Threshold: cfg.EscalationThreshold,
		Cooldown:  cfg.EscalationCooldown,
	})
	pipelineMetrics := metrics.NewPipelineMetrics(nil)

	incidentStore := incident.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.IncidentTable, logger)
	evidenceStore := archive.NewStore(s3.NewFromConfig(awsCfg), cfg.EvidenceBucket, logger)
	alertService := notify.NewAlertService(newEmailSender(cfg, awsCfg, logger), cfg.OperatorEmail, logger)
	auditStore := history.NewStore(auditDB, logger)
	outcomePublisher := history.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.OutcomeQueueURL, logger)

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Modes:      modes,
		Detector:   detector,
		Classifier: intent.NewClassifier(llmClient, cfg.ModelID("intent"), logger),
		Policy:     policy.NewEngine(policy.NewGraphStore(pool, logger), logger),
		Scanner:    safety.NewScanner(llmClient, cfg.ModelID("safety"), cfg.StrictKeywords, logger),
		Generator:  response.NewGenerator(llmClient, cfg.ModelID("response"), logger),
		Audit:      auditStore,
		Publisher:  outcomePublisher,
		Incidents:  incidentStore,
		Alerts:     alertService,
		Evidence:   evidenceStore,
		Metrics:    pipelineMetrics,
		Logger:     logger,
	})

	var limiter *httpmiddleware.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = rdb.Close() }()
		limiter = httpmiddleware.NewRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, logger)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        handlers.NewChatHandler(orchestrator, logger),
		AdminSecurity:      handlers.NewAdminSecurityHandler(modes, incidentStore, logger),
		RateLimiter:        limiter,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// runMigrations applies any pending schema migrations on a dedicated
// connection so a failed migration cannot poison the serving pools.
func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// newLLMClient selects the provider backing all three pipeline stages.
func newLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (llm.Client, func()) {
	if cfg.LLMProvider == "gemini" {
		if cfg.GeminiAPIKey == "" {
			logger.Error("LLM_PROVIDER=gemini requires GEMINI_API_KEY")
			os.Exit(1)
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		return client, func() { _ = client.Close() }
	}
	return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg)), func() {}
}

// newEmailSender picks the alert transport. SendGrid wins when both are
// configured; either may be absent, which disables alerting.
func newEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.AlertProvider == "ses" && cfg.SESFromEmail != "" {
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if cfg.SendGridAPIKey != "" {
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	return nil
}
