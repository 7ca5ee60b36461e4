// Package main is the entry point for the Agendly API server.
//
// Startup order: resolve configuration (SSM-backed outside local), open the
// pgx pool, construct the domain services, build the core.Server chassis,
// register the versioned route groups, and serve. Graceful shutdown is
// handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"agendly/internal/api/handlers"
	"agendly/internal/auth"
	"agendly/internal/billing"
	"agendly/internal/campaign"
	"agendly/internal/catalog"
	"agendly/internal/config"
	"agendly/internal/core"
	"agendly/internal/db"
	"agendly/internal/entitlement"
	"agendly/internal/external"
	"agendly/internal/observe"
	"agendly/internal/queue"
	"agendly/internal/reconcile"
	"agendly/internal/scheduler"
	"agendly/internal/security"
	"agendly/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit
// on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("agendly API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging database: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		pool.Close()
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	var metrics types.MetricsCollector = &observe.NoopCollector{}
	if cfg.Observability.EnableMetrics && cfg.Environment != "local" {
		metrics = observe.NewCloudWatchCollector(cloudwatch.NewFromConfig(awsCfg), logger)
	}

	// Repositories.
	tenants := db.NewTenantRepository(pool, logger)
	plans := db.NewPlanRepository(pool)
	quota := db.NewQuotaRepository(pool)
	sessions := db.NewSessionRepository(pool)
	users := db.NewUserRepository(pool)
	customers := db.NewCustomerRepository(pool)
	campaigns := db.NewCampaignRepository(pool)
	sendRecords := db.NewSendRecordRepo(pool)
	directory := db.NewAdminDirectoryRepo(pool)

	// Domain services.
	planCatalog := catalog.New(plans, logger)
	evaluator := entitlement.New(planCatalog, types.RealClock{}, logger)

	sessionSvc := auth.NewSessionService(sessions, auth.NewCryptoTokenGenerator(),
		auth.SessionConfig{SessionTTL: cfg.Auth.SessionTTL}, types.RealClock{}, logger)
	loginSvc := auth.NewLoginService(auth.LoginServiceConfig{
		UserRepo:       users,
		SessionService: sessionSvc,
		Logger:         logger,
	})
	authenticator := auth.NewAuthenticator(sessionSvc, users,
		auth.NewTokenVerifier(cfg.Auth.JWTSigningKey))
	authorizer := auth.NewAdminAuthorizer(logger,
		auth.ClaimCheck{},
		auth.NewAllowlistCheck(cfg.Admin.Allowlist),
		auth.NewDirectoryCheck(directory),
	)

	gateway := external.NewWhatsAppGateway(external.WhatsAppGatewayConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		Timeout:   cfg.Gateway.Timeout,
		UserAgent: cfg.Gateway.UserAgent,
		Logger:    logger,
	})
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 20 * time.Second},
		tenants,
		external.StripeClientConfig{SecretKey: cfg.Billing.StripeSecretKey, Logger: logger},
	)
	cepClient := external.NewCEPClient(external.CEPClientConfig{
		BaseURL: cfg.Lookup.BaseURL,
		Timeout: cfg.Lookup.Timeout,
		Logger:  logger,
	})

	dispatcher := queue.NewJobDispatcher(sqsClient, cfg.AWS, logger)

	billingSvc := billing.NewService(billing.ServiceConfig{
		Plans:   planCatalog,
		Gateway: stripeClient,
		Tenants: tenants,
		Logger:  logger,
	})
	webhookProcessor := billing.NewWebhookProcessor(tenants, planCatalog, logger)

	campaignSvc := campaign.NewService(campaign.ServiceConfig{
		Campaigns:     campaigns,
		Customers:     customers,
		Tenants:       tenants,
		Evaluator:     evaluator,
		Queue:         dispatcher,
		Logger:        logger,
		MediaURLCheck: security.ValidateURL,
	})
	exporter := campaign.NewExporter(sendRecords, logger)

	reconciler := reconcile.New(reconcile.Config{
		Tenants:              tenants,
		Evaluator:            evaluator,
		Gateway:              gateway,
		AutomationWebhookURL: cfg.Gateway.AutomationWebhookURL,
		Concurrency:          cfg.Cron.SweepConcurrency,
		Logger:               logger,
	})
	sweeps := scheduler.NewSweepService(scheduler.SweepConfig{
		Tenants:     tenants,
		Customers:   customers,
		Evaluator:   evaluator,
		Queue:       dispatcher,
		Concurrency: cfg.Cron.SweepConcurrency,
		Logger:      logger,
		Metrics:     metrics,
	})
	maintenance := scheduler.NewMaintenanceService(quota, sessionSvc, types.RealClock{}, logger)

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	srv.Authenticator = authenticator
	srv.Admin = authorizer
	srv.DB = pool
	srv.HealthProbes = append(srv.HealthProbes, dbProbe{pool: pool})

	authHandler := handlers.NewAuthHandler(loginSvc, logger, srv.Validator)
	plansHandler := handlers.NewPlansHandler(planCatalog)
	tenantHandler := handlers.NewTenantHandler(tenants, evaluator, quota, cepClient,
		types.RealClock{}, cfg.Cron.DailyMessageLimit)
	billingHandler := handlers.NewBillingHandler(billingSvc, logger, srv.Validator)
	webhookHandler := handlers.NewStripeWebhookHandler(&external.StripeVerifier{},
		webhookProcessor, cfg.Billing.StripeWebhookSecret, logger)
	customersHandler := handlers.NewCustomersHandler(customers, types.RealClock{}, logger, srv.Validator)
	campaignsHandler := handlers.NewCampaignsHandler(campaignSvc, exporter, logger, srv.Validator)
	adminHandler := handlers.NewAdminHandler(handlers.AdminHandlerConfig{
		Catalog:            planCatalog,
		Plans:              plans,
		Quota:              quota,
		Reconciler:         reconciler,
		Diagnoser:          authorizer,
		Users:              users,
		Directory:          directory,
		Hasher:             loginSvc,
		Logger:             logger,
		Validator:          srv.Validator,
		RequireAdmin:       srv.RequireAdmin,
		RequireSetupSecret: srv.RequireSetupSecret,
	})
	cronHandler := handlers.NewCronHandler(handlers.CronHandlerConfig{
		Sweeps:            sweeps,
		Maintenance:       maintenance,
		Reconciler:        reconciler,
		QuotaRetention:    cfg.Cron.QuotaRetention,
		Logger:            logger,
		RequireCronSecret: srv.RequireCronSecret,
	})

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		plansHandler.RegisterRoutes,
		tenantHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		customersHandler.RegisterRoutes,
		campaignsHandler.RegisterRoutes,
		adminHandler.RegisterRoutes,
		cronHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return serveHTTP(srv, cfg, logger)
}

// newPool opens a pgx pool with the configured tuning parameters.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxConns)
	pc.MinConns = int32(cfg.MinConns)
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	return pgxpool.NewWithConfig(ctx, pc)
}

// dbProbe reports database reachability for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string                    { return "database" }
func (p dbProbe) Check(ctx context.Context) error { return p.pool.Ping(ctx) }

// serveHTTP starts the server and blocks until a shutdown signal or a
// listener error.
func serveHTTP(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger for the given level string.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
