// Package main is the entrypoint for the Scheduler Lambda function.
//
// EventBridge rules invoke it with a job name; the handler dispatches to
// the matching batch job: the birthday and return-visit reminder sweeps,
// the gateway webhook reconciliation sweep, or the retention maintenance
// purges. Each rule carries its own schedule, so one binary serves every
// scheduled job.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"agendly/internal/auth"
	"agendly/internal/catalog"
	"agendly/internal/config"
	"agendly/internal/db"
	"agendly/internal/entitlement"
	"agendly/internal/external"
	"agendly/internal/observe"
	"agendly/internal/queue"
	"agendly/internal/reconcile"
	"agendly/internal/scheduler"
	"agendly/internal/types"
)

// Input is the EventBridge invocation payload.
type Input struct {
	Job string `json:"job"`
}

// Output summarizes a completed job for the invocation log.
type Output struct {
	Job             string              `json:"job"`
	Summary         *types.SweepSummary `json:"summary,omitempty"`
	WebhooksFixed   int                 `json:"webhooks_fixed,omitempty"`
	WebhooksChecked int                 `json:"webhooks_checked,omitempty"`
	RowsPurged      int64               `json:"rows_purged,omitempty"`
	SessionsPurged  int64               `json:"sessions_purged,omitempty"`
}

// sweepRunner runs the reminder sweeps. Implemented by scheduler.SweepService.
type sweepRunner interface {
	RunBirthdaySweep(ctx context.Context) (*types.SweepSummary, error)
	RunReturnVisitSweep(ctx context.Context) (*types.SweepSummary, error)
}

// maintenanceRunner runs the retention purges. Implemented by
// scheduler.MaintenanceService.
type maintenanceRunner interface {
	PurgeQuotaRecords(ctx context.Context, retention time.Duration) (int64, error)
	PurgeSessions(ctx context.Context) (int64, error)
}

// webhookFixer repairs gateway webhooks. Implemented by reconcile.Reconciler.
type webhookFixer interface {
	FixAll(ctx context.Context) ([]*types.WebhookReport, error)
}

// jobs bundles the services the dispatcher selects between.
type jobs struct {
	sweeps         sweepRunner
	maintenance    maintenanceRunner
	reconciler     webhookFixer
	quotaRetention time.Duration
	logger         *slog.Logger
}

func (j *jobs) handle(ctx context.Context, input Input) (Output, error) {
	j.logger.InfoContext(ctx, "scheduled job starting", "job", input.Job)

	switch input.Job {
	case "birthday_sweep":
		summary, err := j.sweeps.RunBirthdaySweep(ctx)
		if err != nil {
			return Output{}, err
		}
		return Output{Job: input.Job, Summary: summary}, nil

	case "return_visit_sweep":
		summary, err := j.sweeps.RunReturnVisitSweep(ctx)
		if err != nil {
			return Output{}, err
		}
		return Output{Job: input.Job, Summary: summary}, nil

	case "webhook_sweep":
		reports, err := j.reconciler.FixAll(ctx)
		if err != nil {
			return Output{}, err
		}
		fixed := 0
		for _, report := range reports {
			if report.NeedsFix && report.Error == "" {
				fixed++
			}
		}
		return Output{Job: input.Job, WebhooksChecked: len(reports), WebhooksFixed: fixed}, nil

	case "quota_maintenance":
		rows, quotaErr := j.maintenance.PurgeQuotaRecords(ctx, j.quotaRetention)
		sessions, sessErr := j.maintenance.PurgeSessions(ctx)
		if quotaErr != nil && sessErr != nil {
			return Output{}, fmt.Errorf("quota purge: %v; session purge: %v", quotaErr, sessErr)
		}
		return Output{Job: input.Job, RowsPurged: rows, SessionsPurged: sessions}, nil

	default:
		return Output{}, fmt.Errorf("unknown scheduled job %q", input.Job)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("scheduler initializing")

	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"))); err != nil {
		logger.Error("failed to resolve SSM secrets", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	concurrency := 8
	if raw := os.Getenv("SWEEP_CONCURRENCY"); raw != "" {
		if n, parseErr := strconv.Atoi(raw); parseErr == nil && n > 0 {
			concurrency = n
		}
	}
	quotaRetention := 90 * 24 * time.Hour
	if raw := os.Getenv("QUOTA_RETENTION"); raw != "" {
		if d, parseErr := time.ParseDuration(raw); parseErr == nil {
			quotaRetention = d
		}
	}

	queueCfg := config.AWSConfig{
		Region:        os.Getenv("AWS_REGION"),
		CampaignQueue: os.Getenv("SQS_CAMPAIGNS"),
		EndpointURL:   os.Getenv("AWS_ENDPOINT_URL"),
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if queueCfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(queueCfg.EndpointURL)
		}
	})
	dispatcher := queue.NewJobDispatcher(sqsClient, queueCfg, logger)
	metrics := observe.NewCloudWatchCollector(cloudwatch.NewFromConfig(awsCfg), logger)

	gateway := external.NewWhatsAppGateway(external.WhatsAppGatewayConfig{
		BaseURL:   os.Getenv("GATEWAY_BASE_URL"),
		UserAgent: os.Getenv("GATEWAY_USER_AGENT"),
		Logger:    logger,
	})

	tenants := db.NewTenantRepository(pool, logger)
	plans := db.NewPlanRepository(pool)
	quota := db.NewQuotaRepository(pool)
	customers := db.NewCustomerRepository(pool)
	sessions := db.NewSessionRepository(pool)

	evaluator := entitlement.New(catalog.New(plans, logger), types.RealClock{}, logger)
	sessionSvc := auth.NewSessionService(sessions, auth.NewCryptoTokenGenerator(),
		auth.SessionConfig{}, types.RealClock{}, logger)

	j := &jobs{
		sweeps: scheduler.NewSweepService(scheduler.SweepConfig{
			Tenants:     tenants,
			Customers:   customers,
			Evaluator:   evaluator,
			Queue:       dispatcher,
			Concurrency: concurrency,
			Logger:      logger,
			Metrics:     metrics,
		}),
		maintenance: scheduler.NewMaintenanceService(quota, sessionSvc, types.RealClock{}, logger),
		reconciler: reconcile.New(reconcile.Config{
			Tenants:              tenants,
			Evaluator:            evaluator,
			Gateway:              gateway,
			AutomationWebhookURL: os.Getenv("AUTOMATION_WEBHOOK_URL"),
			Concurrency:          concurrency,
			Logger:               logger,
		}),
		quotaRetention: quotaRetention,
		logger:         logger,
	}

	logger.Info("scheduler initialized",
		"sweep_concurrency", concurrency,
		"quota_retention", quotaRetention.String(),
	)

	lambda.Start(j.handle)
}
