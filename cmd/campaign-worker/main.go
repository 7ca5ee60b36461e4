// Package main is the entrypoint for the Campaign Worker Lambda function.
//
// The worker consumes SendJobs from the campaign SQS queue, re-checks the
// tenant's entitlement and daily quota at delivery time, and sends the
// message through the WhatsApp gateway. Lambda SQS integration uses partial
// batch responses: jobs that fail with a retryable error are returned in
// batchItemFailures so SQS redrives only those messages.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"agendly/internal/campaign"
	"agendly/internal/catalog"
	"agendly/internal/config"
	"agendly/internal/db"
	"agendly/internal/entitlement"
	"agendly/internal/external"
	"agendly/internal/observe"
	"agendly/internal/types"
)

// jobProcessor delivers a single SendJob. Implemented by campaign.Worker.
type jobProcessor interface {
	ProcessJob(ctx context.Context, job types.SendJob) (types.SendStatus, error)
}

// Handler holds the dependencies for the campaign worker Lambda handler.
type Handler struct {
	worker jobProcessor
	logger *slog.Logger
}

// Handle processes an SQS event containing one or more SendJobs. Each job
// is processed independently; a failure in one never blocks the rest of
// the batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		var job types.SendJob
		if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
			h.logger.ErrorContext(ctx, "failed to unmarshal send job",
				"message_id", record.MessageId,
				"error", err,
			)
			// Permanent parse failure; redriving cannot fix it, so ack.
			continue
		}

		status, err := h.worker.ProcessJob(ctx, job)
		if err != nil {
			h.logger.ErrorContext(ctx, "send job failed",
				"message_id", record.MessageId,
				"job_id", job.JobID,
				"campaign_id", job.CampaignID,
				"tenant_id", job.TenantID,
				"status", string(status),
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("campaign worker initializing")

	// Resolve SSM-backed secrets (DATABASE_URL and friends) before any
	// os.Getenv that depends on them. No-op in local environments.
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

	gatewayTimeout := 8 * time.Second
	if raw := os.Getenv("GATEWAY_TIMEOUT"); raw != "" {
		if d, parseErr := time.ParseDuration(raw); parseErr == nil {
			gatewayTimeout = d
		}
	}
	dailyLimit := 300
	if raw := os.Getenv("DAILY_MESSAGE_LIMIT"); raw != "" {
		if n, parseErr := strconv.Atoi(raw); parseErr == nil && n > 0 {
			dailyLimit = n
		}
	}

	gateway := external.NewWhatsAppGateway(external.WhatsAppGatewayConfig{
		BaseURL:   os.Getenv("GATEWAY_BASE_URL"),
		Timeout:   gatewayTimeout,
		UserAgent: os.Getenv("GATEWAY_USER_AGENT"),
		Logger:    logger,
	})
	metrics := observe.NewCloudWatchCollector(cloudwatch.NewFromConfig(awsCfg), logger)

	tenants := db.NewTenantRepository(pool, logger)
	plans := db.NewPlanRepository(pool)
	quota := db.NewQuotaRepository(pool)
	sendRecords := db.NewSendRecordRepo(pool)

	evaluator := entitlement.New(catalog.New(plans, logger), types.RealClock{}, logger)

	worker := campaign.NewWorker(campaign.WorkerConfig{
		Tenants:    tenants,
		Evaluator:  evaluator,
		Quota:      quota,
		Gateway:    gateway,
		Records:    sendRecords,
		DailyLimit: dailyLimit,
		Logger:     logger,
		Metrics:    metrics,
	})

	logger.Info("campaign worker initialized",
		"daily_limit", dailyLimit,
		"gateway_timeout", gatewayTimeout.String(),
	)

	handler := &Handler{worker: worker, logger: logger}
	lambda.Start(handler.Handle)
}
