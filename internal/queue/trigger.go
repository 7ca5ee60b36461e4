// Package queue provides the SQS producer that dispatches campaign send
// jobs to the worker fleet.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"agendly/internal/config"
	"agendly/internal/types"
)

// sqsBatchLimit is the maximum number of entries SQS accepts per
// SendMessageBatch call.
const sqsBatchLimit = 10

// SQSSender abstracts the SQS send operations for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// JobDispatcher serializes SendJobs and delivers them to the campaign
// queue. The API enqueues one job per recipient; the worker owns all
// entitlement and quota decisions at delivery time.
type JobDispatcher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewJobDispatcher creates a JobDispatcher targeting the campaign queue
// from the AWS configuration.
func NewJobDispatcher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *JobDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobDispatcher{
		client:   client,
		queueURL: awsCfg.CampaignQueue,
		logger:   logger,
	}
}

// Enqueue sends a single SendJob. Used for one-off sends outside a
// campaign batch, such as birthday and return-visit reminders.
func (d *JobDispatcher) Enqueue(ctx context.Context, job types.SendJob, reason string) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal SendJob: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := d.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send SendJob to %s: %w", d.queueURL, err)
	}

	d.logger.InfoContext(ctx, "send job enqueued",
		"queue_url", d.queueURL,
		"job_id", job.JobID,
		"trace_id", job.TraceID,
		"campaign_id", job.CampaignID,
		"tenant_id", job.TenantID,
		"reason", reason,
	)
	return nil
}

// EnqueueBatch sends a campaign's jobs in SQS batch calls of up to ten
// entries. It returns the number of jobs accepted by SQS; partially failed
// batches report the per-entry failures and continue with the next chunk.
func (d *JobDispatcher) EnqueueBatch(ctx context.Context, jobs []types.SendJob, reason string) (int, error) {
	sent := 0

	for start := 0; start < len(jobs); start += sqsBatchLimit {
		end := start + sqsBatchLimit
		if end > len(jobs) {
			end = len(jobs)
		}
		chunk := jobs[start:end]

		entries := make([]sqsTypes.SendMessageBatchRequestEntry, 0, len(chunk))
		for i := range chunk {
			body, err := json.Marshal(chunk[i])
			if err != nil {
				return sent, fmt.Errorf("queue: failed to marshal SendJob %s: %w", chunk[i].JobID, err)
			}
			entries = append(entries, sqsTypes.SendMessageBatchRequestEntry{
				Id:          aws.String(chunk[i].JobID),
				MessageBody: aws.String(string(body)),
				MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
					"reason": {
						DataType:    aws.String("String"),
						StringValue: aws.String(reason),
					},
				},
			})
		}

		out, err := d.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(d.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return sent, fmt.Errorf("queue: failed to send batch to %s: %w", d.queueURL, err)
		}

		sent += len(out.Successful)
		for _, f := range out.Failed {
			d.logger.ErrorContext(ctx, "send job rejected by sqs",
				"queue_url", d.queueURL,
				"job_id", aws.ToString(f.Id),
				"code", aws.ToString(f.Code),
				"message", aws.ToString(f.Message),
			)
		}
	}

	d.logger.InfoContext(ctx, "campaign batch enqueued",
		"queue_url", d.queueURL,
		"jobs", len(jobs),
		"accepted", sent,
		"reason", reason,
	)
	return sent, nil
}
