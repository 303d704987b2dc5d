// Package opscmd delivers operator commands (start, abort) to the controller
// through an SQS queue. Commands are drained at cycle boundaries only, so an
// abort never interrupts a weight application mid-flight.
package opscmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// Source yields pending operator commands for a deployment.
type Source interface {
	// Drain returns all pending commands for the deployment and removes
	// them from the queue. Commands that fail to delete may be redelivered;
	// the controller's handling is idempotent.
	Drain(ctx context.Context, deploymentID string) ([]types.Command, error)
}

// SQSAPI is the subset of the SQS client used by the command queue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

var _ Source = (*SQSQueue)(nil)

// SQSQueue reads and writes operator commands on an SQS queue.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	logger   *slog.Logger
}

// QueueOption configures an SQSQueue.
type QueueOption func(*SQSQueue)

// WithSQSClient sets a custom SQS client (useful for testing).
func WithSQSClient(c SQSAPI) QueueOption {
	return func(q *SQSQueue) { q.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *SQSQueue) { q.logger = l }
}

// NewSQSQueue creates a command queue over the given SQS queue URL.
func NewSQSQueue(cfg types.CommandQueueConfig, opts ...QueueOption) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("command queue URL is required")
	}
	q := &SQSQueue{
		queueURL: cfg.QueueURL,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	if q.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		q.client = sqs.NewFromConfig(awsCfg)
	}
	return q, nil
}

// Send enqueues an operator command.
func (q *SQSQueue) Send(ctx context.Context, cmd types.Command) error {
	if cmd.DeploymentID == "" {
		return fmt.Errorf("command deployment ID is required")
	}
	if cmd.RequestedAt.IsZero() {
		cmd.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &q.queueURL,
		MessageBody: strPtr(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sending %s command for %s: %w", cmd.Verb, cmd.DeploymentID, err)
	}
	return nil
}

// Drain receives pending messages and returns the commands addressed to the
// given deployment. Messages for other deployments are left in flight and
// reappear after the visibility timeout.
func (q *SQSQueue) Drain(ctx context.Context, deploymentID string) ([]types.Command, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.queueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     0,
	})
	if err != nil {
		return nil, fmt.Errorf("receiving commands: %w", err)
	}

	var commands []types.Command
	for _, msg := range out.Messages {
		if msg.Body == nil {
			continue
		}
		var cmd types.Command
		if err := json.Unmarshal([]byte(*msg.Body), &cmd); err != nil {
			q.logger.Warn("discarding malformed command message", "error", err)
			q.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}
		if cmd.DeploymentID != deploymentID {
			continue
		}
		commands = append(commands, cmd)
		q.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return commands, nil
}

func (q *SQSQueue) deleteMessage(ctx context.Context, receipt *string) {
	if receipt == nil {
		return
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: receipt,
	})
	if err != nil {
		q.logger.Warn("failed to delete command message", "error", err)
	}
}

func strPtr(s string) *string { return &s }

// NopSource yields no commands. Used when no queue is configured.
type NopSource struct{}

// Drain returns nothing.
func (NopSource) Drain(_ context.Context, _ string) ([]types.Command, error) {
	return nil, nil
}
