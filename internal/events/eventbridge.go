// Package events publishes shift lifecycle events to an EventBridge bus so
// other systems (deploy pipelines, dashboards, paging) can react to phase
// changes without polling the store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/shiftwise/shiftwise/pkg/types"
)

const eventSource = "shiftwise.controller"

// Publisher emits shift events to interested consumers. Publishing is best
// effort; a failed publish never blocks or fails a cycle.
type Publisher interface {
	Publish(ctx context.Context, event types.Event)
}

// EventBridgeAPI is the subset of the EventBridge client used by the publisher.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ Publisher = (*EventBridgePublisher)(nil)

// EventBridgePublisher sends events to a named EventBridge bus.
type EventBridgePublisher struct {
	client  EventBridgeAPI
	busName string
	logger  *slog.Logger
}

// PublisherOption configures an EventBridgePublisher.
type PublisherOption func(*EventBridgePublisher)

// WithEventBridgeClient sets a custom EventBridge client (useful for testing).
func WithEventBridgeClient(c EventBridgeAPI) PublisherOption {
	return func(p *EventBridgePublisher) { p.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) PublisherOption {
	return func(p *EventBridgePublisher) { p.logger = l }
}

// NewEventBridgePublisher creates a publisher for the given bus.
func NewEventBridgePublisher(cfg types.EventBusConfig, opts ...PublisherOption) (*EventBridgePublisher, error) {
	if cfg.BusName == "" {
		return nil, fmt.Errorf("event bus name is required")
	}
	p := &EventBridgePublisher{
		busName: cfg.BusName,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		p.client = eventbridge.NewFromConfig(awsCfg)
	}
	return p, nil
}

// Publish sends one event to the bus. Failures are logged, never returned:
// the audit trail in the store is authoritative, the bus is a convenience.
func (p *EventBridgePublisher) Publish(ctx context.Context, event types.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	detail, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", "kind", event.Kind, "error", err)
		return
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{
			{
				EventBusName: &p.busName,
				Source:       aws.String(eventSource),
				DetailType:   aws.String(string(event.Kind)),
				Detail:       aws.String(string(detail)),
				Time:         &event.Timestamp,
			},
		},
	})
	if err != nil {
		p.logger.Warn("event publish failed", "kind", event.Kind, "deployment", event.DeploymentID, "error", err)
		return
	}
	if out.FailedEntryCount > 0 {
		p.logger.Warn("event publish rejected", "kind", event.Kind, "deployment", event.DeploymentID)
	}
}

// NopPublisher discards events. Used when no bus is configured.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(_ context.Context, _ types.Event) {}
