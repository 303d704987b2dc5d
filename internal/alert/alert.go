// Package alert dispatches shift alerts to configured sinks.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// Sink delivers an alert to one destination.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
	Name() string
}

// Dispatcher fans an alert out to every configured sink. Sink failures are
// logged and do not stop delivery to the remaining sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher builds a dispatcher from alert configurations.
func NewDispatcher(configs []types.AlertConfig, region string, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}

	for _, cfg := range configs {
		sink, err := newSink(cfg, region, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring %s alert sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

func newSink(cfg types.AlertConfig, region string, logger *slog.Logger) (Sink, error) {
	switch cfg.Type {
	case types.AlertConsole:
		return NewConsoleSink(), nil
	case types.AlertFile:
		return NewFileSink(cfg.Path)
	case types.AlertWebhook:
		return NewWebhookSink(cfg, region)
	case types.AlertSNS:
		return NewSNSSink(cfg, region)
	default:
		return nil, fmt.Errorf("unknown alert sink type %q", cfg.Type)
	}
}

// Dispatch sends the alert to all sinks.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, alert); err != nil {
			d.logger.Warn("alert delivery failed", "sink", sink.Name(), "error", err)
		}
	}
}

// SinkCount returns the number of configured sinks.
func (d *Dispatcher) SinkCount() int {
	return len(d.sinks)
}
