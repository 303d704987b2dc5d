// Package controller runs the traffic shift control loop: acquire the
// deployment lock, load state, consume operator commands, evaluate policy,
// apply weights, and persist the outcome.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shiftwise/shiftwise/internal/alert"
	"github.com/shiftwise/shiftwise/internal/balancer"
	"github.com/shiftwise/shiftwise/internal/events"
	"github.com/shiftwise/shiftwise/internal/metrics"
	"github.com/shiftwise/shiftwise/internal/opscmd"
	"github.com/shiftwise/shiftwise/internal/store"
	"github.com/shiftwise/shiftwise/internal/telemetry"
	"github.com/shiftwise/shiftwise/pkg/types"
)

const (
	defaultInterval = 30 * time.Second

	// lockTTL outlives any single cycle so a crashed controller's lock
	// expires rather than wedging the deployment.
	lockTTL = 2 * time.Minute

	// defaultFailureCap bounds consecutive apply failures before the shift
	// is declared failed.
	defaultFailureCap = 5
)

// AdapterFactory builds a weight adapter for a deployment.
type AdapterFactory func(cfg types.DeploymentConfig) (balancer.Adapter, error)

// ReaderFactory builds a metrics reader for a deployment.
type ReaderFactory func(cfg types.DeploymentConfig) (metrics.Reader, error)

// Alerter dispatches alerts. Satisfied by alert.Dispatcher.
type Alerter interface {
	Dispatch(ctx context.Context, a types.Alert)
}

// HookRunner invokes rollout gates. Satisfied by hook.LambdaRunner.
type HookRunner interface {
	Run(ctx context.Context, cfg types.HookConfig, state types.ShiftState) error
}

// Controller drives every registered deployment through its shift.
type Controller struct {
	store      store.Store
	newAdapter AdapterFactory
	newReader  ReaderFactory
	commands   opscmd.Source
	events     events.Publisher
	hooks      HookRunner
	alerts     Alerter
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	interval   time.Duration
	now        func() time.Time

	mu       sync.Mutex
	adapters map[string]balancer.Adapter
	readers  map[string]metrics.Reader

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithInterval sets the evaluation cycle interval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithCommands sets the operator command source.
func WithCommands(s opscmd.Source) Option {
	return func(c *Controller) { c.commands = s }
}

// WithEvents sets the event publisher.
func WithEvents(p events.Publisher) Option {
	return func(c *Controller) { c.events = p }
}

// WithHooks sets the rollout gate runner.
func WithHooks(h HookRunner) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithAlerts sets the alert dispatcher.
func WithAlerts(a Alerter) Option {
	return func(c *Controller) { c.alerts = a }
}

// WithTelemetry sets the Prometheus collectors.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock sets the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a Controller. The factories are invoked lazily, once per
// deployment, so a broken deployment config fails its own cycles without
// taking down the rest.
func New(st store.Store, newAdapter AdapterFactory, newReader ReaderFactory, opts ...Option) *Controller {
	c := &Controller{
		store:      st,
		newAdapter: newAdapter,
		newReader:  newReader,
		commands:   opscmd.NopSource{},
		events:     events.NopPublisher{},
		logger:     slog.Default(),
		interval:   defaultInterval,
		now:        time.Now,
		adapters:   make(map[string]balancer.Adapter),
		readers:    make(map[string]metrics.Reader),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start launches the control loop in a goroutine.
func (c *Controller) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight cycle to finish.
func (c *Controller) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("controller started", "interval", c.interval)

	// First sweep immediately rather than waiting a full interval.
	c.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller stopping", "reason", "context canceled")
			return
		case <-c.stopCh:
			c.logger.Info("controller stopping", "reason", "stop requested")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep runs one cycle for every registered deployment.
func (c *Controller) sweep(ctx context.Context) {
	deployments, err := c.store.ListDeployments(ctx)
	if err != nil {
		c.logger.Error("failed to list deployments", "error", err)
		return
	}

	for _, cfg := range deployments {
		if err := c.Cycle(ctx, cfg); err != nil {
			c.logger.Error("cycle failed", "deployment", cfg.Name, "error", err)
		}
	}
}

func (c *Controller) adapterFor(cfg types.DeploymentConfig) (balancer.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.adapters[cfg.Name]; ok {
		return a, nil
	}
	a, err := c.newAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("building adapter for %s: %w", cfg.Name, err)
	}
	c.adapters[cfg.Name] = a
	return a, nil
}

func (c *Controller) readerFor(cfg types.DeploymentConfig) (metrics.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.readers[cfg.Name]; ok {
		return r, nil
	}
	r, err := c.newReader(cfg)
	if err != nil {
		return nil, fmt.Errorf("building metrics reader for %s: %w", cfg.Name, err)
	}
	c.readers[cfg.Name] = r
	return r, nil
}

func (c *Controller) alert(ctx context.Context, level types.AlertLevel, deployment, message string) {
	if c.alerts == nil {
		return
	}
	c.alerts.Dispatch(ctx, types.Alert{
		Level:        level,
		DeploymentID: deployment,
		Message:      message,
		Timestamp:    c.now().UTC(),
	})
}

var _ Alerter = (*alert.Dispatcher)(nil)
