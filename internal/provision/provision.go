// Package provision creates the AWS resources shiftwise needs: the DynamoDB
// table and, for Lambda deployments, the EventBridge Scheduler schedule that
// fires the controller on an interval.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedtypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"

	"github.com/shiftwise/shiftwise/internal/store"
)

// ScheduleConfig describes the controller invocation schedule.
type ScheduleConfig struct {
	Name               string // schedule name, e.g. "shiftwise-controller"
	ScheduleExpression string // e.g. "rate(1 minute)"
	LambdaARN          string
	RoleARN            string // role EventBridge Scheduler assumes to invoke
	Region             string
}

// SchedulerAPI is the subset of the EventBridge Scheduler client used here.
type SchedulerAPI interface {
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	UpdateSchedule(ctx context.Context, params *scheduler.UpdateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.UpdateScheduleOutput, error)
}

// Provisioner creates project infrastructure idempotently.
type Provisioner struct {
	store     store.Store
	scheduler SchedulerAPI
	logger    *slog.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithSchedulerClient sets a custom Scheduler client (useful for testing).
func WithSchedulerClient(c SchedulerAPI) Option {
	return func(p *Provisioner) { p.scheduler = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// New creates a Provisioner.
func New(st store.Store, opts ...Option) *Provisioner {
	p := &Provisioner{
		store:  st,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// EnsureTable brings up the store, creating the DynamoDB table when the store
// is configured to do so.
func (p *Provisioner) EnsureTable(ctx context.Context) error {
	if err := p.store.Start(ctx); err != nil {
		return fmt.Errorf("provisioning table: %w", err)
	}
	p.logger.Info("store ready")
	return nil
}

// EnsureSchedule creates or updates the schedule that triggers the controller
// Lambda.
func (p *Provisioner) EnsureSchedule(ctx context.Context, cfg ScheduleConfig) error {
	if cfg.Name == "" || cfg.ScheduleExpression == "" {
		return fmt.Errorf("schedule name and expression are required")
	}
	if cfg.LambdaARN == "" || cfg.RoleARN == "" {
		return fmt.Errorf("lambda ARN and role ARN are required")
	}

	if p.scheduler == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		p.scheduler = scheduler.NewFromConfig(awsCfg)
	}

	target := &schedtypes.Target{
		Arn:     aws.String(cfg.LambdaARN),
		RoleArn: aws.String(cfg.RoleARN),
	}
	window := &schedtypes.FlexibleTimeWindow{
		Mode: schedtypes.FlexibleTimeWindowModeOff,
	}

	_, err := p.scheduler.CreateSchedule(ctx, &scheduler.CreateScheduleInput{
		Name:               aws.String(cfg.Name),
		ScheduleExpression: aws.String(cfg.ScheduleExpression),
		Target:             target,
		FlexibleTimeWindow: window,
		State:              schedtypes.ScheduleStateEnabled,
	})
	if err != nil {
		var conflict *schedtypes.ConflictException
		if !errors.As(err, &conflict) {
			return fmt.Errorf("creating schedule %s: %w", cfg.Name, err)
		}
		// Already exists: converge it to the requested expression and target.
		_, err = p.scheduler.UpdateSchedule(ctx, &scheduler.UpdateScheduleInput{
			Name:               aws.String(cfg.Name),
			ScheduleExpression: aws.String(cfg.ScheduleExpression),
			Target:             target,
			FlexibleTimeWindow: window,
			State:              schedtypes.ScheduleStateEnabled,
		})
		if err != nil {
			return fmt.Errorf("updating schedule %s: %w", cfg.Name, err)
		}
	}

	p.logger.Info("schedule ready", "name", cfg.Name, "expression", cfg.ScheduleExpression)
	return nil
}
