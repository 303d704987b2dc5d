// Package commands implements the CLI subcommands for the shiftwise binary.
package commands

import (
	"fmt"

	"github.com/shiftwise/shiftwise/internal/alert"
	"github.com/shiftwise/shiftwise/internal/balancer"
	"github.com/shiftwise/shiftwise/internal/config"
	"github.com/shiftwise/shiftwise/internal/metrics"
	"github.com/shiftwise/shiftwise/internal/opscmd"
	ddbstore "github.com/shiftwise/shiftwise/internal/store/dynamodb"
	"github.com/shiftwise/shiftwise/pkg/types"
)

// loadProject reads the project config from the working directory.
func loadProject() (*types.ProjectConfig, error) {
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newStore creates the DynamoDB store from project config.
func newStore(cfg *types.ProjectConfig) (*ddbstore.DynamoDBStore, error) {
	ddb := cfg.DynamoDB
	if ddb.Region == "" {
		ddb.Region = cfg.Region
	}
	return ddbstore.New(ddb)
}

// newQueue creates the SQS command queue, or nil when none is configured.
func newQueue(cfg *types.ProjectConfig) (*opscmd.SQSQueue, error) {
	if cfg.CommandQueue == nil || cfg.CommandQueue.QueueURL == "" {
		return nil, nil
	}
	qc := *cfg.CommandQueue
	if qc.Region == "" {
		qc.Region = cfg.Region
	}
	return opscmd.NewSQSQueue(qc)
}

// newDispatcher creates the alert dispatcher. Defaults to console-only when
// nothing is configured.
func newDispatcher(cfg *types.ProjectConfig) (*alert.Dispatcher, error) {
	alerts := cfg.Alerts
	if len(alerts) == 0 {
		alerts = []types.AlertConfig{{Type: types.AlertConsole}}
	}
	return alert.NewDispatcher(alerts, cfg.Region, nil)
}

// adapterFactory builds ELBv2 adapters for deployments.
func adapterFactory(region string) func(types.DeploymentConfig) (balancer.Adapter, error) {
	return func(d types.DeploymentConfig) (balancer.Adapter, error) {
		return balancer.New(d, region)
	}
}

// readerFactory builds CloudWatch readers for deployments.
func readerFactory(region string) func(types.DeploymentConfig) (metrics.Reader, error) {
	return func(d types.DeploymentConfig) (metrics.Reader, error) {
		return metrics.NewCloudWatchReader(d, region)
	}
}
