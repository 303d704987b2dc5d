// The controller Lambda runs one evaluation sweep per invocation. It is
// fired on an interval by an EventBridge Scheduler schedule, as an
// alternative to the long-running serve daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/caarlos0/env/v6"

	"github.com/shiftwise/shiftwise/internal/alert"
	"github.com/shiftwise/shiftwise/internal/balancer"
	"github.com/shiftwise/shiftwise/internal/controller"
	"github.com/shiftwise/shiftwise/internal/events"
	"github.com/shiftwise/shiftwise/internal/hook"
	"github.com/shiftwise/shiftwise/internal/metrics"
	"github.com/shiftwise/shiftwise/internal/opscmd"
	"github.com/shiftwise/shiftwise/internal/store"
	ddbstore "github.com/shiftwise/shiftwise/internal/store/dynamodb"
	"github.com/shiftwise/shiftwise/pkg/types"
)

type envConfig struct {
	TableName     string `env:"SHIFTWISE_TABLE,required"`
	Region        string `env:"AWS_REGION"`
	QueueURL      string `env:"SHIFTWISE_COMMAND_QUEUE_URL"`
	EventBusName  string `env:"SHIFTWISE_EVENT_BUS"`
	AlertTopicARN string `env:"SHIFTWISE_ALERT_TOPIC_ARN"`
}

type deps struct {
	store store.Store
	ctrl  *controller.Controller
}

var (
	initOnce sync.Once
	initErr  error
	d        deps
)

func initialize(ctx context.Context) error {
	initOnce.Do(func() {
		var cfg envConfig
		if initErr = env.Parse(&cfg); initErr != nil {
			initErr = fmt.Errorf("parsing environment: %w", initErr)
			return
		}

		st, err := ddbstore.New(&types.DynamoDBConfig{
			TableName: cfg.TableName,
			Region:    cfg.Region,
		})
		if err != nil {
			initErr = fmt.Errorf("creating store: %w", err)
			return
		}
		if initErr = st.Start(ctx); initErr != nil {
			return
		}

		opts := []controller.Option{}

		if cfg.QueueURL != "" {
			queue, err := opscmd.NewSQSQueue(types.CommandQueueConfig{
				QueueURL: cfg.QueueURL,
				Region:   cfg.Region,
			})
			if err != nil {
				initErr = fmt.Errorf("creating command queue: %w", err)
				return
			}
			opts = append(opts, controller.WithCommands(queue))
		}

		if cfg.EventBusName != "" {
			publisher, err := events.NewEventBridgePublisher(types.EventBusConfig{
				BusName: cfg.EventBusName,
				Region:  cfg.Region,
			})
			if err != nil {
				initErr = fmt.Errorf("creating event publisher: %w", err)
				return
			}
			opts = append(opts, controller.WithEvents(publisher))
		}

		alertConfigs := []types.AlertConfig{{Type: types.AlertConsole}}
		if cfg.AlertTopicARN != "" {
			alertConfigs = append(alertConfigs, types.AlertConfig{
				Type:     types.AlertSNS,
				TopicARN: cfg.AlertTopicARN,
			})
		}
		dispatcher, err := alert.NewDispatcher(alertConfigs, cfg.Region, nil)
		if err != nil {
			initErr = fmt.Errorf("creating alert dispatcher: %w", err)
			return
		}
		opts = append(opts, controller.WithAlerts(dispatcher))

		hooks, err := hook.NewLambdaRunner(cfg.Region)
		if err != nil {
			initErr = fmt.Errorf("creating hook runner: %w", err)
			return
		}
		opts = append(opts, controller.WithHooks(hooks))

		newAdapter := func(dc types.DeploymentConfig) (balancer.Adapter, error) {
			return balancer.New(dc, cfg.Region)
		}
		newReader := func(dc types.DeploymentConfig) (metrics.Reader, error) {
			return metrics.NewCloudWatchReader(dc, cfg.Region)
		}

		d = deps{
			store: st,
			ctrl:  controller.New(st, newAdapter, newReader, opts...),
		}
	})
	return initErr
}

// handle runs one cycle for every registered deployment.
func handle(ctx context.Context) error {
	if err := initialize(ctx); err != nil {
		return err
	}

	deployments, err := d.store.ListDeployments(ctx)
	if err != nil {
		return fmt.Errorf("listing deployments: %w", err)
	}

	var failed int
	for _, dep := range deployments {
		if err := d.ctrl.Cycle(ctx, dep); err != nil {
			slog.Error("cycle failed", "deployment", dep.Name, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cycles failed", failed, len(deployments))
	}
	return nil
}

func main() {
	lambda.Start(handle)
}
