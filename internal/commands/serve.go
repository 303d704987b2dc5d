package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shiftwise/shiftwise/internal/controller"
	"github.com/shiftwise/shiftwise/internal/events"
	"github.com/shiftwise/shiftwise/internal/hook"
	"github.com/shiftwise/shiftwise/internal/server"
	"github.com/shiftwise/shiftwise/internal/telemetry"
	"github.com/shiftwise/shiftwise/pkg/types"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the shiftwise controller and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer func() { _ = st.Stop(context.Background()) }()

	// Register deployments declared inline in the project file.
	for _, d := range cfg.Deployments {
		if err := st.RegisterDeployment(ctx, d); err != nil {
			return fmt.Errorf("registering deployment %s: %w", d.Name, err)
		}
	}

	// Telemetry
	promMetrics := telemetry.NewMetrics()
	if cfg.Telemetry != nil {
		shutdown, err := telemetry.InitOTel(ctx, *cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		if shutdown != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(shutdownCtx)
			}()
		}
	}

	// Alerts
	dispatcher, err := newDispatcher(cfg)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}

	// Operator command queue
	queue, err := newQueue(cfg)
	if err != nil {
		return fmt.Errorf("creating command queue: %w", err)
	}

	// Event bus
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.EventBus != nil && cfg.EventBus.BusName != "" {
		eb := *cfg.EventBus
		if eb.Region == "" {
			eb.Region = cfg.Region
		}
		publisher, err = events.NewEventBridgePublisher(eb)
		if err != nil {
			return fmt.Errorf("creating event publisher: %w", err)
		}
	}

	// Controller
	var ctrl *controller.Controller
	if cfg.Controller == nil || cfg.Controller.Enabled {
		opts := []controller.Option{
			controller.WithAlerts(dispatcher),
			controller.WithEvents(publisher),
			controller.WithTelemetry(promMetrics),
		}
		if queue != nil {
			opts = append(opts, controller.WithCommands(queue))
		}
		if cfg.Controller != nil && cfg.Controller.DefaultInterval != "" {
			if d, err := time.ParseDuration(cfg.Controller.DefaultInterval); err == nil {
				opts = append(opts, controller.WithInterval(d))
			}
		}
		hooks, err := hook.NewLambdaRunner(cfg.Region)
		if err != nil {
			return fmt.Errorf("creating hook runner: %w", err)
		}
		opts = append(opts, controller.WithHooks(hooks))

		ctrl = controller.New(st, adapterFactory(cfg.Region), readerFactory(cfg.Region), opts...)
		ctrl.Start(ctx)
		defer ctrl.Stop()
	}

	// HTTP API
	serverCfg := types.ServerConfig{}
	if cfg.Server != nil {
		serverCfg = *cfg.Server
	}
	srvOpts := []server.Option{server.WithTelemetry(promMetrics)}
	if queue != nil {
		var sender server.CommandSender = queue
		srvOpts = append(srvOpts, server.WithCommands(sender))
	}
	srv := server.New(st, serverCfg, srvOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		color.Yellow("\nShutting down...")
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return err
	}
	color.Green("Stopped gracefully")
	return nil
}
