package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shiftwise/shiftwise/internal/config"
	"github.com/shiftwise/shiftwise/pkg/types"
)

const storeTimeout = 10 * time.Second

// NewAddDeploymentCmd creates the add-deployment command.
func NewAddDeploymentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-deployment [file]",
		Short: "Register a deployment from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddDeployment(args[0])
		},
	}
}

func runAddDeployment(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var d types.DeploymentConfig
	if err := yaml.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := config.ValidateDeployment(&d); err != nil {
		return fmt.Errorf("invalid deployment %s: %w", path, err)
	}

	cfg, err := loadProject()
	if err != nil {
		return err
	}
	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer func() { _ = st.Stop(ctx) }()

	if err := st.RegisterDeployment(ctx, d); err != nil {
		return fmt.Errorf("registering deployment: %w", err)
	}

	color.Green("Registered deployment %s (%d listeners, steps %v)",
		d.Name, len(d.ListenerARNs), d.Thresholds.StepPercentages)
	return nil
}
