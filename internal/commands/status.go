package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shiftwise/shiftwise/internal/store"
	"github.com/shiftwise/shiftwise/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var deployment string

	cmd := &cobra.Command{
		Use:   "status [deployment]",
		Short: "Show deployment shift status and recent history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				deployment = args[0]
			}
			return runStatus(deployment)
		},
	}
	return cmd
}

func runStatus(deployment string) error {
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

	if deployment != "" {
		return showDeployment(ctx, st, deployment)
	}
	return showAllDeployments(ctx, st)
}

func showAllDeployments(ctx context.Context, st store.Store) error {
	deployments, err := st.ListDeployments(ctx)
	if err != nil {
		return fmt.Errorf("listing deployments: %w", err)
	}
	if len(deployments) == 0 {
		fmt.Println("No deployments registered.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println("Registered Deployments:")
	for _, d := range deployments {
		state, err := st.GetState(ctx, d.Name)
		if err != nil {
			return fmt.Errorf("loading state for %s: %w", d.Name, err)
		}
		phase := types.PhaseNotStarted
		weight := 0
		if state != nil {
			phase = state.Phase
			weight = state.CurrentWeight
		}
		fmt.Printf("  %-24s %s  green=%d%%\n", d.Name, paintPhase(phase), weight)
	}
	return nil
}

func showDeployment(ctx context.Context, st store.Store, name string) error {
	d, err := st.GetDeployment(ctx, name)
	if err != nil {
		return fmt.Errorf("loading deployment: %w", err)
	}
	if d == nil {
		return fmt.Errorf("deployment %q is not registered", name)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Deployment: %s\n", name)
	fmt.Printf("  Listeners: %d\n", len(d.ListenerARNs))
	fmt.Printf("  Steps:     %v (hold %ds)\n", d.Thresholds.StepPercentages, d.Thresholds.HoldSecondsPerStep)

	state, err := st.GetState(ctx, name)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	if state == nil {
		fmt.Println("  No shift has been started.")
		return nil
	}

	fmt.Printf("  Phase:     %s\n", paintPhase(state.Phase))
	fmt.Printf("  Weight:    green=%d%% blue=%d%%\n", state.CurrentWeight, 100-state.CurrentWeight)
	fmt.Printf("  Since:     %s\n", state.PhaseStartedAt.Format(time.RFC3339))
	if state.ConsecutiveFailures > 0 {
		color.Yellow("  Failures:  %d consecutive", state.ConsecutiveFailures)
	}
	if state.LastError != "" {
		color.Red("  LastError: %s", state.LastError)
	}

	history, err := st.ListHistory(ctx, name, 10)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if len(history) > 0 {
		_, _ = bold.Println("\nRecent history (newest first):")
		for _, h := range history {
			fmt.Printf("  %s  %-12s %3d%%  %s\n",
				h.Timestamp.Format("2006-01-02 15:04:05"), h.Phase, h.Weight, h.Note)
		}
	}
	return nil
}

func paintPhase(phase types.ShiftPhase) string {
	switch phase {
	case types.PhasePromoted:
		return color.GreenString(string(phase))
	case types.PhaseFailed:
		return color.RedString(string(phase))
	case types.PhaseRollingBack:
		return color.YellowString(string(phase))
	case types.PhaseMonitoring, types.PhaseDeploying:
		return color.CyanString(string(phase))
	default:
		return string(phase)
	}
}
