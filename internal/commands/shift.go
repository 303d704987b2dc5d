package commands

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// NewStartCmd creates the start command.
func NewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [deployment]",
		Short: "Start a traffic shift for a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueue(types.CommandStart, args[0])
		},
	}
}

// NewAbortCmd creates the abort command.
func NewAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort [deployment]",
		Short: "Abort an active shift and roll traffic back to blue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueue(types.CommandAbort, args[0])
		},
	}
}

// enqueue sends an operator command through the SQS queue. The controller
// picks it up at its next cycle boundary; nothing is mutated directly.
func enqueue(verb types.CommandVerb, deployment string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	queue, err := newQueue(cfg)
	if err != nil {
		return fmt.Errorf("creating command queue: %w", err)
	}
	if queue == nil {
		return fmt.Errorf("no commandQueue configured in shiftwise.yaml; the %s command needs one", verb)
	}

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	dep, err := st.GetDeployment(ctx, deployment)
	if err != nil {
		return fmt.Errorf("looking up deployment: %w", err)
	}
	if dep == nil {
		return fmt.Errorf("deployment %q is not registered", deployment)
	}

	cmd := types.Command{
		Verb:         verb,
		DeploymentID: deployment,
		RequestedBy:  currentUser(),
		RequestedAt:  time.Now().UTC(),
	}
	if err := queue.Send(ctx, cmd); err != nil {
		return fmt.Errorf("enqueueing command: %w", err)
	}

	switch verb {
	case types.CommandStart:
		color.Green("Start queued for %s. The controller begins at its next cycle.", deployment)
	case types.CommandAbort:
		color.Yellow("Abort queued for %s. Traffic rolls back to blue at the next cycle boundary.", deployment)
	}
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}
