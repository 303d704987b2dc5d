package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shiftwise/shiftwise/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "shiftwise",
		Short: "Progressive traffic shift controller for blue/green deployments",
		Long: `Shiftwise moves weighted ALB traffic from a blue (current) target group to
a green (new) one in configured steps, watching CloudWatch health signals at
each step. Unhealthy signals, or prolonged silence from the metrics source,
roll traffic back to blue automatically.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewAddDeploymentCmd(),
		commands.NewStartCmd(),
		commands.NewAbortCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
		commands.NewProvisionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
