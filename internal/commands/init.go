package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new shiftwise project",
		Long:  "Creates project scaffolding: shiftwise.yaml and a deployments directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

func runInit(projectName string) error {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Initializing shiftwise project: %s\n", projectName)

	if err := os.MkdirAll(filepath.Join(projectName, "deployments"), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	configPath := filepath.Join(projectName, "shiftwise.yaml")
	configContent := `region: us-east-1

dynamodb:
  tableName: shiftwise
  region: us-east-1
  createTable: true

server:
  addr: ":8080"

controller:
  enabled: true
  defaultInterval: 30s

# commandQueue:
#   queueUrl: https://sqs.us-east-1.amazonaws.com/ACCOUNT/shiftwise-commands

# eventBus:
#   busName: shiftwise

alerts:
  - type: console
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}

	examplePath := filepath.Join(projectName, "deployments", "example.yaml")
	exampleContent := `name: example
listenerArns:
  - arn:aws:elasticloadbalancing:us-east-1:ACCOUNT:listener/app/my-alb/LBID/LISTENERID
blueTargetArn: arn:aws:elasticloadbalancing:us-east-1:ACCOUNT:targetgroup/blue/TGID
greenTargetArn: arn:aws:elasticloadbalancing:us-east-1:ACCOUNT:targetgroup/green/TGID
loadBalancerDim: app/my-alb/LBID
greenTargetDim: targetgroup/green/TGID
windowSeconds: 300
thresholds:
  errorRateMax: 0.05
  latencyMaxSeconds: 1.0
  minHealthyRatio: 0.5
  stepPercentages: [10, 25, 50, 100]
  holdSecondsPerStep: 300
`
	if err := os.WriteFile(examplePath, []byte(exampleContent), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", examplePath, err)
	}

	color.Green("Created %s", configPath)
	color.Green("Created %s", examplePath)
	fmt.Println("\nNext steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  edit deployments/example.yaml with your ALB listeners and target groups")
	fmt.Println("  shiftwise add-deployment deployments/example.yaml")
	fmt.Println("  shiftwise serve")
	return nil
}
