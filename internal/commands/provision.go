package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shiftwise/shiftwise/internal/provision"
)

const provisionTimeout = 60 * time.Second

// NewProvisionCmd creates the provision command.
func NewProvisionCmd() *cobra.Command {
	var sched provision.ScheduleConfig

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the DynamoDB table and, optionally, the controller schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(sched)
		},
	}

	cmd.Flags().StringVar(&sched.Name, "schedule-name", "", "EventBridge Scheduler schedule name")
	cmd.Flags().StringVar(&sched.ScheduleExpression, "schedule", "rate(1 minute)", "schedule expression")
	cmd.Flags().StringVar(&sched.LambdaARN, "lambda-arn", "", "controller Lambda function ARN")
	cmd.Flags().StringVar(&sched.RoleARN, "role-arn", "", "IAM role the scheduler assumes")
	return cmd
}

func runProvision(sched provision.ScheduleConfig) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), provisionTimeout)
	defer cancel()

	prov := provision.New(st)
	if err := prov.EnsureTable(ctx); err != nil {
		return err
	}
	color.Green("DynamoDB table %s ready", cfg.DynamoDB.TableName)

	if sched.Name == "" {
		return nil
	}
	sched.Region = cfg.Region
	if err := prov.EnsureSchedule(ctx, sched); err != nil {
		return err
	}
	color.Green("Schedule %s ready (%s)", sched.Name, sched.ScheduleExpression)
	return nil
}
