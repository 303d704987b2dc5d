package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg := DefaultConfig()

	if name := os.Getenv("SHIFTWISE_TABLE_NAME"); name != "" {
		cfg.TableName = name
	}
	if expr := os.Getenv("SHIFTWISE_SCHEDULE"); expr != "" {
		cfg.ScheduleExpression = expr
	}
	cfg.DestroyOnDelete = os.Getenv("SHIFTWISE_DESTROY_ON_DELETE") == "true"

	stackName := "ShiftwiseStack"
	if name := os.Getenv("SHIFTWISE_STACK_NAME"); name != "" {
		stackName = name
	}

	NewShiftwiseStack(app, stackName, cfg)
	app.Synth(nil)
}
