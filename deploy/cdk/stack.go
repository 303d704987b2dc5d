package main

import (
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsscheduler"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

func NewShiftwiseStack(scope constructs.Construct, id string, cfg StackConfig) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, nil)

	// DynamoDB table
	table := awsdynamodb.NewTableV2(stack, jsii.String("Table"), &awsdynamodb.TablePropsV2{
		TableName: jsii.String(cfg.TableName),
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("PK"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		SortKey: &awsdynamodb.Attribute{
			Name: jsii.String("SK"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		Billing:             awsdynamodb.Billing_OnDemand(nil),
		TimeToLiveAttribute: jsii.String("ttl"),
		RemovalPolicy:       removalPolicy(cfg.DestroyOnDelete),
	})

	// Command queue
	queue := awssqs.NewQueue(stack, jsii.String("CommandQueue"), &awssqs.QueueProps{
		QueueName:         jsii.String(cfg.TableName + "-commands"),
		VisibilityTimeout: awscdk.Duration_Seconds(jsii.Number(cfg.Timeout)),
	})

	// Event bus for audit events
	bus := awsevents.NewEventBus(stack, jsii.String("EventBus"), &awsevents.EventBusProps{
		EventBusName: jsii.String(cfg.TableName + "-events"),
	})

	// SNS alert topic
	topic := awssns.NewTopic(stack, jsii.String("AlertTopic"), &awssns.TopicProps{
		TopicName: jsii.String(cfg.TableName + "-alerts"),
	})

	// Controller Lambda
	controllerFn := awslambda.NewFunction(stack, jsii.String("controller"), &awslambda.FunctionProps{
		FunctionName: jsii.String(cfg.TableName + "-controller"),
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Handler:      jsii.String("bootstrap"),
		Code:         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, "controller")), nil),
		Architecture: awslambda.Architecture_ARM_64(),
		MemorySize:   jsii.Number(cfg.MemorySize),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(cfg.Timeout)),
		Environment: &map[string]*string{
			"SHIFTWISE_TABLE":             table.TableName(),
			"SHIFTWISE_COMMAND_QUEUE_URL": queue.QueueUrl(),
			"SHIFTWISE_EVENT_BUS":         bus.EventBusName(),
			"SHIFTWISE_ALERT_TOPIC_ARN":   topic.TopicArn(),
		},
		LogRetention: logRetentionDays(cfg.LogRetentionDays),
	})

	// IAM grants
	table.GrantReadWriteData(controllerFn)
	queue.GrantConsumeMessages(controllerFn)
	bus.GrantPutEventsTo(controllerFn)
	topic.GrantPublish(controllerFn)

	// ELB weight changes, metric reads, and gate hook invocations target
	// resources named in deployment config, not known at synth time.
	controllerFn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions: &[]*string{
			jsii.String("elasticloadbalancing:DescribeListeners"),
			jsii.String("elasticloadbalancing:DescribeRules"),
			jsii.String("elasticloadbalancing:ModifyListener"),
			jsii.String("elasticloadbalancing:ModifyRule"),
		},
		Resources: &[]*string{jsii.String("*")},
	}))
	controllerFn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   &[]*string{jsii.String("cloudwatch:GetMetricData")},
		Resources: &[]*string{jsii.String("*")},
	}))
	controllerFn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   &[]*string{jsii.String("lambda:InvokeFunction")},
		Resources: &[]*string{jsii.String("*")},
	}))

	// Scheduler: one sweep per interval
	schedRole := awsiam.NewRole(stack, jsii.String("ScheduleRole"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("scheduler.amazonaws.com"), nil),
	})
	schedRole.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   &[]*string{jsii.String("lambda:InvokeFunction")},
		Resources: &[]*string{controllerFn.FunctionArn()},
	}))

	awsscheduler.NewCfnSchedule(stack, jsii.String("ControllerSchedule"), &awsscheduler.CfnScheduleProps{
		Name:               jsii.String(cfg.TableName + "-controller"),
		ScheduleExpression: jsii.String(cfg.ScheduleExpression),
		FlexibleTimeWindow: &awsscheduler.CfnSchedule_FlexibleTimeWindowProperty{
			Mode: jsii.String("OFF"),
		},
		State: jsii.String("ENABLED"),
		Target: &awsscheduler.CfnSchedule_TargetProperty{
			Arn:     controllerFn.FunctionArn(),
			RoleArn: schedRole.RoleArn(),
		},
	})

	// Stack outputs
	awscdk.NewCfnOutput(stack, jsii.String("TableName"), &awscdk.CfnOutputProps{
		Value: table.TableName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("CommandQueueUrl"), &awscdk.CfnOutputProps{
		Value: queue.QueueUrl(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("EventBusName"), &awscdk.CfnOutputProps{
		Value: bus.EventBusName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("AlertTopicArn"), &awscdk.CfnOutputProps{
		Value: topic.TopicArn(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("ControllerFunctionArn"), &awscdk.CfnOutputProps{
		Value: controllerFn.FunctionArn(),
	})

	return stack
}

func removalPolicy(destroy bool) awscdk.RemovalPolicy {
	if destroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func logRetentionDays(days float64) awslogs.RetentionDays {
	switch days {
	case 1:
		return awslogs.RetentionDays_ONE_DAY
	case 3:
		return awslogs.RetentionDays_THREE_DAYS
	case 7:
		return awslogs.RetentionDays_ONE_WEEK
	case 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case 30:
		return awslogs.RetentionDays_ONE_MONTH
	case 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_TWO_WEEKS
	}
}
