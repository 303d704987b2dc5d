package alert

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// SNSAPI is the subset of the SNS client used by the sink.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes alerts to an SNS topic.
type SNSSink struct {
	client   SNSAPI
	topicARN string
}

// SNSOption configures an SNSSink.
type SNSOption func(*SNSSink)

// WithSNSClient sets a custom SNS client (useful for testing).
func WithSNSClient(c SNSAPI) SNSOption {
	return func(s *SNSSink) { s.client = c }
}

// NewSNSSink creates an SNS sink for the given topic.
func NewSNSSink(cfg types.AlertConfig, region string, opts ...SNSOption) (*SNSSink, error) {
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	s := &SNSSink{topicARN: cfg.TopicARN}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = sns.NewFromConfig(awsCfg)
	}
	return s, nil
}

// Name identifies the sink in logs.
func (s *SNSSink) Name() string { return "sns" }

// Send publishes the alert to the topic.
func (s *SNSSink) Send(ctx context.Context, alert types.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}
	subject := fmt.Sprintf("[shiftwise][%s] %s", alert.Level, alert.DeploymentID)
	message := string(body)

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &s.topicARN,
		Subject:  &subject,
		Message:  &message,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", s.topicARN, err)
	}
	return nil
}
