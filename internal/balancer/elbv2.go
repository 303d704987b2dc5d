package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/sony/gobreaker"

	"github.com/shiftwise/shiftwise/internal/backoff"
	"github.com/shiftwise/shiftwise/pkg/types"
)

// Compile-time interface satisfaction check.
var _ Adapter = (*ELBV2Adapter)(nil)

// ELBV2API is the subset of the ELBv2 client used by the adapter.
type ELBV2API interface {
	DescribeListeners(ctx context.Context, params *elbv2.DescribeListenersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeListenersOutput, error)
	ModifyListener(ctx context.Context, params *elbv2.ModifyListenerInput, optFns ...func(*elbv2.Options)) (*elbv2.ModifyListenerOutput, error)
}

// ELBV2Adapter implements Adapter against ALB weighted forward actions.
type ELBV2Adapter struct {
	client       ELBV2API
	listenerARNs []string
	greenARN     string
	blueARN      string
	retry        backoff.Policy
	breaker      *gobreaker.CircuitBreaker
	logger       *slog.Logger
}

// Option configures an ELBV2Adapter.
type Option func(*ELBV2Adapter)

// WithClient sets a custom ELBv2 client (useful for testing).
func WithClient(c ELBV2API) Option {
	return func(a *ELBV2Adapter) { a.client = c }
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *ELBV2Adapter) { a.logger = l }
}

// WithRetryPolicy overrides the throttle retry policy.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(a *ELBV2Adapter) { a.retry = p }
}

// New creates an adapter bound to one deployment's listeners and target groups.
func New(cfg types.DeploymentConfig, region string, opts ...Option) (*ELBV2Adapter, error) {
	if len(cfg.ListenerARNs) == 0 {
		return nil, fmt.Errorf("balancer: at least one listener ARN required")
	}
	if cfg.GreenTargetARN == "" || cfg.BlueTargetARN == "" {
		return nil, fmt.Errorf("balancer: blue and green target group ARNs required")
	}

	a := &ELBV2Adapter{
		listenerARNs: cfg.ListenerARNs,
		greenARN:     cfg.GreenTargetARN,
		blueARN:      cfg.BlueTargetARN,
		retry:        backoff.Default(),
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	if a.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		a.client = elbv2.NewFromConfig(awsCfg)
	}

	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "elbv2-writes:" + cfg.Name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return a, nil
}

// listenerSplit is the (green, blue) weight pair read from one listener.
type listenerSplit struct {
	arn   string
	green int
	blue  int
}

// SetWeights applies the split on all managed listeners as one logical
// transaction. Precondition: 0 <= greenWeight <= 100.
func (a *ELBV2Adapter) SetWeights(ctx context.Context, greenWeight int) error {
	if greenWeight < 0 || greenWeight > 100 {
		return fmt.Errorf("balancer: green weight %d out of range [0,100]", greenWeight)
	}

	_, err := a.breaker.Execute(func() (interface{}, error) {
		return nil, a.applyWithRetry(ctx, greenWeight)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &AdapterError{Kind: KindUnknown, Op: "SetWeights", Err: err}
	}
	return err
}

// applyWithRetry retries the whole multi-listener transaction on throttling,
// never a subset of listeners.
func (a *ELBV2Adapter) applyWithRetry(ctx context.Context, greenWeight int) error {
	for attempt := 1; ; attempt++ {
		err := a.apply(ctx, greenWeight)
		if err == nil {
			return nil
		}
		if KindOf(err) != KindThrottled || attempt >= a.retry.MaxAttempts {
			return err
		}

		wait := a.retry.Wait(attempt)
		a.logger.Warn("balancer write throttled, retrying",
			"attempt", attempt, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (a *ELBV2Adapter) apply(ctx context.Context, greenWeight int) error {
	current, err := a.describe(ctx)
	if err != nil {
		return err
	}

	// Idempotency: skip the write when every listener already matches.
	allMatch := true
	for _, s := range current {
		if s.green != greenWeight || s.blue != 100-greenWeight {
			allMatch = false
			break
		}
	}
	if allMatch {
		a.logger.Debug("weights already applied, skipping write", "green", greenWeight)
		return nil
	}

	var updated []listenerSplit
	for _, s := range current {
		if s.green == greenWeight && s.blue == 100-greenWeight {
			continue
		}
		if err := a.modify(ctx, s.arn, greenWeight); err != nil {
			// Compensate: restore previous weights on listeners already
			// written, so HTTP and HTTPS never disagree for long.
			if cerr := a.compensate(ctx, updated); cerr != nil {
				return &AdapterError{
					Kind: KindPartialApply,
					Op:   "SetWeights",
					Err:  fmt.Errorf("write failed on %s (%v); compensation failed: %w", s.arn, err, cerr),
				}
			}
			return err
		}
		updated = append(updated, s)
	}

	a.logger.Info("weights applied", "green", greenWeight, "blue", 100-greenWeight, "listeners", len(a.listenerARNs))
	return nil
}

func (a *ELBV2Adapter) compensate(ctx context.Context, updated []listenerSplit) error {
	for i := len(updated) - 1; i >= 0; i-- {
		if err := a.modify(ctx, updated[i].arn, updated[i].green); err != nil {
			return err
		}
	}
	return nil
}

func (a *ELBV2Adapter) modify(ctx context.Context, listenerARN string, greenWeight int) error {
	_, err := a.client.ModifyListener(ctx, &elbv2.ModifyListenerInput{
		ListenerArn: aws.String(listenerARN),
		DefaultActions: []elbv2types.Action{
			{
				Type: elbv2types.ActionTypeEnumForward,
				ForwardConfig: &elbv2types.ForwardActionConfig{
					TargetGroups: []elbv2types.TargetGroupTuple{
						{TargetGroupArn: aws.String(a.greenARN), Weight: aws.Int32(int32(greenWeight))},
						{TargetGroupArn: aws.String(a.blueARN), Weight: aws.Int32(int32(100 - greenWeight))},
					},
				},
			},
		},
	})
	if err != nil {
		return classify("ModifyListener", err)
	}
	return nil
}

// GetWeights reads the configured weights back for validation after a write.
func (a *ELBV2Adapter) GetWeights(ctx context.Context) (int, int, error) {
	splits, err := a.describe(ctx)
	if err != nil {
		return 0, 0, err
	}

	green, blue := splits[0].green, splits[0].blue
	for _, s := range splits[1:] {
		if s.green != green || s.blue != blue {
			return 0, 0, &AdapterError{
				Kind: KindPartialApply,
				Op:   "GetWeights",
				Err:  fmt.Errorf("listeners disagree: %s has green=%d, %s has green=%d", splits[0].arn, green, s.arn, s.green),
			}
		}
	}
	return green, blue, nil
}

func (a *ELBV2Adapter) describe(ctx context.Context) ([]listenerSplit, error) {
	out, err := a.client.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
		ListenerArns: a.listenerARNs,
	})
	if err != nil {
		return nil, classify("DescribeListeners", err)
	}
	if len(out.Listeners) != len(a.listenerARNs) {
		return nil, &AdapterError{
			Kind: KindNotFound,
			Op:   "DescribeListeners",
			Err:  fmt.Errorf("expected %d listeners, got %d", len(a.listenerARNs), len(out.Listeners)),
		}
	}

	splits := make([]listenerSplit, 0, len(out.Listeners))
	for _, l := range out.Listeners {
		green, blue, err := a.splitOf(l)
		if err != nil {
			return nil, err
		}
		splits = append(splits, listenerSplit{arn: aws.ToString(l.ListenerArn), green: green, blue: blue})
	}
	return splits, nil
}

// splitOf extracts the (green, blue) weights from a listener's default
// forward action.
func (a *ELBV2Adapter) splitOf(l elbv2types.Listener) (int, int, error) {
	for _, action := range l.DefaultActions {
		if action.Type != elbv2types.ActionTypeEnumForward || action.ForwardConfig == nil {
			continue
		}
		green, blue := -1, -1
		for _, tg := range action.ForwardConfig.TargetGroups {
			arn := aws.ToString(tg.TargetGroupArn)
			weight := int(aws.ToInt32(tg.Weight))
			switch arn {
			case a.greenARN:
				green = weight
			case a.blueARN:
				blue = weight
			}
		}
		if green < 0 || blue < 0 {
			return 0, 0, &AdapterError{
				Kind: KindNotFound,
				Op:   "DescribeListeners",
				Err:  fmt.Errorf("listener %s forward action missing managed target groups", aws.ToString(l.ListenerArn)),
			}
		}
		return green, blue, nil
	}
	return 0, 0, &AdapterError{
		Kind: KindUnknown,
		Op:   "DescribeListeners",
		Err:  fmt.Errorf("listener %s has no weighted forward action", aws.ToString(l.ListenerArn)),
	}
}
