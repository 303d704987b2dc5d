// Package metrics reads aggregate health signals for the green target group
// over a trailing window. Read-only; no side effects.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/shiftwise/shiftwise/internal/backoff"
	"github.com/shiftwise/shiftwise/pkg/types"
)

// Reader produces a MetricsSnapshot for an evaluation cycle.
type Reader interface {
	Read(ctx context.Context, windowSeconds int) (*types.MetricsSnapshot, error)
}

// readTimeout caps every metrics read. Reads are safely retryable.
const readTimeout = 10 * time.Second

const elbNamespace = "AWS/ApplicationELB"

// CloudWatchAPI is the subset of the CloudWatch client used by the reader.
type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// TargetHealthAPI is the subset of the ELBv2 client used for healthy-host counts.
type TargetHealthAPI interface {
	DescribeTargetHealth(ctx context.Context, params *elbv2.DescribeTargetHealthInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error)
}

// Compile-time interface satisfaction check.
var _ Reader = (*CloudWatchReader)(nil)

// CloudWatchReader aggregates ALB metrics and target health into a snapshot.
type CloudWatchReader struct {
	cw     CloudWatchAPI
	elb    TargetHealthAPI
	lbDim  string
	tgDim  string
	tgARN  string
	retry  backoff.Policy
	logger *slog.Logger
	now    func() time.Time
}

// ReaderOption configures a CloudWatchReader.
type ReaderOption func(*CloudWatchReader)

// WithCloudWatchClient sets a custom CloudWatch client (useful for testing).
func WithCloudWatchClient(c CloudWatchAPI) ReaderOption {
	return func(r *CloudWatchReader) { r.cw = c }
}

// WithTargetHealthClient sets a custom ELBv2 client (useful for testing).
func WithTargetHealthClient(c TargetHealthAPI) ReaderOption {
	return func(r *CloudWatchReader) { r.elb = c }
}

// WithLogger sets the reader logger.
func WithLogger(l *slog.Logger) ReaderOption {
	return func(r *CloudWatchReader) { r.logger = l }
}

// WithClock overrides the time source (useful for testing).
func WithClock(now func() time.Time) ReaderOption {
	return func(r *CloudWatchReader) { r.now = now }
}

// NewCloudWatchReader creates a reader for one deployment's green target group.
func NewCloudWatchReader(cfg types.DeploymentConfig, region string, opts ...ReaderOption) (*CloudWatchReader, error) {
	if cfg.LoadBalancerDim == "" || cfg.GreenTargetDim == "" {
		return nil, fmt.Errorf("metrics: loadBalancerDim and greenTargetDim required")
	}

	r := &CloudWatchReader{
		lbDim:  cfg.LoadBalancerDim,
		tgDim:  cfg.GreenTargetDim,
		tgARN:  cfg.GreenTargetARN,
		retry:  backoff.Default(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}

	if r.cw == nil || r.elb == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		if r.cw == nil {
			r.cw = cloudwatch.NewFromConfig(awsCfg)
		}
		if r.elb == nil {
			r.elb = elbv2.NewFromConfig(awsCfg)
		}
	}
	return r, nil
}

// Read aggregates error rate, latency, and healthy-host ratio over the window.
func (r *CloudWatchReader) Read(ctx context.Context, windowSeconds int) (*types.MetricsSnapshot, error) {
	if windowSeconds <= 0 {
		return nil, &MetricsError{Kind: KindUnknown, Op: "Read", Err: fmt.Errorf("window must be positive, got %d", windowSeconds)}
	}

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var snap *types.MetricsSnapshot
	err := r.withRetry(ctx, func() error {
		var err error
		snap, err = r.read(ctx, windowSeconds)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// withRetry retries throttled reads; reads are idempotent.
func (r *CloudWatchReader) withRetry(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var me *MetricsError
		if !errors.As(err, &me) || me.Kind != KindThrottled || attempt >= r.retry.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retry.Wait(attempt)):
		}
	}
}

func (r *CloudWatchReader) read(ctx context.Context, windowSeconds int) (*types.MetricsSnapshot, error) {
	now := r.now()
	start := now.Add(-time.Duration(windowSeconds) * time.Second)
	period := int32(windowSeconds)

	lbDims := []cwtypes.Dimension{
		{Name: aws.String("LoadBalancer"), Value: aws.String(r.lbDim)},
	}
	tgDims := []cwtypes.Dimension{
		{Name: aws.String("LoadBalancer"), Value: aws.String(r.lbDim)},
		{Name: aws.String("TargetGroup"), Value: aws.String(r.tgDim)},
	}

	out, err := r.cw.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
		StartTime: aws.Time(start),
		EndTime:   aws.Time(now),
		MetricDataQueries: []cwtypes.MetricDataQuery{
			query("req", "RequestCount", "Sum", lbDims, period),
			query("elb5xx", "HTTPCode_ELB_5XX_Count", "Sum", lbDims, period),
			query("tgt5xx", "HTTPCode_Target_5XX_Count", "Sum", tgDims, period),
			query("lat", "TargetResponseTime", "p99", tgDims, period),
		},
	})
	if err != nil {
		return nil, classify("GetMetricData", err)
	}

	sums := map[string]float64{}
	seen := map[string]bool{}
	var p99 float64
	for _, res := range out.MetricDataResults {
		id := aws.ToString(res.Id)
		for _, v := range res.Values {
			seen[id] = true
			// Percentiles do not sum across datapoints; keep the worst one.
			if id == "lat" {
				p99 = max(p99, v)
				continue
			}
			sums[id] += v
		}
	}

	// No request datapoints at all: the window is empty, not healthy.
	if !seen["req"] || sums["req"] == 0 {
		return nil, &MetricsError{Kind: KindNoData, Op: "GetMetricData", Err: fmt.Errorf("no request datapoints in %ds window", windowSeconds)}
	}

	healthy, total, err := r.targetHealth(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, &MetricsError{Kind: KindNoData, Op: "DescribeTargetHealth", Err: fmt.Errorf("target group has no registered targets")}
	}

	snap := &types.MetricsSnapshot{
		HealthyTargetRatio: float64(healthy) / float64(total),
		ErrorRate:          (sums["elb5xx"] + sums["tgt5xx"]) / sums["req"],
		PLatencySeconds:    p99,
		RequestCount:       sums["req"],
		WindowSeconds:      windowSeconds,
		EvaluatedAt:        now,
	}
	r.logger.Debug("metrics snapshot",
		"requests", snap.RequestCount,
		"errorRate", snap.ErrorRate,
		"p99", snap.PLatencySeconds,
		"healthyRatio", snap.HealthyTargetRatio)
	return snap, nil
}

func (r *CloudWatchReader) targetHealth(ctx context.Context) (healthy, total int, err error) {
	out, err := r.elb.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(r.tgARN),
	})
	if err != nil {
		return 0, 0, classify("DescribeTargetHealth", err)
	}
	for _, d := range out.TargetHealthDescriptions {
		total++
		if d.TargetHealth != nil && d.TargetHealth.State == elbv2types.TargetHealthStateEnumHealthy {
			healthy++
		}
	}
	return healthy, total, nil
}

func query(id, metricName, stat string, dims []cwtypes.Dimension, period int32) cwtypes.MetricDataQuery {
	return cwtypes.MetricDataQuery{
		Id: aws.String(id),
		MetricStat: &cwtypes.MetricStat{
			Metric: &cwtypes.Metric{
				Namespace:  aws.String(elbNamespace),
				MetricName: aws.String(metricName),
				Dimensions: dims,
			},
			Period: aws.Int32(period),
			Stat:   aws.String(stat),
		},
	}
}
