package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/shiftwise/pkg/types"
)

type mockCloudWatch struct {
	values map[string][]float64 // query id -> datapoints
	err    error
	calls  int
}

func (m *mockCloudWatch) GetMetricData(_ context.Context, params *cloudwatch.GetMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var results []cwtypes.MetricDataResult
	for _, q := range params.MetricDataQueries {
		id := aws.ToString(q.Id)
		results = append(results, cwtypes.MetricDataResult{
			Id:     aws.String(id),
			Values: m.values[id],
		})
	}
	return &cloudwatch.GetMetricDataOutput{MetricDataResults: results}, nil
}

type mockTargetHealth struct {
	healthy int
	total   int
	err     error
}

func (m *mockTargetHealth) DescribeTargetHealth(_ context.Context, _ *elbv2.DescribeTargetHealthInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	var descs []elbv2types.TargetHealthDescription
	for i := 0; i < m.total; i++ {
		state := elbv2types.TargetHealthStateEnumUnhealthy
		if i < m.healthy {
			state = elbv2types.TargetHealthStateEnumHealthy
		}
		descs = append(descs, elbv2types.TargetHealthDescription{
			TargetHealth: &elbv2types.TargetHealth{State: state},
		})
	}
	return &elbv2.DescribeTargetHealthOutput{TargetHealthDescriptions: descs}, nil
}

func readerConfig() types.DeploymentConfig {
	return types.DeploymentConfig{
		Name:            "checkout",
		LoadBalancerDim: "app/my-alb/abc123",
		GreenTargetDim:  "targetgroup/green/def456",
		GreenTargetARN:  "arn:aws:elasticloadbalancing:us-east-1:123:targetgroup/green/def456",
	}
}

func newTestReader(t *testing.T, cw CloudWatchAPI, th TargetHealthAPI) *CloudWatchReader {
	t.Helper()
	r, err := NewCloudWatchReader(readerConfig(), "us-east-1",
		WithCloudWatchClient(cw),
		WithTargetHealthClient(th),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
	require.NoError(t, err)
	return r
}

func TestRead_AggregatesSnapshot(t *testing.T) {
	cw := &mockCloudWatch{values: map[string][]float64{
		"req":    {10000},
		"elb5xx": {50},
		"tgt5xx": {150},
		"lat":    {0.42},
	}}
	r := newTestReader(t, cw, &mockTargetHealth{healthy: 3, total: 4})

	snap, err := r.Read(context.Background(), 300)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, snap.ErrorRate, 1e-9)
	assert.InDelta(t, 0.42, snap.PLatencySeconds, 1e-9)
	assert.InDelta(t, 0.75, snap.HealthyTargetRatio, 1e-9)
	assert.Equal(t, 300, snap.WindowSeconds)
	assert.Equal(t, float64(10000), snap.RequestCount)
}

func TestRead_MultipleDatapoints(t *testing.T) {
	// A window split across period boundaries yields more than one datapoint
	// per series. Counts sum; the p99 series must stay representative.
	cw := &mockCloudWatch{values: map[string][]float64{
		"req":    {6000, 4000},
		"elb5xx": {30, 20},
		"tgt5xx": {100, 50},
		"lat":    {0.42, 0.40},
	}}
	r := newTestReader(t, cw, &mockTargetHealth{healthy: 4, total: 4})

	snap, err := r.Read(context.Background(), 300)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, snap.ErrorRate, 1e-9)
	assert.Equal(t, float64(10000), snap.RequestCount)
	assert.InDelta(t, 0.42, snap.PLatencySeconds, 1e-9,
		"latency must be the worst datapoint, not a sum of percentiles")
}

func TestRead_NoRequestData(t *testing.T) {
	cw := &mockCloudWatch{values: map[string][]float64{}}
	r := newTestReader(t, cw, &mockTargetHealth{healthy: 1, total: 1})

	_, err := r.Read(context.Background(), 300)
	require.Error(t, err)
	assert.True(t, IsNoData(err))
}

func TestRead_NoRegisteredTargets(t *testing.T) {
	cw := &mockCloudWatch{values: map[string][]float64{"req": {100}}}
	r := newTestReader(t, cw, &mockTargetHealth{healthy: 0, total: 0})

	_, err := r.Read(context.Background(), 300)
	require.Error(t, err)
	assert.True(t, IsNoData(err))
}

func TestRead_Throttled(t *testing.T) {
	cw := &mockCloudWatch{err: &smithy.GenericAPIError{Code: "Throttling"}}
	r := newTestReader(t, cw, &mockTargetHealth{healthy: 1, total: 1})
	r.retry.BaseSeconds = 0.001

	_, err := r.Read(context.Background(), 300)
	require.Error(t, err)
	assert.False(t, IsNoData(err))
	// Throttled reads are retried up to the attempt cap.
	assert.Equal(t, r.retry.MaxAttempts, cw.calls)
}

func TestRead_InvalidWindow(t *testing.T) {
	r := newTestReader(t, &mockCloudWatch{}, &mockTargetHealth{})
	_, err := r.Read(context.Background(), 0)
	assert.Error(t, err)
}
