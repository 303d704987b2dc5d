package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/shiftwise/pkg/types"
)

type mockLambda struct {
	response      gateResponse
	functionError *string
	err           error
	lastPayload   []byte
	lastFunction  string
}

func (m *mockLambda) Invoke(_ context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastPayload = in.Payload
	m.lastFunction = *in.FunctionName
	payload, _ := json.Marshal(m.response)
	return &lambda.InvokeOutput{Payload: payload, FunctionError: m.functionError}, nil
}

func newTestRunner(t *testing.T, mock *mockLambda) *LambdaRunner {
	t.Helper()
	r, err := NewLambdaRunner("us-east-1", WithLambdaClient(mock))
	require.NoError(t, err)
	return r
}

func gateConfig() types.HookConfig {
	return types.HookConfig{
		Type:        types.HookPreRollout,
		FunctionARN: "arn:aws:lambda:us-east-1:123:function:pre-rollout-gate",
	}
}

func TestRunProceed(t *testing.T) {
	mock := &mockLambda{response: gateResponse{Proceed: true}}
	r := newTestRunner(t, mock)

	err := r.Run(context.Background(), gateConfig(), types.ShiftState{
		DeploymentID: "api",
		Phase:        types.PhaseNotStarted,
		TargetWeight: 10,
	})
	require.NoError(t, err)

	var req gateRequest
	require.NoError(t, json.Unmarshal(mock.lastPayload, &req))
	assert.Equal(t, types.HookPreRollout, req.Hook)
	assert.Equal(t, "api", req.DeploymentID)
	assert.Equal(t, 10, req.TargetWeight)
}

func TestRunBlocked(t *testing.T) {
	mock := &mockLambda{response: gateResponse{Proceed: false, Reason: "change freeze"}}
	r := newTestRunner(t, mock)

	err := r.Run(context.Background(), gateConfig(), types.ShiftState{DeploymentID: "api"})
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	assert.Contains(t, err.Error(), "change freeze")
}

func TestRunFunctionError(t *testing.T) {
	fe := "Unhandled"
	mock := &mockLambda{functionError: &fe}
	r := newTestRunner(t, mock)

	err := r.Run(context.Background(), gateConfig(), types.ShiftState{DeploymentID: "api"})
	require.Error(t, err)
	assert.False(t, IsBlocked(err))
}

func TestRunInvokeError(t *testing.T) {
	mock := &mockLambda{err: fmt.Errorf("function not found")}
	r := newTestRunner(t, mock)

	err := r.Run(context.Background(), gateConfig(), types.ShiftState{DeploymentID: "api"})
	require.Error(t, err)
	assert.False(t, IsBlocked(err))
}
