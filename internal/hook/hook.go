// Package hook runs operator-supplied rollout gates. A gate is a Lambda
// function invoked synchronously at defined points of a shift (before the
// first weight write, before final promotion); it must answer proceed or
// block.
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// defaultTimeout bounds a gate invocation when the hook config sets none.
const defaultTimeout = 30 * time.Second

// Runner invokes a rollout gate and reports whether the shift may proceed.
type Runner interface {
	// Run invokes the gate. A nil error means proceed; a BlockedError means
	// the gate answered no; any other error means the gate itself failed.
	Run(ctx context.Context, cfg types.HookConfig, state types.ShiftState) error
}

// BlockedError indicates a gate explicitly refused to let the shift proceed.
type BlockedError struct {
	Hook   types.HookType
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("hook %s blocked: %s", e.Hook, e.Reason)
}

// IsBlocked reports whether the error is a gate refusal rather than an
// invocation failure.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// LambdaAPI is the subset of the Lambda client used by the runner.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

var _ Runner = (*LambdaRunner)(nil)

// LambdaRunner invokes gates as synchronous Lambda calls.
type LambdaRunner struct {
	client LambdaAPI
	logger *slog.Logger
}

// RunnerOption configures a LambdaRunner.
type RunnerOption func(*LambdaRunner)

// WithLambdaClient sets a custom Lambda client (useful for testing).
func WithLambdaClient(c LambdaAPI) RunnerOption {
	return func(r *LambdaRunner) { r.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *LambdaRunner) { r.logger = l }
}

// NewLambdaRunner creates a gate runner.
func NewLambdaRunner(region string, opts ...RunnerOption) (*LambdaRunner, error) {
	r := &LambdaRunner{logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		r.client = lambda.NewFromConfig(awsCfg)
	}
	return r, nil
}

// gateRequest is the payload delivered to the gate function.
type gateRequest struct {
	Hook          types.HookType   `json:"hook"`
	DeploymentID  string           `json:"deploymentId"`
	Phase         types.ShiftPhase `json:"phase"`
	CurrentWeight int              `json:"currentWeight"`
	TargetWeight  int              `json:"targetWeight"`
}

// gateResponse is the answer expected back from the gate function.
type gateResponse struct {
	Proceed bool   `json:"proceed"`
	Reason  string `json:"reason,omitempty"`
}

// Run invokes the gate function and interprets its answer.
func (r *LambdaRunner) Run(ctx context.Context, cfg types.HookConfig, state types.ShiftState) error {
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(gateRequest{
		Hook:          cfg.Type,
		DeploymentID:  state.DeploymentID,
		Phase:         state.Phase,
		CurrentWeight: state.CurrentWeight,
		TargetWeight:  state.TargetWeight,
	})
	if err != nil {
		return fmt.Errorf("marshaling hook payload: %w", err)
	}

	out, err := r.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: &cfg.FunctionARN,
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("invoking hook %s: %w", cfg.Type, err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("hook %s function error: %s", cfg.Type, *out.FunctionError)
	}

	var resp gateResponse
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return fmt.Errorf("decoding hook %s response: %w", cfg.Type, err)
	}
	if !resp.Proceed {
		reason := resp.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return &BlockedError{Hook: cfg.Type, Reason: reason}
	}

	r.logger.Debug("hook passed", "hook", cfg.Type, "deployment", state.DeploymentID)
	return nil
}
