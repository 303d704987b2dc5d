// Package policy implements the pure shift decision logic. It performs no I/O:
// given the persisted state, the latest metrics snapshot, and the configured
// thresholds, it decides whether the shift should advance, hold, roll back,
// promote, or fail.
package policy

import (
	"fmt"

	"time"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// Decide returns the next action for a shift. A nil snapshot means the metrics
// source had no datapoints for the window. Deterministic given the same inputs,
// so the controller can safely re-decide after a failed apply.
func Decide(state types.ShiftState, snapshot *types.MetricsSnapshot, th types.Thresholds, now time.Time) types.Decision {
	switch state.Phase {
	case types.PhaseRollingBack:
		// Keep driving toward zero until the controller observes weight 0
		// and transitions the phase itself.
		return types.Decision{Kind: types.DecisionRollback, ToWeight: 0, Reason: "rollback in progress"}
	case types.PhaseMonitoring:
		// fall through to evaluation below
	default:
		return types.Decision{
			Kind:   types.DecisionFail,
			Reason: fmt.Sprintf("policy evaluated in unexpected phase %s", state.Phase),
		}
	}

	elapsed := now.Sub(state.PhaseStartedAt)

	// Prolonged absence of data is an unhealthy signal, never an implicit pass.
	if snapshot == nil {
		if elapsed > th.NoDataGrace() {
			return types.Decision{
				Kind:     types.DecisionRollback,
				ToWeight: 0,
				Reason:   fmt.Sprintf("no metric data for %s (grace %s)", elapsed.Truncate(time.Second), th.NoDataGrace()),
			}
		}
		return types.Decision{Kind: types.DecisionHold, Reason: "no metric data yet, within grace period"}
	}

	if snapshot.ErrorRate > th.ErrorRateMax {
		return types.Decision{
			Kind:     types.DecisionRollback,
			ToWeight: 0,
			Reason:   fmt.Sprintf("error rate %.4f exceeds max %.4f", snapshot.ErrorRate, th.ErrorRateMax),
		}
	}
	if snapshot.PLatencySeconds > th.LatencyMaxSeconds {
		return types.Decision{
			Kind:     types.DecisionRollback,
			ToWeight: 0,
			Reason:   fmt.Sprintf("p99 latency %.3fs exceeds max %.3fs", snapshot.PLatencySeconds, th.LatencyMaxSeconds),
		}
	}
	if snapshot.HealthyTargetRatio < th.MinHealthyRatio {
		return types.Decision{
			Kind:     types.DecisionRollback,
			ToWeight: 0,
			Reason:   fmt.Sprintf("healthy ratio %.2f below min %.2f", snapshot.HealthyTargetRatio, th.MinHealthyRatio),
		}
	}

	// Healthy, but not observed long enough at this step. Prevents flapping
	// on noisy early samples.
	if elapsed < th.HoldPerStep() {
		return types.Decision{Kind: types.DecisionHold, Reason: "step hold period not yet satisfied"}
	}

	next, ok := NextStep(th.StepPercentages, state.CurrentWeight)
	if !ok {
		return types.Decision{Kind: types.DecisionPromote, Reason: "all steps complete"}
	}
	return types.Decision{
		Kind:     types.DecisionAdvance,
		ToWeight: next,
		Reason:   fmt.Sprintf("healthy for %s at weight %d", elapsed.Truncate(time.Second), state.CurrentWeight),
	}
}

// NextStep returns the first step strictly greater than the current weight.
func NextStep(steps []int, current int) (int, bool) {
	for _, s := range steps {
		if s > current {
			return s, true
		}
	}
	return 0, false
}

// ValidateThresholds rejects malformed policy configuration. This is a
// configuration error, fatal at startup, never a runtime decision.
func ValidateThresholds(th types.Thresholds) error {
	if th.ErrorRateMax < 0 || th.ErrorRateMax > 1 {
		return fmt.Errorf("errorRateMax must be in [0,1], got %v", th.ErrorRateMax)
	}
	if th.MinHealthyRatio < 0 || th.MinHealthyRatio > 1 {
		return fmt.Errorf("minHealthyRatio must be in [0,1], got %v", th.MinHealthyRatio)
	}
	if th.LatencyMaxSeconds <= 0 {
		return fmt.Errorf("latencyMaxSeconds must be positive, got %v", th.LatencyMaxSeconds)
	}
	if th.HoldSecondsPerStep <= 0 {
		return fmt.Errorf("holdSecondsPerStep must be positive, got %d", th.HoldSecondsPerStep)
	}
	if len(th.StepPercentages) == 0 {
		return fmt.Errorf("stepPercentages must not be empty")
	}
	prev := 0
	for i, s := range th.StepPercentages {
		if s <= 0 || s > 100 {
			return fmt.Errorf("stepPercentages[%d]=%d out of range (0,100]", i, s)
		}
		if i > 0 && s <= prev {
			return fmt.Errorf("stepPercentages must be strictly increasing, got %d after %d", s, prev)
		}
		prev = s
	}
	if prev != 100 {
		return fmt.Errorf("stepPercentages must end at 100, got %d", prev)
	}
	return nil
}
