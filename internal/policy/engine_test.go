package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/shiftwise/pkg/types"
)

var testThresholds = types.Thresholds{
	ErrorRateMax:       0.05,
	LatencyMaxSeconds:  2.0,
	MinHealthyRatio:    1.0,
	StepPercentages:    []int{1, 10, 25, 50, 100},
	HoldSecondsPerStep: 300,
}

func healthySnapshot() *types.MetricsSnapshot {
	return &types.MetricsSnapshot{
		HealthyTargetRatio: 1.0,
		ErrorRate:          0.001,
		PLatencySeconds:    0.12,
		RequestCount:       5000,
		WindowSeconds:      300,
	}
}

func monitoringState(weight int, phaseStarted time.Time) types.ShiftState {
	return types.ShiftState{
		DeploymentID:   "checkout",
		Phase:          types.PhaseMonitoring,
		CurrentWeight:  weight,
		PhaseStartedAt: phaseStarted,
	}
}

func TestDecide_ErrorRateBreach(t *testing.T) {
	now := time.Now()
	snap := healthySnapshot()
	snap.ErrorRate = 0.10

	d := Decide(monitoringState(25, now.Add(-10*time.Minute)), snap, testThresholds, now)
	assert.Equal(t, types.DecisionRollback, d.Kind)
	assert.Equal(t, 0, d.ToWeight)
	assert.Contains(t, d.Reason, "error rate")
}

func TestDecide_LatencyBreach(t *testing.T) {
	now := time.Now()
	snap := healthySnapshot()
	snap.PLatencySeconds = 3.5

	d := Decide(monitoringState(10, now.Add(-10*time.Minute)), snap, testThresholds, now)
	assert.Equal(t, types.DecisionRollback, d.Kind)
	assert.Contains(t, d.Reason, "latency")
}

func TestDecide_UnhealthyTargets(t *testing.T) {
	now := time.Now()
	snap := healthySnapshot()
	snap.HealthyTargetRatio = 0.5

	d := Decide(monitoringState(10, now.Add(-10*time.Minute)), snap, testThresholds, now)
	assert.Equal(t, types.DecisionRollback, d.Kind)
	assert.Contains(t, d.Reason, "healthy ratio")
}

func TestDecide_HoldBeforeStepDuration(t *testing.T) {
	now := time.Now()
	// elapsed 2m < 5m hold
	d := Decide(monitoringState(10, now.Add(-2*time.Minute)), healthySnapshot(), testThresholds, now)
	assert.Equal(t, types.DecisionHold, d.Kind)
}

func TestDecide_AdvanceAfterHold(t *testing.T) {
	now := time.Now()
	d := Decide(monitoringState(10, now.Add(-6*time.Minute)), healthySnapshot(), testThresholds, now)
	assert.Equal(t, types.DecisionAdvance, d.Kind)
	assert.Equal(t, 25, d.ToWeight)
}

func TestDecide_PromoteAtFullWeight(t *testing.T) {
	now := time.Now()
	d := Decide(monitoringState(100, now.Add(-6*time.Minute)), healthySnapshot(), testThresholds, now)
	assert.Equal(t, types.DecisionPromote, d.Kind)
}

func TestDecide_NoDataWithinGrace(t *testing.T) {
	now := time.Now()
	d := Decide(monitoringState(1, now.Add(-1*time.Minute)), nil, testThresholds, now)
	assert.Equal(t, types.DecisionHold, d.Kind)
}

func TestDecide_NoDataBeyondGraceRollsBack(t *testing.T) {
	// Missing data must never be silently treated as healthy.
	now := time.Now()
	d := Decide(monitoringState(1, now.Add(-6*time.Minute)), nil, testThresholds, now)
	assert.Equal(t, types.DecisionRollback, d.Kind)
	assert.Contains(t, d.Reason, "no metric data")
}

func TestDecide_RollingBackAlwaysRollsBack(t *testing.T) {
	now := time.Now()
	state := types.ShiftState{
		DeploymentID:   "checkout",
		Phase:          types.PhaseRollingBack,
		CurrentWeight:  25,
		PhaseStartedAt: now.Add(-time.Minute),
	}
	// Healthy metrics must not resurrect a rollback; repeated calls are stable.
	for i := 0; i < 5; i++ {
		d := Decide(state, healthySnapshot(), testThresholds, now)
		assert.Equal(t, types.DecisionRollback, d.Kind)
		assert.Equal(t, 0, d.ToWeight)
	}
}

func TestDecide_UnexpectedPhaseFails(t *testing.T) {
	now := time.Now()
	state := monitoringState(0, now)
	state.Phase = types.PhaseNotStarted
	d := Decide(state, healthySnapshot(), testThresholds, now)
	assert.Equal(t, types.DecisionFail, d.Kind)
}

// Simulates a full shift with constant healthy metrics: the engine must walk
// every step in order, with only holds in between, and finish with Promote
// after len(steps) * holdSecondsPerStep of simulated time.
func TestDecide_MonotonicAdvancement(t *testing.T) {
	th := testThresholds
	now := time.Unix(1700000000, 0)

	state := monitoringState(th.StepPercentages[0], now)
	var visited []int

	for cycles := 0; cycles < 200; cycles++ {
		now = now.Add(30 * time.Second)
		d := Decide(state, healthySnapshot(), th, now)
		switch d.Kind {
		case types.DecisionHold:
			continue
		case types.DecisionAdvance:
			require.Greater(t, d.ToWeight, state.CurrentWeight, "advance must be monotonic")
			visited = append(visited, d.ToWeight)
			state.CurrentWeight = d.ToWeight
			state.PhaseStartedAt = now
		case types.DecisionPromote:
			assert.Equal(t, []int{10, 25, 50, 100}, visited, "no skipped or repeated steps")
			elapsed := now.Sub(time.Unix(1700000000, 0))
			assert.LessOrEqual(t, elapsed, time.Duration(len(th.StepPercentages)+1)*th.HoldPerStep())
			return
		default:
			t.Fatalf("unexpected decision %s: %s", d.Kind, d.Reason)
		}
	}
	t.Fatal("shift never promoted")
}

func TestNextStep(t *testing.T) {
	steps := []int{1, 10, 25, 50, 100}

	next, ok := NextStep(steps, 0)
	require.True(t, ok)
	assert.Equal(t, 1, next)

	next, ok = NextStep(steps, 25)
	require.True(t, ok)
	assert.Equal(t, 50, next)

	_, ok = NextStep(steps, 100)
	assert.False(t, ok)
}

func TestValidateThresholds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Thresholds)
		wantErr string
	}{
		{"valid", func(*types.Thresholds) {}, ""},
		{"blue_green_steps", func(th *types.Thresholds) { th.StepPercentages = []int{100} }, ""},
		{"not increasing", func(th *types.Thresholds) { th.StepPercentages = []int{10, 10, 100} }, "strictly increasing"},
		{"decreasing", func(th *types.Thresholds) { th.StepPercentages = []int{50, 25, 100} }, "strictly increasing"},
		{"not ending at 100", func(th *types.Thresholds) { th.StepPercentages = []int{1, 10, 50} }, "end at 100"},
		{"empty steps", func(th *types.Thresholds) { th.StepPercentages = nil }, "not be empty"},
		{"step out of range", func(th *types.Thresholds) { th.StepPercentages = []int{0, 100} }, "out of range"},
		{"negative error rate", func(th *types.Thresholds) { th.ErrorRateMax = -0.1 }, "errorRateMax"},
		{"bad healthy ratio", func(th *types.Thresholds) { th.MinHealthyRatio = 1.5 }, "minHealthyRatio"},
		{"zero latency", func(th *types.Thresholds) { th.LatencyMaxSeconds = 0 }, "latencyMaxSeconds"},
		{"zero hold", func(th *types.Thresholds) { th.HoldSecondsPerStep = 0 }, "holdSecondsPerStep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := testThresholds
			tt.mutate(&th)
			err := ValidateThresholds(th)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNoDataGraceDefaultsToHold(t *testing.T) {
	th := types.Thresholds{HoldSecondsPerStep: 300}
	assert.Equal(t, 300*time.Second, th.NoDataGrace())

	th.NoDataGraceSeconds = 120
	assert.Equal(t, 120*time.Second, th.NoDataGrace())
}
