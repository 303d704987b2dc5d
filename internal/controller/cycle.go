package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/shiftwise/shiftwise/internal/hook"
	"github.com/shiftwise/shiftwise/internal/lifecycle"
	"github.com/shiftwise/shiftwise/internal/metrics"
	"github.com/shiftwise/shiftwise/internal/policy"
	"github.com/shiftwise/shiftwise/pkg/types"
)

// errStaleState is returned by save when the CAS loses: another controller
// instance advanced the state first. The cycle gives up without treating it
// as a failure.
var errStaleState = errors.New("state version moved, yielding to concurrent controller")

// Cycle runs one full evaluation cycle for a deployment. It is the single
// entry point shared by the daemon loop and the Lambda handler: lock, load,
// consume commands, decide, apply, persist.
func (c *Controller) Cycle(ctx context.Context, cfg types.DeploymentConfig) error {
	start := c.now()
	outcome := "ok"
	defer func() {
		if c.metrics != nil {
			c.metrics.CyclesTotal.WithLabelValues(cfg.Name, outcome).Inc()
			c.metrics.CycleDuration.WithLabelValues(cfg.Name).Observe(c.now().Sub(start).Seconds())
		}
	}()

	lockKey := "shift:" + cfg.Name
	acquired, err := c.store.AcquireLock(ctx, lockKey, lockTTL)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !acquired {
		c.logger.Debug("lock held elsewhere, skipping cycle", "deployment", cfg.Name)
		outcome = "skipped"
		return nil
	}
	defer func() {
		if err := c.store.ReleaseLock(ctx, lockKey); err != nil {
			c.logger.Warn("failed to release lock", "deployment", cfg.Name, "error", err)
		}
	}()

	state, err := c.store.GetState(ctx, cfg.Name)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("loading state: %w", err)
	}

	// Operator commands are consumed only here, at the cycle boundary, so an
	// abort never interrupts a weight application mid-flight.
	state, err = c.consumeCommands(ctx, cfg, state)
	if err != nil {
		outcome = "error"
		return err
	}

	if state == nil || lifecycle.IsTerminal(state.Phase) || state.Phase == types.PhaseNotStarted {
		return nil
	}

	err = c.drive(ctx, cfg, *state)
	if errors.Is(err, errStaleState) {
		c.logger.Warn("yielding cycle", "deployment", cfg.Name, "reason", err)
		outcome = "skipped"
		return nil
	}
	if err != nil {
		outcome = "error"
	}
	return err
}

// drive advances the shift according to its current phase.
func (c *Controller) drive(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState) error {
	switch state.Phase {
	case types.PhaseDeploying:
		return c.applyTarget(ctx, cfg, state)
	case types.PhaseMonitoring:
		return c.evaluate(ctx, cfg, state)
	case types.PhaseRollingBack:
		return c.applyRollback(ctx, cfg, state)
	default:
		return fmt.Errorf("unexpected phase %s", state.Phase)
	}
}

// consumeCommands drains and handles pending operator commands.
func (c *Controller) consumeCommands(ctx context.Context, cfg types.DeploymentConfig, state *types.ShiftState) (*types.ShiftState, error) {
	commands, err := c.commands.Drain(ctx, cfg.Name)
	if err != nil {
		return state, fmt.Errorf("draining commands: %w", err)
	}

	for _, cmd := range commands {
		c.logger.Info("operator command", "deployment", cfg.Name, "verb", cmd.Verb, "requestedBy", cmd.RequestedBy)
		switch cmd.Verb {
		case types.CommandStart:
			state, err = c.handleStart(ctx, cfg, state)
		case types.CommandAbort:
			state, err = c.handleAbort(ctx, cfg, state)
		default:
			c.logger.Warn("ignoring unsupported command", "deployment", cfg.Name, "verb", cmd.Verb)
		}
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

// handleStart begins a new shift. Starting is idempotent: a start command for
// an already-active shift is ignored.
func (c *Controller) handleStart(ctx context.Context, cfg types.DeploymentConfig, state *types.ShiftState) (*types.ShiftState, error) {
	if state != nil && !lifecycle.IsTerminal(state.Phase) && state.Phase != types.PhaseNotStarted {
		c.logger.Info("shift already active, ignoring start", "deployment", cfg.Name, "phase", state.Phase)
		return state, nil
	}

	firstStep := cfg.Thresholds.StepPercentages[0]
	fresh := types.ShiftState{
		DeploymentID:   cfg.Name,
		Phase:          types.PhaseDeploying,
		CurrentWeight:  0,
		TargetWeight:   firstStep,
		PhaseStartedAt: c.now().UTC(),
		Version:        1,
		CreatedAt:      c.now().UTC(),
	}
	if state != nil {
		// Keep the version monotonic across restarts of the same deployment.
		fresh.Version = state.Version + 1
	}

	if gate := cfg.Hook(types.HookPreRollout); gate != nil && c.hooks != nil {
		if err := c.hooks.Run(ctx, *gate, fresh); err != nil {
			if hook.IsBlocked(err) {
				c.record(ctx, types.Event{
					Kind:         types.EventHookBlocked,
					DeploymentID: cfg.Name,
					Message:      err.Error(),
				})
				c.alert(ctx, types.AlertLevelWarning, cfg.Name, "start blocked: "+err.Error())
				return state, nil
			}
			return state, fmt.Errorf("pre-rollout hook: %w", err)
		}
	}

	if err := c.store.PutState(ctx, fresh); err != nil {
		return state, fmt.Errorf("initializing state: %w", err)
	}
	c.record(ctx, types.Event{
		Kind:         types.EventShiftStarted,
		DeploymentID: cfg.Name,
		Phase:        fresh.Phase,
		Weight:       fresh.TargetWeight,
		Message:      fmt.Sprintf("shift started toward %d%%", firstStep),
	})
	c.history(ctx, fresh, types.DecisionAdvance, "shift started")
	return &fresh, nil
}

// handleAbort turns an active shift toward rollback.
func (c *Controller) handleAbort(ctx context.Context, cfg types.DeploymentConfig, state *types.ShiftState) (*types.ShiftState, error) {
	if state == nil || lifecycle.IsTerminal(state.Phase) || state.Phase == types.PhaseNotStarted {
		c.logger.Info("no active shift, ignoring abort", "deployment", cfg.Name)
		return state, nil
	}
	if state.Phase == types.PhaseRollingBack {
		return state, nil
	}

	next := *state
	next.Phase = types.PhaseRollingBack
	next.TargetWeight = 0
	next.PhaseStartedAt = c.now().UTC()
	if err := lifecycle.Transition(state.Phase, next.Phase); err != nil {
		return state, err
	}
	saved, err := c.save(ctx, next)
	if err != nil {
		return state, err
	}

	c.record(ctx, types.Event{
		Kind:         types.EventAbortRequested,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Weight:       saved.CurrentWeight,
		Message:      "operator abort, rolling back",
	})
	c.record(ctx, types.Event{
		Kind:         types.EventRollbackStarted,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Weight:       saved.CurrentWeight,
	})
	c.alert(ctx, types.AlertLevelWarning, cfg.Name, "operator abort, rolling back to 0%")
	return &saved, nil
}

// applyTarget drives the DEPLOYING phase: write the target weight, confirm it,
// and move to MONITORING.
func (c *Controller) applyTarget(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState) error {
	adapter, err := c.adapterFor(cfg)
	if err != nil {
		return err
	}

	if err := adapter.SetWeights(ctx, state.TargetWeight); err != nil {
		return c.recordApplyFailure(ctx, cfg, state, err)
	}
	green, _, err := adapter.GetWeights(ctx)
	if err != nil {
		return c.recordApplyFailure(ctx, cfg, state, err)
	}
	if green != state.TargetWeight {
		return c.recordApplyFailure(ctx, cfg, state,
			fmt.Errorf("weight readback mismatch: want %d, got %d", state.TargetWeight, green))
	}

	next := state
	next.CurrentWeight = state.TargetWeight
	next.Phase = types.PhaseMonitoring
	next.PhaseStartedAt = c.now().UTC()
	next.ConsecutiveFailures = 0
	next.LastError = ""
	saved, err := c.save(ctx, next)
	if err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.CurrentWeight.WithLabelValues(cfg.Name).Set(float64(saved.CurrentWeight))
	}
	c.logger.Info("weight applied", "deployment", cfg.Name, "weight", saved.CurrentWeight)
	c.record(ctx, types.Event{
		Kind:         types.EventWeightApplied,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Weight:       saved.CurrentWeight,
	})
	c.record(ctx, types.Event{
		Kind:         types.EventPhaseChanged,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Weight:       saved.CurrentWeight,
	})
	c.history(ctx, saved, types.DecisionAdvance, "weight applied")
	return nil
}

// evaluate drives the MONITORING phase: read metrics, decide, act.
func (c *Controller) evaluate(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState) error {
	reader, err := c.readerFor(cfg)
	if err != nil {
		return err
	}

	window := cfg.WindowSeconds
	if window <= 0 {
		window = 300
	}

	// Any read failure is treated as absent data. The policy's no-data grace
	// then bounds how long a metrics outage can mask an unhealthy rollout.
	snapshot, err := reader.Read(ctx, window)
	if err != nil {
		snapshot = nil
		if metrics.IsNoData(err) {
			c.logger.Info("no metric data for window", "deployment", cfg.Name, "windowSeconds", window)
		} else {
			c.logger.Warn("metrics read failed", "deployment", cfg.Name, "error", err)
			c.record(ctx, types.Event{
				Kind:         types.EventMetricsUnavailable,
				DeploymentID: cfg.Name,
				Phase:        state.Phase,
				Message:      err.Error(),
			})
		}
	}

	decision := policy.Decide(state, snapshot, cfg.Thresholds, c.now().UTC())
	if c.metrics != nil {
		c.metrics.RecordDecision(cfg.Name, string(decision.Kind))
	}
	c.logger.Info("decision",
		"deployment", cfg.Name,
		"kind", decision.Kind,
		"toWeight", decision.ToWeight,
		"reason", decision.Reason,
	)

	switch decision.Kind {
	case types.DecisionHold:
		return nil
	case types.DecisionAdvance:
		return c.advance(ctx, cfg, state, decision)
	case types.DecisionPromote:
		return c.promote(ctx, cfg, state)
	case types.DecisionRollback:
		return c.startRollback(ctx, cfg, state, decision.Reason)
	case types.DecisionFail:
		return c.fail(ctx, cfg, state, decision.Reason)
	default:
		return fmt.Errorf("unknown decision kind %s", decision.Kind)
	}
}

// advance persists the intent to move to the next step, then applies it in
// the same cycle. Persist-first means a crash between the two resumes the
// apply instead of losing the decision.
func (c *Controller) advance(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState, decision types.Decision) error {
	next := state
	next.Phase = types.PhaseDeploying
	next.TargetWeight = decision.ToWeight
	next.PhaseStartedAt = c.now().UTC()
	saved, err := c.save(ctx, next)
	if err != nil {
		return err
	}

	c.record(ctx, types.Event{
		Kind:         types.EventDecisionMade,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Weight:       saved.CurrentWeight,
		Message:      fmt.Sprintf("advancing to %d%%", decision.ToWeight),
	})
	return c.applyTarget(ctx, cfg, saved)
}

// promote completes the shift at 100 percent green.
func (c *Controller) promote(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState) error {
	if gate := cfg.Hook(types.HookConfirmPromotion); gate != nil && c.hooks != nil {
		if err := c.hooks.Run(ctx, *gate, state); err != nil {
			if hook.IsBlocked(err) {
				c.record(ctx, types.Event{
					Kind:         types.EventHookBlocked,
					DeploymentID: cfg.Name,
					Phase:        state.Phase,
					Message:      err.Error(),
				})
				c.alert(ctx, types.AlertLevelWarning, cfg.Name, "promotion blocked: "+err.Error())
				return nil
			}
			return fmt.Errorf("confirm-promotion hook: %w", err)
		}
	}

	next := state
	next.Phase = types.PhasePromoted
	next.PhaseStartedAt = c.now().UTC()
	next.LastError = ""
	saved, err := c.save(ctx, next)
	if err != nil {
		return err
	}

	c.logger.Info("shift promoted", "deployment", cfg.Name)
	c.record(ctx, types.Event{
		Kind:         types.EventPromoted,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Weight:       saved.CurrentWeight,
	})
	c.history(ctx, saved, types.DecisionPromote, "shift complete")
	c.alert(ctx, types.AlertLevelInfo, cfg.Name, "shift promoted: 100% on green")
	return nil
}

// startRollback persists the ROLLING_BACK phase, then drives the weight to
// zero in the same cycle.
func (c *Controller) startRollback(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState, reason string) error {
	next := state
	next.Phase = types.PhaseRollingBack
	next.TargetWeight = 0
	next.PhaseStartedAt = c.now().UTC()
	next.LastError = reason
	saved, err := c.save(ctx, next)
	if err != nil {
		return err
	}

	c.record(ctx, types.Event{
		Kind:         types.EventRollbackStarted,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Weight:       saved.CurrentWeight,
		Message:      reason,
	})
	c.alert(ctx, types.AlertLevelError, cfg.Name, "rollback started: "+reason)
	return c.applyRollback(ctx, cfg, saved)
}

// applyRollback drives traffic back to zero green and lands in FAILED. The
// rollback target is always 0, never an intermediate step.
func (c *Controller) applyRollback(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState) error {
	adapter, err := c.adapterFor(cfg)
	if err != nil {
		return err
	}

	if err := adapter.SetWeights(ctx, 0); err != nil {
		return c.recordApplyFailure(ctx, cfg, state, err)
	}
	green, _, err := adapter.GetWeights(ctx)
	if err != nil {
		return c.recordApplyFailure(ctx, cfg, state, err)
	}
	if green != 0 {
		return c.recordApplyFailure(ctx, cfg, state,
			fmt.Errorf("rollback readback mismatch: got %d", green))
	}

	next := state
	next.CurrentWeight = 0
	next.Phase = types.PhaseFailed
	next.PhaseStartedAt = c.now().UTC()
	saved, err := c.save(ctx, next)
	if err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.CurrentWeight.WithLabelValues(cfg.Name).Set(0)
	}
	c.logger.Info("rollback complete", "deployment", cfg.Name)
	c.record(ctx, types.Event{
		Kind:         types.EventShiftFailed,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Message:      saved.LastError,
	})
	c.history(ctx, saved, types.DecisionRollback, "rolled back to 0%")
	return nil
}

// fail marks the shift failed without touching weights.
func (c *Controller) fail(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState, reason string) error {
	next := state
	next.Phase = types.PhaseFailed
	next.PhaseStartedAt = c.now().UTC()
	next.LastError = reason
	saved, err := c.save(ctx, next)
	if err != nil {
		return err
	}

	c.record(ctx, types.Event{
		Kind:         types.EventShiftFailed,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Message:      reason,
	})
	c.alert(ctx, types.AlertLevelError, cfg.Name, "shift failed: "+reason)
	return nil
}

// recordApplyFailure persists a failed apply. The phase is left unchanged so
// the next cycle retries; once the consecutive failure cap is hit the shift
// is declared failed and a fatal alert goes out.
func (c *Controller) recordApplyFailure(ctx context.Context, cfg types.DeploymentConfig, state types.ShiftState, applyErr error) error {
	if c.metrics != nil {
		c.metrics.ApplyFailures.WithLabelValues(cfg.Name).Inc()
	}

	next := state
	next.ConsecutiveFailures++
	next.LastError = applyErr.Error()

	limit := cfg.Thresholds.MaxConsecutiveFailures
	if limit <= 0 {
		limit = defaultFailureCap
	}

	if next.ConsecutiveFailures >= limit {
		next.Phase = types.PhaseFailed
		saved, err := c.save(ctx, next)
		if err != nil {
			return err
		}
		c.logger.Error("failure cap reached, shift failed",
			"deployment", cfg.Name,
			"failures", saved.ConsecutiveFailures,
			"error", applyErr,
		)
		c.record(ctx, types.Event{
			Kind:         types.EventFailureCapReached,
			DeploymentID: cfg.Name,
			Phase:        saved.Phase,
			Message:      applyErr.Error(),
		})
		c.alert(ctx, types.AlertLevelError, cfg.Name,
			fmt.Sprintf("shift failed after %d consecutive apply failures: %v. Traffic weights need manual review.", saved.ConsecutiveFailures, applyErr))
		return nil
	}

	saved, err := c.save(ctx, next)
	if err != nil {
		return err
	}
	c.logger.Warn("apply failed, will retry next cycle",
		"deployment", cfg.Name,
		"failures", saved.ConsecutiveFailures,
		"error", applyErr,
	)
	c.record(ctx, types.Event{
		Kind:         types.EventApplyFailed,
		DeploymentID: cfg.Name,
		Phase:        saved.Phase,
		Message:      applyErr.Error(),
	})
	return fmt.Errorf("applying weights: %w", applyErr)
}

// save CAS-writes the state and returns it with the bumped version.
func (c *Controller) save(ctx context.Context, state types.ShiftState) (types.ShiftState, error) {
	ok, err := c.store.CompareAndSwapState(ctx, state.DeploymentID, state.Version, state)
	if err != nil {
		return state, fmt.Errorf("persisting state: %w", err)
	}
	if !ok {
		return state, errStaleState
	}
	state.Version++
	return state, nil
}

func (c *Controller) record(ctx context.Context, event types.Event) {
	event.Timestamp = c.now().UTC()
	if err := c.store.AppendEvent(ctx, event); err != nil {
		c.logger.Warn("failed to append event", "kind", event.Kind, "error", err)
	}
	c.events.Publish(ctx, event)
}

func (c *Controller) history(ctx context.Context, state types.ShiftState, decision types.DecisionKind, note string) {
	entry := types.HistoryEntry{
		DeploymentID: state.DeploymentID,
		Phase:        state.Phase,
		Weight:       state.CurrentWeight,
		Decision:     decision,
		Note:         note,
		Timestamp:    c.now().UTC(),
	}
	if err := c.store.AppendHistory(ctx, entry); err != nil {
		c.logger.Warn("failed to append history", "deployment", state.DeploymentID, "error", err)
	}
}
