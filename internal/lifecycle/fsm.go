// Package lifecycle implements the traffic shift phase state machine.
package lifecycle

import (
	"fmt"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// Transition table: from -> allowed tos
var validTransitions = map[types.ShiftPhase][]types.ShiftPhase{
	types.PhaseNotStarted:  {types.PhaseDeploying},
	types.PhaseDeploying:   {types.PhaseMonitoring, types.PhaseRollingBack, types.PhaseFailed},
	types.PhaseMonitoring:  {types.PhaseDeploying, types.PhaseRollingBack, types.PhasePromoted, types.PhaseFailed},
	types.PhaseRollingBack: {types.PhaseFailed},
	types.PhasePromoted:    {},
	types.PhaseFailed:      {},
}

// CanTransition checks if transitioning from one phase to another is valid.
func CanTransition(from, to types.ShiftPhase) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, p := range allowed {
		if p == to {
			return true
		}
	}
	return false
}

// Transition validates the phase change, or returns an error if it is invalid.
func Transition(from, to types.ShiftPhase) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the phase is a terminal (final) state.
// No further adapter calls are issued once a shift is terminal.
func IsTerminal(phase types.ShiftPhase) bool {
	return phase == types.PhasePromoted || phase == types.PhaseFailed
}
