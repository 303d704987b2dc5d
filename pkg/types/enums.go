// Package types defines the public domain types for the Shiftwise traffic shift controller.
package types

// ShiftPhase represents the lifecycle state of a deployment's traffic shift.
type ShiftPhase string

// ShiftPhase values represent the lifecycle states of a traffic shift.
const (
	PhaseNotStarted  ShiftPhase = "NOT_STARTED"
	PhaseDeploying   ShiftPhase = "DEPLOYING"
	PhaseMonitoring  ShiftPhase = "MONITORING"
	PhaseRollingBack ShiftPhase = "ROLLING_BACK"
	PhasePromoted    ShiftPhase = "PROMOTED"
	PhaseFailed      ShiftPhase = "FAILED"
)

// DecisionKind classifies the action the policy engine selects for a cycle.
type DecisionKind string

// DecisionKind values enumerate the possible policy outcomes.
const (
	DecisionAdvance  DecisionKind = "ADVANCE"
	DecisionHold     DecisionKind = "HOLD"
	DecisionRollback DecisionKind = "ROLLBACK"
	DecisionPromote  DecisionKind = "PROMOTE"
	DecisionFail     DecisionKind = "FAIL"
)

// CommandVerb identifies an operator command accepted by the controller.
type CommandVerb string

// CommandVerb values enumerate the supported operator verbs.
const (
	CommandStart CommandVerb = "start"
	CommandAbort CommandVerb = "abort"
)

// HookType identifies when a rollout hook fires.
type HookType string

// HookType values enumerate the supported hook stages.
const (
	HookPreRollout       HookType = "pre-rollout"
	HookConfirmPromotion HookType = "confirm-promotion"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
)

// AlertLevel is the severity of a dispatched alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// EventKind classifies the type of audit event.
type EventKind string

// EventKind values enumerate the categories of recorded events.
const (
	EventShiftStarted       EventKind = "SHIFT_STARTED"
	EventPhaseChanged       EventKind = "PHASE_CHANGED"
	EventWeightApplied      EventKind = "WEIGHT_APPLIED"
	EventDecisionMade       EventKind = "DECISION_MADE"
	EventMetricsUnavailable EventKind = "METRICS_UNAVAILABLE"
	EventRollbackStarted    EventKind = "ROLLBACK_STARTED"
	EventPromoted           EventKind = "PROMOTED"
	EventShiftFailed        EventKind = "SHIFT_FAILED"
	EventApplyFailed        EventKind = "APPLY_FAILED"
	EventFailureCapReached  EventKind = "FAILURE_CAP_REACHED"
	EventAbortRequested     EventKind = "ABORT_REQUESTED"
	EventHookBlocked        EventKind = "HOOK_BLOCKED"
)
