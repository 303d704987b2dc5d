package types

import "time"

// Decision is the policy engine's verdict for a single evaluation cycle.
type Decision struct {
	Kind     DecisionKind `json:"kind"`
	ToWeight int          `json:"toWeight,omitempty"` // meaningful for ADVANCE and ROLLBACK
	Reason   string       `json:"reason,omitempty"`
}

// ShiftState is the persisted state of a deployment's traffic shift.
// A single active instance exists per deployment; the controller exclusively
// owns writes, guarded by a CAS on Version.
type ShiftState struct {
	DeploymentID        string     `json:"deploymentId"`
	Phase               ShiftPhase `json:"phase"`
	CurrentWeight       int        `json:"currentWeight"` // percent routed to the green target group
	TargetWeight        int        `json:"targetWeight"`
	PhaseStartedAt      time.Time  `json:"phaseStartedAt"`
	Version             int        `json:"version"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// HistoryEntry records one point of the shift's audit trail. Append-only.
type HistoryEntry struct {
	DeploymentID string       `json:"deploymentId"`
	Phase        ShiftPhase   `json:"phase"`
	Weight       int          `json:"weight"`
	Decision     DecisionKind `json:"decision,omitempty"`
	Note         string       `json:"note,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// MetricsSnapshot is the aggregated health view of the green target group
// over a trailing window. Produced fresh each evaluation cycle.
type MetricsSnapshot struct {
	HealthyTargetRatio float64   `json:"healthyTargetRatio"` // healthy hosts / total hosts
	ErrorRate          float64   `json:"errorRate"`          // 5xx / total requests
	PLatencySeconds    float64   `json:"pLatencySeconds"`    // p99 target response time
	RequestCount       float64   `json:"requestCount"`
	WindowSeconds      int       `json:"windowSeconds"`
	EvaluatedAt        time.Time `json:"evaluatedAt"`
}

// Thresholds holds the policy configuration for a shift. Immutable for a run.
type Thresholds struct {
	ErrorRateMax           float64 `yaml:"errorRateMax" json:"errorRateMax"`
	LatencyMaxSeconds      float64 `yaml:"latencyMaxSeconds" json:"latencyMaxSeconds"`
	MinHealthyRatio        float64 `yaml:"minHealthyRatio" json:"minHealthyRatio"`
	StepPercentages        []int   `yaml:"stepPercentages" json:"stepPercentages"` // strictly increasing, ends at 100
	HoldSecondsPerStep     int     `yaml:"holdSecondsPerStep" json:"holdSecondsPerStep"`
	NoDataGraceSeconds     int     `yaml:"noDataGraceSeconds,omitempty" json:"noDataGraceSeconds,omitempty"` // default: holdSecondsPerStep
	MaxConsecutiveFailures int     `yaml:"maxConsecutiveFailures,omitempty" json:"maxConsecutiveFailures,omitempty"`
}

// NoDataGrace returns the effective grace period before missing metric data
// is treated as an unhealthy signal.
func (t Thresholds) NoDataGrace() time.Duration {
	if t.NoDataGraceSeconds > 0 {
		return time.Duration(t.NoDataGraceSeconds) * time.Second
	}
	return time.Duration(t.HoldSecondsPerStep) * time.Second
}

// HoldPerStep returns the minimum observation time at each step.
func (t Thresholds) HoldPerStep() time.Duration {
	return time.Duration(t.HoldSecondsPerStep) * time.Second
}

// HookConfig configures a rollout gate invoked as a Lambda function.
type HookConfig struct {
	Type        HookType `yaml:"type" json:"type"`
	FunctionARN string   `yaml:"functionArn" json:"functionArn"`
	Timeout     int      `yaml:"timeout,omitempty" json:"timeout,omitempty"` // seconds
}

// DeploymentConfig is the full configuration for a registered deployment.
type DeploymentConfig struct {
	Name string `yaml:"name" json:"name"`

	// All listeners are updated together; partial application across them
	// is a failure condition, not a valid intermediate state.
	ListenerARNs   []string `yaml:"listenerArns" json:"listenerArns"`
	BlueTargetARN  string   `yaml:"blueTargetArn" json:"blueTargetArn"`
	GreenTargetARN string   `yaml:"greenTargetArn" json:"greenTargetArn"`

	// CloudWatch dimension values for AWS/ApplicationELB metrics,
	// e.g. "app/my-alb/50dc6c495c0c9188" and "targetgroup/green/943f017f100becff".
	LoadBalancerDim string `yaml:"loadBalancerDim" json:"loadBalancerDim"`
	GreenTargetDim  string `yaml:"greenTargetDim" json:"greenTargetDim"`

	Thresholds    Thresholds   `yaml:"thresholds" json:"thresholds"`
	WindowSeconds int          `yaml:"windowSeconds,omitempty" json:"windowSeconds,omitempty"`
	Interval      string       `yaml:"interval,omitempty" json:"interval,omitempty"` // cycle interval, e.g. "30s"
	Hooks         []HookConfig `yaml:"hooks,omitempty" json:"hooks,omitempty"`

	CreatedAt time.Time `yaml:"-" json:"createdAt,omitempty"`
}

// Hook returns the configured hook of the given type, or nil.
func (d DeploymentConfig) Hook(t HookType) *HookConfig {
	for i := range d.Hooks {
		if d.Hooks[i].Type == t {
			return &d.Hooks[i]
		}
	}
	return nil
}

// Command is an operator command consumed by the controller at cycle
// boundaries, never mid-apply.
type Command struct {
	Verb         CommandVerb `json:"verb"`
	DeploymentID string      `json:"deploymentId"`
	RequestedBy  string      `json:"requestedBy,omitempty"`
	RequestedAt  time.Time   `json:"requestedAt"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level        AlertLevel             `json:"level"`
	DeploymentID string                 `json:"deploymentId,omitempty"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type      AlertType `yaml:"type" json:"type"`
	URL       string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path      string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN  string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	SecretARN string    `yaml:"secretArn,omitempty" json:"secretArn,omitempty"` // webhook signing secret
}

// Event is an append-only audit log entry recording what happened and when.
type Event struct {
	Kind         EventKind              `json:"kind"`
	DeploymentID string                 `json:"deploymentId"`
	Phase        ShiftPhase             `json:"phase,omitempty"`
	Weight       int                    `json:"weight,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// StatusReport is what the status command and API surface for a deployment:
// the last successfully persisted state plus recent history.
type StatusReport struct {
	Deployment string         `json:"deployment"`
	State      *ShiftState    `json:"state,omitempty"`
	History    []HistoryEntry `json:"history,omitempty"`
	LastError  string         `json:"lastError,omitempty"`
}
