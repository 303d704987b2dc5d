// Package config loads and validates the shiftwise.yaml project file.
// Validation failures are fatal at startup: a controller must never run
// against a config it cannot fully interpret.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shiftwise/shiftwise/internal/policy"
	"github.com/shiftwise/shiftwise/pkg/types"
)

// DefaultPath is where commands look for the project file.
const DefaultPath = "shiftwise.yaml"

// Load reads and validates a project configuration.
func Load(path string) (*types.ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the full project configuration.
func Validate(cfg *types.ProjectConfig) error {
	if cfg.DynamoDB == nil || cfg.DynamoDB.TableName == "" {
		return fmt.Errorf("dynamodb.tableName is required")
	}

	if cfg.Controller != nil && cfg.Controller.DefaultInterval != "" {
		if _, err := time.ParseDuration(cfg.Controller.DefaultInterval); err != nil {
			return fmt.Errorf("controller.defaultInterval: %w", err)
		}
	}

	seen := make(map[string]bool)
	for i := range cfg.Deployments {
		d := &cfg.Deployments[i]
		if err := ValidateDeployment(d); err != nil {
			return fmt.Errorf("deployment %q: %w", d.Name, err)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate deployment name %q", d.Name)
		}
		seen[d.Name] = true
	}

	for _, a := range cfg.Alerts {
		if err := validateAlert(a); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDeployment checks one deployment configuration. Also used by the
// add-deployment command before writing to the store.
func ValidateDeployment(d *types.DeploymentConfig) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(d.ListenerARNs) == 0 {
		return fmt.Errorf("at least one listener ARN is required")
	}
	if d.BlueTargetARN == "" || d.GreenTargetARN == "" {
		return fmt.Errorf("blue and green target group ARNs are required")
	}
	if d.BlueTargetARN == d.GreenTargetARN {
		return fmt.Errorf("blue and green target groups must differ")
	}
	if d.LoadBalancerDim == "" || d.GreenTargetDim == "" {
		return fmt.Errorf("loadBalancerDim and greenTargetDim are required for metrics")
	}
	if d.WindowSeconds < 0 {
		return fmt.Errorf("windowSeconds must be positive")
	}
	if d.Interval != "" {
		if _, err := time.ParseDuration(d.Interval); err != nil {
			return fmt.Errorf("interval: %w", err)
		}
	}
	for _, h := range d.Hooks {
		if h.Type != types.HookPreRollout && h.Type != types.HookConfirmPromotion {
			return fmt.Errorf("unknown hook type %q", h.Type)
		}
		if h.FunctionARN == "" {
			return fmt.Errorf("hook %s: functionArn is required", h.Type)
		}
	}
	if err := policy.ValidateThresholds(d.Thresholds); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	return nil
}

func validateAlert(a types.AlertConfig) error {
	switch a.Type {
	case types.AlertConsole:
		return nil
	case types.AlertFile:
		if a.Path == "" {
			return fmt.Errorf("file alert: path is required")
		}
	case types.AlertWebhook:
		if a.URL == "" {
			return fmt.Errorf("webhook alert: url is required")
		}
	case types.AlertSNS:
		if a.TopicARN == "" {
			return fmt.Errorf("sns alert: topicArn is required")
		}
	default:
		return fmt.Errorf("unknown alert type %q", a.Type)
	}
	return nil
}
