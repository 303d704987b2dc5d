package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/shiftwise/pkg/types"
)

const validYAML = `
region: us-east-1
dynamodb:
  tableName: shiftwise
  region: us-east-1
controller:
  enabled: true
  defaultInterval: 30s
server:
  addr: ":8080"
deployments:
  - name: checkout
    listenerArns:
      - arn:aws:elasticloadbalancing:us-east-1:123:listener/app/lb/1/2
    blueTargetArn: arn:aws:elasticloadbalancing:us-east-1:123:targetgroup/blue/1
    greenTargetArn: arn:aws:elasticloadbalancing:us-east-1:123:targetgroup/green/1
    loadBalancerDim: app/lb/1
    greenTargetDim: targetgroup/green/1
    windowSeconds: 300
    thresholds:
      errorRateMax: 0.05
      latencyMaxSeconds: 1.0
      minHealthyRatio: 0.5
      stepPercentages: [10, 25, 50, 100]
      holdSecondsPerStep: 300
alerts:
  - type: console
  - type: sns
    topicArn: arn:aws:sns:us-east-1:123:shiftwise-alerts
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shiftwise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "shiftwise", cfg.DynamoDB.TableName)
	assert.True(t, cfg.Controller.Enabled)
	require.Len(t, cfg.Deployments, 1)
	assert.Equal(t, "checkout", cfg.Deployments[0].Name)
	assert.Equal(t, []int{10, 25, 50, 100}, cfg.Deployments[0].Thresholds.StepPercentages)
	assert.Len(t, cfg.Alerts, 2)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "dynamodb: [not a map"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	base := func() *types.DeploymentConfig {
		return &types.DeploymentConfig{
			Name:            "api",
			ListenerARNs:    []string{"arn:listener"},
			BlueTargetARN:   "arn:blue",
			GreenTargetARN:  "arn:green",
			LoadBalancerDim: "app/lb/1",
			GreenTargetDim:  "targetgroup/green/1",
			Thresholds: types.Thresholds{
				ErrorRateMax:       0.05,
				LatencyMaxSeconds:  1.0,
				MinHealthyRatio:    0.5,
				StepPercentages:    []int{10, 100},
				HoldSecondsPerStep: 60,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*types.DeploymentConfig)
	}{
		{"missing name", func(d *types.DeploymentConfig) { d.Name = "" }},
		{"no listeners", func(d *types.DeploymentConfig) { d.ListenerARNs = nil }},
		{"same target groups", func(d *types.DeploymentConfig) { d.GreenTargetARN = d.BlueTargetARN }},
		{"missing dims", func(d *types.DeploymentConfig) { d.LoadBalancerDim = "" }},
		{"bad interval", func(d *types.DeploymentConfig) { d.Interval = "soon" }},
		{"steps not increasing", func(d *types.DeploymentConfig) { d.Thresholds.StepPercentages = []int{50, 25, 100} }},
		{"steps not ending at 100", func(d *types.DeploymentConfig) { d.Thresholds.StepPercentages = []int{10, 50} }},
		{"no steps", func(d *types.DeploymentConfig) { d.Thresholds.StepPercentages = nil }},
		{"unknown hook", func(d *types.DeploymentConfig) {
			d.Hooks = []types.HookConfig{{Type: "post-deploy", FunctionARN: "arn:f"}}
		}},
		{"hook without function", func(d *types.DeploymentConfig) {
			d.Hooks = []types.HookConfig{{Type: types.HookPreRollout}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			assert.Error(t, ValidateDeployment(d))
		})
	}

	t.Run("valid baseline", func(t *testing.T) {
		assert.NoError(t, ValidateDeployment(base()))
	})
}

func TestValidateDuplicateDeployments(t *testing.T) {
	cfg := &types.ProjectConfig{
		DynamoDB: &types.DynamoDBConfig{TableName: "shiftwise"},
		Deployments: []types.DeploymentConfig{
			{Name: "api"},
			{Name: "api"},
		},
	}
	// Both deployments are incomplete, so the first failure wins; the point
	// is that validation rejects the config.
	assert.Error(t, Validate(cfg))
}

func TestValidateRequiresTable(t *testing.T) {
	assert.Error(t, Validate(&types.ProjectConfig{}))
}

func TestValidateAlerts(t *testing.T) {
	cfg := &types.ProjectConfig{
		DynamoDB: &types.DynamoDBConfig{TableName: "shiftwise"},
		Alerts:   []types.AlertConfig{{Type: types.AlertWebhook}},
	}
	assert.Error(t, Validate(cfg))

	cfg.Alerts = []types.AlertConfig{{Type: types.AlertWebhook, URL: "https://hooks.example.com/x"}}
	assert.NoError(t, Validate(cfg))
}
