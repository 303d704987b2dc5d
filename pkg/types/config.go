package types

// ProjectConfig represents the top-level shiftwise.yaml configuration.
type ProjectConfig struct {
	DynamoDB     *DynamoDBConfig     `yaml:"dynamodb"`
	Server       *ServerConfig       `yaml:"server,omitempty"`
	Controller   *ControllerConfig   `yaml:"controller,omitempty"`
	CommandQueue *CommandQueueConfig `yaml:"commandQueue,omitempty"`
	EventBus     *EventBusConfig     `yaml:"eventBus,omitempty"`
	Telemetry    *TelemetryConfig    `yaml:"telemetry,omitempty"`
	Region       string              `yaml:"region,omitempty"`
	Deployments  []DeploymentConfig  `yaml:"deployments,omitempty"`
	Alerts       []AlertConfig       `yaml:"alerts,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName    string `yaml:"tableName" json:"tableName"`
	Region       string `yaml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	RetentionTTL string `yaml:"retentionTtl,omitempty" json:"retentionTtl,omitempty"`
	CreateTable  bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
}

// ControllerConfig configures the control loop.
type ControllerConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DefaultInterval string `yaml:"defaultInterval"` // e.g. "30s"
}

// CommandQueueConfig configures the SQS operator command queue.
type CommandQueueConfig struct {
	QueueURL string `yaml:"queueUrl"`
	Region   string `yaml:"region,omitempty"`
}

// EventBusConfig configures EventBridge publishing of phase changes.
type EventBusConfig struct {
	BusName string `yaml:"busName"`
	Region  string `yaml:"region,omitempty"`
}

// TelemetryConfig configures the optional OTLP exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	ServiceName  string `yaml:"serviceName,omitempty"`
}
