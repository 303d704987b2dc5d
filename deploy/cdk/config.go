package main

// StackConfig holds configuration for the Shiftwise CDK stack.
type StackConfig struct {
	TableName          string
	MemorySize         float64
	Timeout            float64
	LambdaDistDir      string
	ScheduleExpression string
	LogRetentionDays   float64
	DestroyOnDelete    bool
}

// DefaultConfig returns a StackConfig with sensible defaults.
func DefaultConfig() StackConfig {
	return StackConfig{
		TableName:          "shiftwise",
		MemorySize:         256,
		Timeout:            120,
		LambdaDistDir:      "../dist/lambda",
		ScheduleExpression: "rate(1 minute)",
		LogRetentionDays:   14,
	}
}
