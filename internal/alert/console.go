package alert

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// ConsoleSink writes alerts to stderr with level-appropriate coloring.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a console sink writing to stderr.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stderr}
}

// Name identifies the sink in logs.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes the alert as a single colored line.
func (s *ConsoleSink) Send(_ context.Context, alert types.Alert) error {
	paint := color.New(color.FgCyan)
	switch alert.Level {
	case types.AlertLevelError:
		paint = color.New(color.FgRed, color.Bold)
	case types.AlertLevelWarning:
		paint = color.New(color.FgYellow)
	}

	line := fmt.Sprintf("[%s] %s", alert.Level, alert.Message)
	if alert.DeploymentID != "" {
		line = fmt.Sprintf("[%s] %s: %s", alert.Level, alert.DeploymentID, alert.Message)
	}
	_, err := paint.Fprintln(s.out, line)
	return err
}
