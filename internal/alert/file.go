package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// FileSink appends alerts as JSON lines to a local file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a file sink. The file is created on first write.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file sink path is required")
	}
	return &FileSink{path: path}, nil
}

// Name identifies the sink in logs.
func (s *FileSink) Name() string { return "file" }

// Send appends one JSON line.
func (s *FileSink) Send(_ context.Context, alert types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening alert file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing alert: %w", err)
	}
	return nil
}
