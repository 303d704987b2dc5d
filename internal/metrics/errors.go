package metrics

import (
	"errors"
	"fmt"

	"github.com/shiftwise/shiftwise/internal/backoff"
)

// ErrorKind classifies a metrics read failure.
type ErrorKind string

const (
	// KindNoData means the source has no datapoints for the window yet,
	// e.g. a target group that was just created. The caller treats this as
	// "not yet healthy", not as a crash condition.
	KindNoData ErrorKind = "NoData"
	// KindThrottled means the metrics API rate-limited the query. Retryable.
	KindThrottled ErrorKind = "Throttled"
	// KindUnknown covers everything else.
	KindUnknown ErrorKind = "Unknown"
)

// MetricsError wraps a metrics source failure with its classification.
type MetricsError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *MetricsError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("metrics %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("metrics %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *MetricsError) Unwrap() error { return e.Err }

// IsNoData reports whether the error means the window had no datapoints.
func IsNoData(err error) bool {
	var me *MetricsError
	return errors.As(err, &me) && me.Kind == KindNoData
}

func classify(op string, err error) *MetricsError {
	switch {
	case backoff.IsThrottle(err):
		return &MetricsError{Kind: KindThrottled, Op: op, Err: err}
	default:
		return &MetricsError{Kind: KindUnknown, Op: op, Err: err}
	}
}
