package balancer

import (
	"errors"
	"fmt"

	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/shiftwise/shiftwise/internal/backoff"
)

// ErrorKind classifies an adapter failure.
type ErrorKind string

const (
	// KindNotFound means a listener or target group no longer exists.
	KindNotFound ErrorKind = "NotFound"
	// KindPermissionDenied means the caller lacks permission on the listener.
	KindPermissionDenied ErrorKind = "PermissionDenied"
	// KindThrottled means the API rate-limited the call. Retryable.
	KindThrottled ErrorKind = "Throttled"
	// KindPartialApply means listeners were left with disagreeing weights.
	KindPartialApply ErrorKind = "PartialApply"
	// KindUnknown covers everything else.
	KindUnknown ErrorKind = "Unknown"
)

// AdapterError wraps a load balancer API failure with its classification.
// Only Throttled errors are retried locally; all other kinds are fatal for
// the current cycle and propagate to the controller.
type AdapterError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("balancer %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("balancer %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// KindOf returns the classification of an error, or KindUnknown for
// non-adapter errors.
func KindOf(err error) ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// classify maps a raw AWS error into an AdapterError.
func classify(op string, err error) *AdapterError {
	var lnf *elbv2types.ListenerNotFoundException
	var tgnf *elbv2types.TargetGroupNotFoundException
	var lbnf *elbv2types.LoadBalancerNotFoundException
	switch {
	case errors.As(err, &lnf), errors.As(err, &tgnf), errors.As(err, &lbnf):
		return &AdapterError{Kind: KindNotFound, Op: op, Err: err}
	case backoff.IsThrottle(err):
		return &AdapterError{Kind: KindThrottled, Op: op, Err: err}
	case backoff.IsAccessDenied(err):
		return &AdapterError{Kind: KindPermissionDenied, Op: op, Err: err}
	default:
		return &AdapterError{Kind: KindUnknown, Op: op, Err: err}
	}
}
