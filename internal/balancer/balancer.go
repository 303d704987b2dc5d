// Package balancer wraps read/write access to the load balancer's weighted
// forwarding configuration.
package balancer

import "context"

// Adapter mutates and reads the weighted split between the green (new) and
// blue (production) target groups across all managed listeners.
type Adapter interface {
	// SetWeights routes greenWeight percent of traffic to the green target
	// group and 100-greenWeight to blue, on every managed listener. The
	// multi-listener update is one logical transaction: on partial failure
	// the adapter compensates by restoring the previous weights. Idempotent:
	// a write is skipped when all listeners already carry the desired split.
	SetWeights(ctx context.Context, greenWeight int) error

	// GetWeights reads back the configured (green, blue) weights for
	// validation after a write. Returns a PartialApply error when the
	// managed listeners disagree with each other.
	GetWeights(ctx context.Context) (green, blue int, err error)
}
