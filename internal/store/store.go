// Package store defines the persistence interface for Shiftwise.
package store

import (
	"context"
	"time"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// Store is the durable backend for deployment configs, shift state, and the
// audit trail. Shift state updates use compare-and-swap on the state version
// so a restarted controller resumes rather than racing a live one.
type Store interface {
	// Deployment registration
	RegisterDeployment(ctx context.Context, cfg types.DeploymentConfig) error
	GetDeployment(ctx context.Context, name string) (*types.DeploymentConfig, error)
	ListDeployments(ctx context.Context) ([]types.DeploymentConfig, error)
	DeleteDeployment(ctx context.Context, name string) error

	// Shift state (single active instance per deployment, CAS-guarded)
	PutState(ctx context.Context, state types.ShiftState) error
	GetState(ctx context.Context, deploymentID string) (*types.ShiftState, error)
	CompareAndSwapState(ctx context.Context, deploymentID string, expectedVersion int, newState types.ShiftState) (bool, error)

	// History: append-only weight/phase trail for audit and rollback review
	AppendHistory(ctx context.Context, entry types.HistoryEntry) error
	ListHistory(ctx context.Context, deploymentID string, limit int) ([]types.HistoryEntry, error)

	// Event log: append-only audit trail
	AppendEvent(ctx context.Context, event types.Event) error
	ListEvents(ctx context.Context, deploymentID string, limit int) ([]types.Event, error)

	// Distributed locking for controller coordination
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
