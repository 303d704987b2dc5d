// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shiftwise/shiftwise/internal/store"
	"github.com/shiftwise/shiftwise/pkg/types"
)

var _ store.Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for tests.
type MockStore struct {
	mu          sync.Mutex
	deployments map[string]types.DeploymentConfig
	states      map[string]types.ShiftState
	history     map[string][]types.HistoryEntry
	events      map[string][]types.Event
	locks       map[string]time.Time

	// FailCAS forces CompareAndSwapState to report a lost race.
	FailCAS bool
	// ErrOn maps a method name to an error to return from it.
	ErrOn map[string]error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		deployments: make(map[string]types.DeploymentConfig),
		states:      make(map[string]types.ShiftState),
		history:     make(map[string][]types.HistoryEntry),
		events:      make(map[string][]types.Event),
		locks:       make(map[string]time.Time),
		ErrOn:       make(map[string]error),
	}
}

func (m *MockStore) err(method string) error {
	return m.ErrOn[method]
}

func (m *MockStore) RegisterDeployment(_ context.Context, cfg types.DeploymentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("RegisterDeployment"); err != nil {
		return err
	}
	if cfg.Name == "" {
		return fmt.Errorf("deployment name is required")
	}
	m.deployments[cfg.Name] = cfg
	return nil
}

func (m *MockStore) GetDeployment(_ context.Context, name string) (*types.DeploymentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("GetDeployment"); err != nil {
		return nil, err
	}
	cfg, ok := m.deployments[name]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *MockStore) ListDeployments(_ context.Context) ([]types.DeploymentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ListDeployments"); err != nil {
		return nil, err
	}
	out := make([]types.DeploymentConfig, 0, len(m.deployments))
	for _, cfg := range m.deployments {
		out = append(out, cfg)
	}
	return out, nil
}

func (m *MockStore) DeleteDeployment(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deployments, name)
	delete(m.states, name)
	return nil
}

func (m *MockStore) PutState(_ context.Context, state types.ShiftState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("PutState"); err != nil {
		return err
	}
	m.states[state.DeploymentID] = state
	return nil
}

func (m *MockStore) GetState(_ context.Context, deploymentID string) (*types.ShiftState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("GetState"); err != nil {
		return nil, err
	}
	st, ok := m.states[deploymentID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MockStore) CompareAndSwapState(_ context.Context, deploymentID string, expectedVersion int, newState types.ShiftState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("CompareAndSwapState"); err != nil {
		return false, err
	}
	if m.FailCAS {
		return false, nil
	}
	existing, ok := m.states[deploymentID]
	if !ok || existing.Version != expectedVersion {
		return false, nil
	}
	newState.DeploymentID = deploymentID
	newState.Version = expectedVersion + 1
	newState.UpdatedAt = time.Now().UTC()
	m.states[deploymentID] = newState
	return true, nil
}

func (m *MockStore) AppendHistory(_ context.Context, entry types.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("AppendHistory"); err != nil {
		return err
	}
	m.history[entry.DeploymentID] = append(m.history[entry.DeploymentID], entry)
	return nil
}

func (m *MockStore) ListHistory(_ context.Context, deploymentID string, limit int) ([]types.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[deploymentID]
	// Newest first, matching the real store.
	out := make([]types.HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockStore) AppendEvent(_ context.Context, event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("AppendEvent"); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	m.events[event.DeploymentID] = append(m.events[event.DeploymentID], event)
	return nil
}

func (m *MockStore) ListEvents(_ context.Context, deploymentID string, limit int) ([]types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events[deploymentID]
	out := make([]types.Event, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("AcquireLock"); err != nil {
		return false, err
	}
	if expiry, held := m.locks[key]; held && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockStore) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *MockStore) Start(_ context.Context) error { return nil }
func (m *MockStore) Stop(_ context.Context) error  { return nil }
func (m *MockStore) Ping(_ context.Context) error  { return m.err("Ping") }

// StateOf returns the stored state for a deployment, or nil. Test helper.
func (m *MockStore) StateOf(deploymentID string) *types.ShiftState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[deploymentID]
	if !ok {
		return nil
	}
	return &st
}

// EventKinds returns the kinds of recorded events in append order. Test helper.
func (m *MockStore) EventKinds(deploymentID string) []types.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]types.EventKind, 0, len(m.events[deploymentID]))
	for _, e := range m.events[deploymentID] {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// HistoryOf returns recorded history entries in append order. Test helper.
func (m *MockStore) HistoryOf(deploymentID string) []types.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.HistoryEntry(nil), m.history[deploymentID]...)
}

// LockHeld reports whether a lock key is currently held. Test helper.
func (m *MockStore) LockHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, held := m.locks[key]
	return held && time.Now().Before(expiry)
}
