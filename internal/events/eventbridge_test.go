package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/shiftwise/pkg/types"
)

type mockEventBridge struct {
	entries []eventbridge.PutEventsInput
	err     error
}

func (m *mockEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.entries = append(m.entries, *in)
	return &eventbridge.PutEventsOutput{}, nil
}

func TestPublish(t *testing.T) {
	mock := &mockEventBridge{}
	p, err := NewEventBridgePublisher(types.EventBusConfig{BusName: "shiftwise"}, WithEventBridgeClient(mock))
	require.NoError(t, err)

	p.Publish(context.Background(), types.Event{
		Kind:         types.EventPhaseChanged,
		DeploymentID: "api",
		Phase:        types.PhaseMonitoring,
		Weight:       25,
	})

	require.Len(t, mock.entries, 1)
	entry := mock.entries[0].Entries[0]
	assert.Equal(t, "shiftwise", *entry.EventBusName)
	assert.Equal(t, "PHASE_CHANGED", *entry.DetailType)
	assert.Equal(t, eventSource, *entry.Source)

	var detail types.Event
	require.NoError(t, json.Unmarshal([]byte(*entry.Detail), &detail))
	assert.Equal(t, "api", detail.DeploymentID)
	assert.Equal(t, 25, detail.Weight)
	assert.False(t, detail.Timestamp.IsZero())
}

func TestPublishFailureDoesNotPanic(t *testing.T) {
	mock := &mockEventBridge{err: fmt.Errorf("bus unavailable")}
	p, err := NewEventBridgePublisher(types.EventBusConfig{BusName: "shiftwise"}, WithEventBridgeClient(mock))
	require.NoError(t, err)

	// Best effort: the failure is logged and swallowed.
	p.Publish(context.Background(), types.Event{Kind: types.EventPromoted, DeploymentID: "api"})
}

func TestNewRequiresBusName(t *testing.T) {
	_, err := NewEventBridgePublisher(types.EventBusConfig{})
	assert.Error(t, err)
}
