package opscmd

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/shiftwise/pkg/types"
)

type mockSQS struct {
	messages []sqstypes.Message
	deleted  []string
	recvErr  error
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	handle := fmt.Sprintf("receipt-%d", len(m.messages))
	m.messages = append(m.messages, sqstypes.Message{
		Body:          in.MessageBody,
		ReceiptHandle: &handle,
	})
	return &sqs.SendMessageOutput{}, nil
}

func (m *mockSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if m.recvErr != nil {
		return nil, m.recvErr
	}
	return &sqs.ReceiveMessageOutput{Messages: m.messages}, nil
}

func (m *mockSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleted = append(m.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func newTestQueue(t *testing.T) (*SQSQueue, *mockSQS) {
	t.Helper()
	mock := &mockSQS{}
	q, err := NewSQSQueue(types.CommandQueueConfig{
		QueueURL: "https://sqs.us-east-1.amazonaws.com/123/shiftwise-commands",
	}, WithSQSClient(mock))
	require.NoError(t, err)
	return q, mock
}

func TestSendAndDrain(t *testing.T) {
	q, mock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, types.Command{Verb: types.CommandStart, DeploymentID: "api"}))
	require.NoError(t, q.Send(ctx, types.Command{Verb: types.CommandAbort, DeploymentID: "web"}))

	commands, err := q.Drain(ctx, "api")
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, types.CommandStart, commands[0].Verb)
	assert.False(t, commands[0].RequestedAt.IsZero())

	// Only the consumed message is deleted; the other deployment's command
	// stays queued.
	assert.Len(t, mock.deleted, 1)
}

func TestDrainDiscardsMalformed(t *testing.T) {
	q, mock := newTestQueue(t)
	ctx := context.Background()

	bad := "not json"
	handle := "bad-receipt"
	mock.messages = append(mock.messages, sqstypes.Message{Body: &bad, ReceiptHandle: &handle})

	good, _ := json.Marshal(types.Command{Verb: types.CommandAbort, DeploymentID: "api"})
	goodBody := string(good)
	goodHandle := "good-receipt"
	mock.messages = append(mock.messages, sqstypes.Message{Body: &goodBody, ReceiptHandle: &goodHandle})

	commands, err := q.Drain(ctx, "api")
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, types.CommandAbort, commands[0].Verb)

	// Malformed messages are deleted so they do not loop forever.
	assert.Contains(t, mock.deleted, "bad-receipt")
}

func TestDrainError(t *testing.T) {
	q, mock := newTestQueue(t)
	mock.recvErr = fmt.Errorf("queue unavailable")

	_, err := q.Drain(context.Background(), "api")
	assert.Error(t, err)
}

func TestSendRequiresDeployment(t *testing.T) {
	q, _ := newTestQueue(t)
	err := q.Send(context.Background(), types.Command{Verb: types.CommandStart})
	assert.Error(t, err)
}

func TestNewRequiresQueueURL(t *testing.T) {
	_, err := NewSQSQueue(types.CommandQueueConfig{})
	assert.Error(t, err)
}
