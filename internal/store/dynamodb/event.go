package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// AppendEvent records an audit event. Records expire via the retention TTL.
func (s *DynamoDBStore) AppendEvent(ctx context.Context, event types.Event) error {
	if event.DeploymentID == "" {
		return fmt.Errorf("event deployment ID is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: eventPK(event.DeploymentID)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: newSortID(event.Timestamp)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(event.Timestamp, s.retentionTTL))},
		},
	})
	if err != nil {
		return fmt.Errorf("appending event for %s: %w", event.DeploymentID, err)
	}
	return nil
}

// ListEvents returns the most recent audit events for a deployment, newest
// first.
func (s *DynamoDBStore) ListEvents(ctx context.Context, deploymentID string, limit int) ([]types.Event, error) {
	out, err := s.queryNewest(ctx, eventPK(deploymentID), limit)
	if err != nil {
		return nil, fmt.Errorf("listing events for %s: %w", deploymentID, err)
	}

	var events []types.Event
	for _, item := range out.Items {
		data, err := attributeStr(item, "data")
		if err != nil {
			continue
		}
		var event types.Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			s.logger.Warn("skipping malformed event record", "error", err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
