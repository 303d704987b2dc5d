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

// AppendHistory records one point of the shift's audit trail. Records expire
// via the retention TTL.
func (s *DynamoDBStore) AppendHistory(ctx context.Context, entry types.HistoryEntry) error {
	if entry.DeploymentID == "" {
		return fmt.Errorf("history deployment ID is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling history entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: historyPK(entry.DeploymentID)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: newSortID(entry.Timestamp)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(entry.Timestamp, s.retentionTTL))},
		},
	})
	if err != nil {
		return fmt.Errorf("appending history for %s: %w", entry.DeploymentID, err)
	}
	return nil
}

// ListHistory returns the most recent history entries for a deployment,
// newest first.
func (s *DynamoDBStore) ListHistory(ctx context.Context, deploymentID string, limit int) ([]types.HistoryEntry, error) {
	out, err := s.queryNewest(ctx, historyPK(deploymentID), limit)
	if err != nil {
		return nil, fmt.Errorf("listing history for %s: %w", deploymentID, err)
	}

	var entries []types.HistoryEntry
	for _, item := range out.Items {
		data, err := attributeStr(item, "data")
		if err != nil {
			continue
		}
		var entry types.HistoryEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			s.logger.Warn("skipping malformed history record", "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// queryNewest runs a descending query over a partition, limited to the most
// recent items. ULID sort keys make timestamp order and key order agree.
func (s *DynamoDBStore) queryNewest(ctx context.Context, pk string, limit int) (*dynamodb.QueryOutput, error) {
	in := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: strPtr("PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: boolPtr(false),
	}
	if limit > 0 {
		l := int32(limit)
		in.Limit = &l
	}
	return s.client.Query(ctx, in)
}
