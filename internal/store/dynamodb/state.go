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

// PutState writes the shift state unconditionally. Used only when creating a
// fresh state record; running controllers must go through CompareAndSwapState.
func (s *DynamoDBStore) PutState(ctx context.Context, state types.ShiftState) error {
	if state.DeploymentID == "" {
		return fmt.Errorf("state deployment ID is required")
	}
	state.UpdatedAt = time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":      &ddbtypes.AttributeValueMemberS{Value: statePK(state.DeploymentID)},
			"SK":      &ddbtypes.AttributeValueMemberS{Value: currentSK},
			"data":    &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"version": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", state.Version)},
		},
	})
	if err != nil {
		return fmt.Errorf("storing state for %s: %w", state.DeploymentID, err)
	}
	return nil
}

// GetState retrieves the current shift state for a deployment. Returns nil if
// no shift has started.
func (s *DynamoDBStore) GetState(ctx context.Context, deploymentID string) (*types.ShiftState, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: boolPtr(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: statePK(deploymentID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: currentSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting state for %s: %w", deploymentID, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, fmt.Errorf("state for %s: %w", deploymentID, err)
	}
	var state types.ShiftState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("unmarshaling state for %s: %w", deploymentID, err)
	}

	// The top-level version attribute is authoritative; it is what the CAS
	// condition checks.
	if v, err := attributeInt(out.Item, "version"); err == nil {
		state.Version = int(v)
	}
	return &state, nil
}

// CompareAndSwapState writes newState only if the stored version still equals
// expectedVersion. Returns false without error when the version moved, which
// means another controller instance won the write.
func (s *DynamoDBStore) CompareAndSwapState(ctx context.Context, deploymentID string, expectedVersion int, newState types.ShiftState) (bool, error) {
	newState.DeploymentID = deploymentID
	newState.Version = expectedVersion + 1
	newState.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(newState)
	if err != nil {
		return false, fmt.Errorf("marshaling state: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: statePK(deploymentID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: currentSK},
		},
		UpdateExpression:    strPtr("SET #data = :data, #version = :newVersion"),
		ConditionExpression: strPtr("#version = :expectedVersion"),
		ExpressionAttributeNames: map[string]string{
			"#data":    "data",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":data":            &ddbtypes.AttributeValueMemberS{Value: string(data)},
			":newVersion":      &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", newState.Version)},
			":expectedVersion": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			s.logger.Warn("state CAS lost", "deployment", deploymentID, "expectedVersion", expectedVersion)
			return false, nil
		}
		return false, fmt.Errorf("updating state for %s: %w", deploymentID, err)
	}
	return true, nil
}

func boolPtr(b bool) *bool { return &b }
