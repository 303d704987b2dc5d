package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// RegisterDeployment stores a deployment configuration. Re-registering an
// existing deployment overwrites its config but never its shift state.
func (s *DynamoDBStore) RegisterDeployment(ctx context.Context, cfg types.DeploymentConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("deployment name is required")
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}

	data, err := attributevalue.MarshalMap(cfg)
	if err != nil {
		return fmt.Errorf("marshaling deployment config: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: deployPK(cfg.Name)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: configSK},
			"data": &ddbtypes.AttributeValueMemberM{Value: data},
		},
	})
	if err != nil {
		return fmt.Errorf("storing deployment %s: %w", cfg.Name, err)
	}

	s.logger.Info("deployment registered", "deployment", cfg.Name, "listeners", len(cfg.ListenerARNs))
	return nil
}

// GetDeployment retrieves a deployment configuration by name. Returns nil if
// not found.
func (s *DynamoDBStore) GetDeployment(ctx context.Context, name string) (*types.DeploymentConfig, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: deployPK(name)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: configSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting deployment %s: %w", name, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	m, ok := out.Item["data"].(*ddbtypes.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("deployment %s: malformed data attribute", name)
	}
	var cfg types.DeploymentConfig
	if err := attributevalue.UnmarshalMap(m.Value, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling deployment %s: %w", name, err)
	}
	return &cfg, nil
}

// ListDeployments returns all registered deployment configurations.
func (s *DynamoDBStore) ListDeployments(ctx context.Context) ([]types.DeploymentConfig, error) {
	var deployments []types.DeploymentConfig
	var startKey map[string]ddbtypes.AttributeValue

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        &s.tableName,
			FilterExpression: strPtr("begins_with(PK, :prefix) AND SK = :sk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":prefix": &ddbtypes.AttributeValueMemberS{Value: deployPrefix},
				":sk":     &ddbtypes.AttributeValueMemberS{Value: configSK},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("listing deployments: %w", err)
		}

		for _, item := range out.Items {
			m, ok := item["data"].(*ddbtypes.AttributeValueMemberM)
			if !ok {
				continue
			}
			var cfg types.DeploymentConfig
			if err := attributevalue.UnmarshalMap(m.Value, &cfg); err != nil {
				s.logger.Warn("skipping malformed deployment record", "error", err)
				continue
			}
			deployments = append(deployments, cfg)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return deployments, nil
}

// DeleteDeployment removes a deployment's configuration and current state.
// History and event records age out via TTL.
func (s *DynamoDBStore) DeleteDeployment(ctx context.Context, name string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: deployPK(name)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: configSK},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting deployment %s: %w", name, err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: statePK(name)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: currentSK},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting state for %s: %w", name, err)
	}

	s.logger.Info("deployment deleted", "deployment", name)
	return nil
}

func strPtr(s string) *string { return &s }
