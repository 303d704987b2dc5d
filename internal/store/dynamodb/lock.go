package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AcquireLock attempts to take a named lock via a conditional put. Returns
// true on success, false if another holder owns an unexpired lock.
func (s *DynamoDBStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl).Unix()

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":  &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			"SK":  &ddbtypes.AttributeValueMemberS{Value: lockSK},
			"ttl": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiry)},
		},
		// Succeed if the lock row is absent or its TTL has lapsed. TTL
		// deletion in DynamoDB is eventual, so expiry is checked here too.
		ConditionExpression: strPtr("attribute_not_exists(PK) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":now": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	return true, nil
}

// ReleaseLock deletes a lock record. Releasing a lock that does not exist is
// not an error.
func (s *DynamoDBStore) ReleaseLock(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: lockSK},
		},
	})
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", key, err)
	}
	return nil
}
