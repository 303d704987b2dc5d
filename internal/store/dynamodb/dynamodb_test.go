package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftwise/shiftwise/pkg/types"
)

// mockDDB is an in-memory DynamoDB standing in for the real client. It
// interprets only the condition expressions this package actually writes.
type mockDDB struct {
	mu    sync.Mutex
	items map[string]map[string]ddbtypes.AttributeValue
}

func newMockDDB() *mockDDB {
	return &mockDDB{items: make(map[string]map[string]ddbtypes.AttributeValue)}
}

func itemKey(item map[string]ddbtypes.AttributeValue) string {
	pk := item["PK"].(*ddbtypes.AttributeValueMemberS).Value
	sk := item["SK"].(*ddbtypes.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func numAttr(item map[string]ddbtypes.AttributeValue, name string) (int64, bool) {
	av, ok := item[name]
	if !ok {
		return 0, false
	}
	n, ok := av.(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	return v, err == nil
}

func (m *mockDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(in.Item)
	if in.ConditionExpression != nil {
		// Lock condition: attribute_not_exists(PK) OR #ttl < :now
		existing, exists := m.items[key]
		if exists {
			ttl, _ := numAttr(existing, "ttl")
			now, _ := numAttr(map[string]ddbtypes.AttributeValue{"n": in.ExpressionAttributeValues[":now"]}, "n")
			if ttl >= now {
				return nil, &ddbtypes.ConditionalCheckFailedException{}
			}
		}
	}
	m.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (m *mockDDB) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDB) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(in.Key)
	existing, exists := m.items[key]
	if !exists {
		return nil, &ddbtypes.ConditionalCheckFailedException{}
	}
	// CAS condition: #version = :expectedVersion
	ver, _ := numAttr(existing, "version")
	expected, _ := numAttr(map[string]ddbtypes.AttributeValue{"n": in.ExpressionAttributeValues[":expectedVersion"]}, "n")
	if ver != expected {
		return nil, &ddbtypes.ConditionalCheckFailedException{}
	}
	existing["data"] = in.ExpressionAttributeValues[":data"]
	existing["version"] = in.ExpressionAttributeValues[":newVersion"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := in.ExpressionAttributeValues[":pk"].(*ddbtypes.AttributeValueMemberS).Value
	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, pk+"|") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(keys) {
		keys = keys[:*in.Limit]
	}

	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, m.items[k])
	}
	return out, nil
}

func (m *mockDDB) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := in.ExpressionAttributeValues[":prefix"].(*ddbtypes.AttributeValueMemberS).Value
	sk := in.ExpressionAttributeValues[":sk"].(*ddbtypes.AttributeValueMemberS).Value

	out := &dynamodb.ScanOutput{}
	for k, item := range m.items {
		if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, "|"+sk) {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (m *mockDDB) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockDDB) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockDDB) UpdateTimeToLive(_ context.Context, _ *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func newTestStore(t *testing.T) (*DynamoDBStore, *mockDDB) {
	t.Helper()
	mock := newMockDDB()
	s, err := New(&types.DynamoDBConfig{TableName: "shiftwise-test"}, WithClient(mock))
	require.NoError(t, err)
	return s, mock
}

func TestDeploymentRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	cfg := types.DeploymentConfig{
		Name:           "checkout",
		ListenerARNs:   []string{"arn:aws:elasticloadbalancing:us-east-1:123:listener/app/lb/1/2"},
		BlueTargetARN:  "arn:aws:elasticloadbalancing:us-east-1:123:targetgroup/blue/1",
		GreenTargetARN: "arn:aws:elasticloadbalancing:us-east-1:123:targetgroup/green/1",
	}
	require.NoError(t, s.RegisterDeployment(ctx, cfg))

	got, err := s.GetDeployment(ctx, "checkout")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cfg.Name, got.Name)
	assert.Equal(t, cfg.ListenerARNs, got.ListenerARNs)
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := s.GetDeployment(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRegisterDeploymentRequiresName(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.RegisterDeployment(context.Background(), types.DeploymentConfig{})
	assert.Error(t, err)
}

func TestListDeployments(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"api", "web", "worker"} {
		require.NoError(t, s.RegisterDeployment(ctx, types.DeploymentConfig{Name: name}))
	}

	deployments, err := s.ListDeployments(ctx)
	require.NoError(t, err)
	assert.Len(t, deployments, 3)
}

func TestDeleteDeploymentRemovesState(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterDeployment(ctx, types.DeploymentConfig{Name: "api"}))
	require.NoError(t, s.PutState(ctx, types.ShiftState{DeploymentID: "api", Phase: types.PhaseMonitoring}))

	require.NoError(t, s.DeleteDeployment(ctx, "api"))

	cfg, err := s.GetDeployment(ctx, "api")
	require.NoError(t, err)
	assert.Nil(t, cfg)
	st, err := s.GetState(ctx, "api")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestStateCAS(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	initial := types.ShiftState{
		DeploymentID:  "api",
		Phase:         types.PhaseDeploying,
		CurrentWeight: 0,
		TargetWeight:  10,
		Version:       1,
	}
	require.NoError(t, s.PutState(ctx, initial))

	next := initial
	next.Phase = types.PhaseMonitoring
	next.CurrentWeight = 10

	ok, err := s.CompareAndSwapState(ctx, "api", 1, next)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetState(ctx, "api")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.PhaseMonitoring, got.Phase)
	assert.Equal(t, 10, got.CurrentWeight)
	assert.Equal(t, 2, got.Version)

	// Second swap with the stale version must lose without error.
	ok, err = s.CompareAndSwapState(ctx, "api", 1, next)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCASOnMissingState(t *testing.T) {
	s, _ := newTestStore(t)
	ok, err := s.CompareAndSwapState(context.Background(), "ghost", 0, types.ShiftState{DeploymentID: "ghost"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, w := range []int{10, 25, 50} {
		require.NoError(t, s.AppendHistory(ctx, types.HistoryEntry{
			DeploymentID: "api",
			Phase:        types.PhaseMonitoring,
			Weight:       w,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := s.ListHistory(ctx, "api", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 50, entries[0].Weight)
	assert.Equal(t, 25, entries[1].Weight)
}

func TestEventsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, types.Event{
		Kind:         types.EventPhaseChanged,
		DeploymentID: "api",
		Phase:        types.PhaseMonitoring,
		Weight:       25,
	}))

	events, err := s.ListEvents(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventPhaseChanged, events[0].Kind)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestLockExclusion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "shift:api", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "shift:api", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "shift:api"))

	ok, err = s.AcquireLock(ctx, "shift:api", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLockIsReacquirable(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "shift:api", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Age the lock past its TTL.
	mock.mu.Lock()
	item := mock.items[lockPK("shift:api")+"|"+lockSK]
	item["ttl"] = &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())}
	mock.mu.Unlock()

	ok, err = s.AcquireLock(ctx, "shift:api", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
