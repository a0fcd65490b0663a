package store_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-items-server/store"
)

// fakeDynamo is an in-memory table understanding the expressions DynamoStore
// issues. Scan returns pages of two to exercise pagination.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	calls int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(av map[string]types.AttributeValue) string {
	return av["id"].(*types.AttributeValueMemberS).Value
}

func copyAV(av map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(av))
	for k, v := range av {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	id := keyOf(in.Item)
	if _, exists := f.items[id]; exists && aws.ToString(in.ConditionExpression) == "attribute_not_exists(id)" {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[id] = copyAV(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	it, ok := f.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyAV(it)}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	it, ok := f.items[keyOf(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	for name, field := range in.ExpressionAttributeNames {
		it[field] = in.ExpressionAttributeValues[":v"+strings.TrimPrefix(name, "#f")]
	}
	return &dynamodb.UpdateItemOutput{Attributes: copyAV(it)}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if in.ExclusiveStartKey != nil {
		after := keyOf(in.ExclusiveStartKey)
		i := sort.SearchStrings(keys, after)
		if i < len(keys) && keys[i] == after {
			i++
		}
		keys = keys[i:]
	}
	out := &dynamodb.ScanOutput{}
	for i, k := range keys {
		if i == 2 {
			out.LastEvaluatedKey = map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: keys[i-1]},
			}
			break
		}
		out.Items = append(out.Items, copyAV(f.items[k]))
	}
	return out, nil
}

type failingDynamo struct{ *fakeDynamo }

func (f *failingDynamo) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return nil, errors.New("connection reset")
}

func TestDynamoStore(t *testing.T) {
	s := store.NewDynamoStore(newFakeDynamo(), "items", store.WithSchema(itemSchema(t)))
	runStoreTests(t, s, uuid.NewString())
}

func TestDynamoStoreIDs(t *testing.T) {
	ctx := context.Background()
	s := store.NewDynamoStore(newFakeDynamo(), "items")

	it, err := s.Create(ctx, map[string]any{})
	require.NoError(t, err)
	id, ok := it.ID().(string)
	require.True(t, ok)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, true, it["isActive"], "schema default")

	got, err := s.FindByID(ctx, strings.ToUpper(id))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID())
}

func TestDynamoStoreInvalidID(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	s := store.NewDynamoStore(fake, "items")

	_, err := s.FindByID(ctx, "not-a-valid-id")
	var invalid *store.InvalidIDError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "UUID", invalid.Kind)
	assert.ErrorIs(t, err, store.ErrInvalidID)
	assert.Zero(t, fake.calls, "no backend lookup")

	_, err = s.Update(ctx, "nope", map[string]any{})
	assert.ErrorIs(t, err, store.ErrInvalidID)
	assert.ErrorIs(t, s.Delete(ctx, "nope"), store.ErrInvalidID)
}

func TestDynamoStoreBackendFailure(t *testing.T) {
	s := store.NewDynamoStore(&failingDynamo{newFakeDynamo()}, "items")
	_, err := s.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
