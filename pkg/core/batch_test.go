package core_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/dynaquery/pkg/core"
	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/mocks"
)

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: id}}
}

func item(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":   &types.AttributeValueMemberS{Value: id},
		"note": &types.AttributeValueMemberS{Value: "n-" + id},
	}
}

func TestBatchGetChunksAndOrders(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)

	keys := make([]map[string]types.AttributeValue, 150)
	for i := range keys {
		keys[i] = key(fmt.Sprintf("k%03d", i))
	}

	client.On("BatchGetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchGetItemInput) bool {
		return len(in.RequestItems["orders"].Keys) == 100
	}), mock.Anything).Return(&dynamodb.BatchGetItemOutput{
		// returned out of order
		Responses: map[string][]map[string]types.AttributeValue{"orders": {item("k001"), item("k000")}},
	}, nil).Once()
	client.On("BatchGetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchGetItemInput) bool {
		return len(in.RequestItems["orders"].Keys) == 50
	}), mock.Anything).Return(&dynamodb.BatchGetItemOutput{
		Responses: map[string][]map[string]types.AttributeValue{"orders": {item("k149")}},
	}, nil).Once()

	items, err := core.NewBatchExecutor(client).BatchGet(context.Background(), &core.BatchGetRequest{
		TableName: "orders",
		Keys:      keys,
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, item("k000"), items[0])
	assert.Equal(t, item("k001"), items[1])
	assert.Equal(t, item("k149"), items[2])
	client.AssertExpectations(t)
}

func TestBatchGetRetriesUnprocessed(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)

	client.On("BatchGetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchGetItemInput) bool {
		return len(in.RequestItems["orders"].Keys) == 2
	}), mock.Anything).Return(&dynamodb.BatchGetItemOutput{
		Responses:       map[string][]map[string]types.AttributeValue{"orders": {item("a")}},
		UnprocessedKeys: map[string]types.KeysAndAttributes{"orders": {Keys: []map[string]types.AttributeValue{key("b")}}},
	}, nil).Once()
	client.On("BatchGetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchGetItemInput) bool {
		return len(in.RequestItems["orders"].Keys) == 1
	}), mock.Anything).Return(&dynamodb.BatchGetItemOutput{
		Responses: map[string][]map[string]types.AttributeValue{"orders": {item("b")}},
	}, nil).Once()

	items, err := core.NewBatchExecutor(client).WithRetry(3, 0).BatchGet(context.Background(), &core.BatchGetRequest{
		TableName: "orders",
		Keys:      []map[string]types.AttributeValue{key("a"), key("b")},
	})
	require.NoError(t, err)
	assert.Equal(t, []map[string]types.AttributeValue{item("a"), item("b")}, items)
	client.AssertExpectations(t)
}

func TestBatchGetGivesUp(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	client.On("BatchGetItem", mock.Anything, mock.Anything, mock.Anything).Return(&dynamodb.BatchGetItemOutput{
		UnprocessedKeys: map[string]types.KeysAndAttributes{"orders": {Keys: []map[string]types.AttributeValue{key("a")}}},
	}, nil).Times(2)

	_, err := core.NewBatchExecutor(client).WithRetry(2, 0).BatchGet(context.Background(), &core.BatchGetRequest{
		TableName: "orders",
		Keys:      []map[string]types.AttributeValue{key("a")},
	})
	assert.ErrorIs(t, err, errors.ErrBatchUnprocessed)
	client.AssertExpectations(t)
}

func TestBatchGetProjection(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	client.On("BatchGetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchGetItemInput) bool {
		ka := in.RequestItems["orders"]
		return aws.ToString(ka.ProjectionExpression) == "#name" &&
			ka.ExpressionAttributeNames["#name"] == "name" &&
			aws.ToBool(ka.ConsistentRead)
	}), mock.Anything).Return(&dynamodb.BatchGetItemOutput{}, nil).Once()

	items, err := core.NewBatchExecutor(client).BatchGet(context.Background(), &core.BatchGetRequest{
		TableName:                "orders",
		Keys:                     []map[string]types.AttributeValue{key("a")},
		ProjectionExpression:     "#name",
		ExpressionAttributeNames: map[string]string{"#name": "name"},
		ConsistentRead:           true,
	})
	require.NoError(t, err)
	assert.Empty(t, items)
	client.AssertExpectations(t)
}

func TestBatchWrite(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)

	items := make([]map[string]types.AttributeValue, 30)
	for i := range items {
		items[i] = item(fmt.Sprintf("i%d", i))
	}

	client.On("BatchWriteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchWriteItemInput) bool {
		return len(in.RequestItems["orders"]) == 25
	}), mock.Anything).Return(&dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]types.WriteRequest{"orders": {{PutRequest: &types.PutRequest{Item: items[0]}}}},
	}, nil).Once()
	client.On("BatchWriteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchWriteItemInput) bool {
		return len(in.RequestItems["orders"]) == 1
	}), mock.Anything).Return(&dynamodb.BatchWriteItemOutput{}, nil).Once()
	client.On("BatchWriteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.BatchWriteItemInput) bool {
		return len(in.RequestItems["orders"]) == 5
	}), mock.Anything).Return(&dynamodb.BatchWriteItemOutput{}, nil).Once()

	result, err := core.NewBatchExecutor(client).WithRetry(3, 0).BatchPut(context.Background(), "orders", items)
	require.NoError(t, err)
	assert.Equal(t, 30, result.Processed)
	client.AssertExpectations(t)
}

func TestBatchDeleteStoreError(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	boom := fmt.Errorf("throttled")
	client.On("BatchWriteItem", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom).Once()

	result, err := core.NewBatchExecutor(client).BatchDelete(context.Background(), "orders", []map[string]types.AttributeValue{key("a")})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, result.Processed)
}

func TestBatchWaitHonorsContext(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	client.On("BatchWriteItem", mock.Anything, mock.Anything, mock.Anything).Return(&dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]types.WriteRequest{"orders": {{DeleteRequest: &types.DeleteRequest{Key: key("a")}}}},
	}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := core.NewBatchExecutor(client).BatchDelete(ctx, "orders", []map[string]types.AttributeValue{key("a")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFingerprint(t *testing.T) {
	a := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "x"},
		"sk": &types.AttributeValueMemberN{Value: "1"},
	}
	b := map[string]types.AttributeValue{
		"sk":    &types.AttributeValueMemberN{Value: "1"},
		"pk":    &types.AttributeValueMemberS{Value: "x"},
		"other": &types.AttributeValueMemberS{Value: "ignored"},
	}
	assert.Equal(t, core.Fingerprint(a, []string{"pk", "sk"}), core.Fingerprint(b, []string{"sk", "pk"}))
	assert.NotEqual(t, core.Fingerprint(a, []string{"pk"}), core.Fingerprint(key("y"), []string{"pk"}))
}

func TestCompiledQueryInputsOmitEmpty(t *testing.T) {
	q := &core.CompiledQuery{Operation: core.OpQuery, TableName: "orders", KeyConditionExpression: "pk = :pk"}
	in := q.QueryInput()
	assert.Equal(t, "orders", aws.ToString(in.TableName))
	assert.Equal(t, "pk = :pk", aws.ToString(in.KeyConditionExpression))
	assert.Nil(t, in.IndexName)
	assert.Nil(t, in.FilterExpression)
	assert.Nil(t, in.ExpressionAttributeNames)
	assert.Nil(t, in.ExpressionAttributeValues)
	assert.Nil(t, in.ExclusiveStartKey)

	scan := (&core.CompiledQuery{TableName: "orders", Segment: aws.Int32(1), TotalSegments: aws.Int32(4)}).ScanInput()
	assert.Equal(t, int32(1), aws.ToInt32(scan.Segment))
	assert.Equal(t, int32(4), aws.ToInt32(scan.TotalSegments))
	assert.Nil(t, scan.FilterExpression)
}
