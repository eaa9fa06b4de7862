// Package testing provides a scripted DynamoDB store for tests of code built
// on dynaquery.
//
//	store := dqtesting.NewTestStore()
//	store.ExpectQueryPages(
//		[]map[string]types.AttributeValue{store.Row(t, order1)},
//		[]map[string]types.AttributeValue{store.Row(t, order2)},
//	)
//	orders, _ := dynaquery.Table[Order](store.Client, "Order")
//	...
//	store.AssertExpectations(t)
package testing

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/dynaquery"
	"github.com/pay-theory/dynaquery/pkg/mocks"
	"github.com/pay-theory/dynaquery/pkg/model"
)

// TestStore pairs a mock DynamoDB client with a dynaquery client built on it.
type TestStore struct {
	Mock   *mocks.MockDynamoDBClient
	Client *dynaquery.Client
}

// NewTestStore creates a store and registers entities on its client.
func NewTestStore(t *testing.T, entities ...*model.Entity) *TestStore {
	t.Helper()
	m := new(mocks.MockDynamoDBClient)
	c := dynaquery.NewWithAPI(m)
	require.NoError(t, c.Register(entities...))
	return &TestStore{Mock: m, Client: c}
}

// Row marshals v as it would be stored, without entity transforms.
func (s *TestStore) Row(t *testing.T, v any) map[string]types.AttributeValue {
	t.Helper()
	row, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return row
}

// ExpectQueryPages scripts consecutive Query responses. Every page but the
// last carries its final row as LastEvaluatedKey.
func (s *TestStore) ExpectQueryPages(pages ...[]map[string]types.AttributeValue) {
	for i, items := range pages {
		s.Mock.On("Query", mock.Anything, mock.AnythingOfType("*dynamodb.QueryInput"), mock.Anything).
			Return(&dynamodb.QueryOutput{
				Items:            items,
				Count:            int32(len(items)),
				ScannedCount:     int32(len(items)),
				LastEvaluatedKey: lastKey(items, i == len(pages)-1),
			}, nil).Once()
	}
}

// ExpectScanPages scripts consecutive Scan responses the same way.
func (s *TestStore) ExpectScanPages(pages ...[]map[string]types.AttributeValue) {
	for i, items := range pages {
		s.Mock.On("Scan", mock.Anything, mock.AnythingOfType("*dynamodb.ScanInput"), mock.Anything).
			Return(&dynamodb.ScanOutput{
				Items:            items,
				Count:            int32(len(items)),
				ScannedCount:     int32(len(items)),
				LastEvaluatedKey: lastKey(items, i == len(pages)-1),
			}, nil).Once()
	}
}

// ExpectGet scripts one GetItem response. A nil item is a miss.
func (s *TestStore) ExpectGet(item map[string]types.AttributeValue) {
	s.Mock.On("GetItem", mock.Anything, mock.AnythingOfType("*dynamodb.GetItemInput"), mock.Anything).
		Return(&dynamodb.GetItemOutput{Item: item}, nil).Once()
}

// ExpectWrite scripts one successful PutItem, UpdateItem or DeleteItem call.
func (s *TestStore) ExpectWrite(operation string) {
	s.Mock.On(operation, mock.Anything, mock.Anything, mock.Anything).Return(writeOutput(operation), nil).Once()
}

// ExpectConditionFailed scripts one write rejected by its condition.
func (s *TestStore) ExpectConditionFailed(operation string) {
	s.Mock.On(operation, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}).Once()
}

// ExpectError scripts one failing call of operation.
func (s *TestStore) ExpectError(operation string, err error) {
	s.Mock.On(operation, mock.Anything, mock.Anything, mock.Anything).Return(nil, err).Once()
}

// AssertExpectations asserts every scripted call was made.
func (s *TestStore) AssertExpectations(t *testing.T) {
	t.Helper()
	s.Mock.AssertExpectations(t)
}

func lastKey(items []map[string]types.AttributeValue, last bool) map[string]types.AttributeValue {
	if last || len(items) == 0 {
		return nil
	}
	return items[len(items)-1]
}

func writeOutput(operation string) any {
	switch operation {
	case "PutItem":
		return &dynamodb.PutItemOutput{}
	case "UpdateItem":
		return &dynamodb.UpdateItemOutput{}
	case "DeleteItem":
		return &dynamodb.DeleteItemOutput{}
	}
	return nil
}
