// Package mocks provides testify mocks for the dynaquery store interface.
//
// Expectations are registered against the SDK input the code under test is
// expected to send:
//
//	client := new(mocks.MockDynamoDBClient)
//	client.On("Query", mock.Anything, mock.Anything, mock.Anything).
//	    Return(&dynamodb.QueryOutput{Items: items}, nil).Once()
//
//	c := dynaquery.NewWithAPI(client)
//
// Use mock.MatchedBy to assert on the rendered expressions:
//
//	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
//	    return aws.ToString(in.KeyConditionExpression) == "pk = :pk"
//	}), mock.Anything).Return(&dynamodb.QueryOutput{}, nil)
package mocks

// DynamoDB is an alias for MockDynamoDBClient to allow shorter declarations
type DynamoDB = MockDynamoDBClient
