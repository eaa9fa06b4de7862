// Package core defines the store client interface and the compiled request
// shape shared by the query, condition and entity layers.
package core

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI defines the DynamoDB operations dynaquery issues. *dynamodb.Client satisfies it.
type DynamoDBAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

// Operation names a DynamoDB request type.
type Operation string

const (
	OpQuery      Operation = "Query"
	OpScan       Operation = "Scan"
	OpGetItem    Operation = "GetItem"
	OpPutItem    Operation = "PutItem"
	OpUpdateItem Operation = "UpdateItem"
	OpDeleteItem Operation = "DeleteItem"
)

// CompiledQuery represents a compiled request ready for execution. Empty
// expression strings and empty maps are omitted from the SDK inputs.
type CompiledQuery struct {
	Operation Operation
	TableName string
	IndexName string

	// Expression components
	KeyConditionExpression string
	FilterExpression       string
	ProjectionExpression   string
	UpdateExpression       string
	ConditionExpression    string

	// Expression mappings
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue

	// Point operations
	Key  map[string]types.AttributeValue
	Item map[string]types.AttributeValue

	// Other query parameters
	Limit             *int32
	ExclusiveStartKey map[string]types.AttributeValue
	ScanIndexForward  *bool
	ConsistentRead    *bool
	Select            types.Select
	ReturnValues      types.ReturnValue

	// Parallel scan parameters
	Segment       *int32
	TotalSegments *int32
}

// QueryInput converts the compiled request into a QueryInput.
func (c *CompiledQuery) QueryInput() *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                 aws.String(c.TableName),
		IndexName:                 optional(c.IndexName),
		KeyConditionExpression:    optional(c.KeyConditionExpression),
		FilterExpression:          optional(c.FilterExpression),
		ProjectionExpression:      optional(c.ProjectionExpression),
		ExpressionAttributeNames:  names(c.ExpressionAttributeNames),
		ExpressionAttributeValues: values(c.ExpressionAttributeValues),
		Limit:                     c.Limit,
		ExclusiveStartKey:         values(c.ExclusiveStartKey),
		ScanIndexForward:          c.ScanIndexForward,
		ConsistentRead:            c.ConsistentRead,
		Select:                    c.Select,
	}
}

// ScanInput converts the compiled request into a ScanInput.
func (c *CompiledQuery) ScanInput() *dynamodb.ScanInput {
	return &dynamodb.ScanInput{
		TableName:                 aws.String(c.TableName),
		IndexName:                 optional(c.IndexName),
		FilterExpression:          optional(c.FilterExpression),
		ProjectionExpression:      optional(c.ProjectionExpression),
		ExpressionAttributeNames:  names(c.ExpressionAttributeNames),
		ExpressionAttributeValues: values(c.ExpressionAttributeValues),
		Limit:                     c.Limit,
		ExclusiveStartKey:         values(c.ExclusiveStartKey),
		ConsistentRead:            c.ConsistentRead,
		Select:                    c.Select,
		Segment:                   c.Segment,
		TotalSegments:             c.TotalSegments,
	}
}

// GetItemInput converts the compiled request into a GetItemInput.
func (c *CompiledQuery) GetItemInput() *dynamodb.GetItemInput {
	return &dynamodb.GetItemInput{
		TableName:                aws.String(c.TableName),
		Key:                      c.Key,
		ProjectionExpression:     optional(c.ProjectionExpression),
		ExpressionAttributeNames: names(c.ExpressionAttributeNames),
		ConsistentRead:           c.ConsistentRead,
	}
}

// PutItemInput converts the compiled request into a PutItemInput.
func (c *CompiledQuery) PutItemInput() *dynamodb.PutItemInput {
	return &dynamodb.PutItemInput{
		TableName:                 aws.String(c.TableName),
		Item:                      c.Item,
		ConditionExpression:       optional(c.ConditionExpression),
		ExpressionAttributeNames:  names(c.ExpressionAttributeNames),
		ExpressionAttributeValues: values(c.ExpressionAttributeValues),
		ReturnValues:              c.ReturnValues,
	}
}

// UpdateItemInput converts the compiled request into an UpdateItemInput.
func (c *CompiledQuery) UpdateItemInput() *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.TableName),
		Key:                       c.Key,
		UpdateExpression:          optional(c.UpdateExpression),
		ConditionExpression:       optional(c.ConditionExpression),
		ExpressionAttributeNames:  names(c.ExpressionAttributeNames),
		ExpressionAttributeValues: values(c.ExpressionAttributeValues),
		ReturnValues:              c.ReturnValues,
	}
}

// DeleteItemInput converts the compiled request into a DeleteItemInput.
func (c *CompiledQuery) DeleteItemInput() *dynamodb.DeleteItemInput {
	return &dynamodb.DeleteItemInput{
		TableName:                 aws.String(c.TableName),
		Key:                       c.Key,
		ConditionExpression:       optional(c.ConditionExpression),
		ExpressionAttributeNames:  names(c.ExpressionAttributeNames),
		ExpressionAttributeValues: values(c.ExpressionAttributeValues),
		ReturnValues:              c.ReturnValues,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func names(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}

func values(m map[string]types.AttributeValue) map[string]types.AttributeValue {
	if len(m) == 0 {
		return nil
	}
	return m
}
