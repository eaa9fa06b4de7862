package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/pkg/errors"
)

const (
	// MaxBatchGetSize is the BatchGetItem request limit.
	MaxBatchGetSize = 100
	// MaxBatchWriteSize is the BatchWriteItem request limit.
	MaxBatchWriteSize = 25

	defaultBatchAttempts = 5
	defaultBatchBackoff  = 50 * time.Millisecond
)

// BatchGetRequest describes a BatchGetItem against one table.
type BatchGetRequest struct {
	TableName                string
	Keys                     []map[string]types.AttributeValue
	ProjectionExpression     string
	ExpressionAttributeNames map[string]string
	ConsistentRead           bool
}

// BatchWriteResult contains the result of a batch write operation
type BatchWriteResult struct {
	Processed        int
	ConsumedCapacity []types.ConsumedCapacity
}

// BatchExecutor runs batch requests, chunking them to the service limits and
// re-requesting whatever the service reports as unprocessed.
type BatchExecutor struct {
	client      DynamoDBAPI
	maxAttempts int
	backoff     time.Duration
}

// NewBatchExecutor creates a new batch executor
func NewBatchExecutor(client DynamoDBAPI) *BatchExecutor {
	return &BatchExecutor{
		client:      client,
		maxAttempts: defaultBatchAttempts,
		backoff:     defaultBatchBackoff,
	}
}

// WithRetry sets how many requests are made per chunk and the base delay
// between them. The delay doubles after each attempt.
func (e *BatchExecutor) WithRetry(attempts int, backoff time.Duration) *BatchExecutor {
	if attempts < 1 {
		attempts = 1
	}
	e.maxAttempts = attempts
	e.backoff = backoff
	return e
}

// BatchGet fetches every key of req. Items come back in the order of
// req.Keys; keys with no item are skipped.
func (e *BatchExecutor) BatchGet(ctx context.Context, req *BatchGetRequest) ([]map[string]types.AttributeValue, error) {
	if len(req.Keys) == 0 {
		return nil, nil
	}

	keyNames := make([]string, 0, 2)
	for name := range req.Keys[0] {
		keyNames = append(keyNames, name)
	}

	found := make(map[string]map[string]types.AttributeValue, len(req.Keys))
	for start := 0; start < len(req.Keys); start += MaxBatchGetSize {
		end := min(start+MaxBatchGetSize, len(req.Keys))

		pending := &types.KeysAndAttributes{
			Keys:                     req.Keys[start:end],
			ProjectionExpression:     optional(req.ProjectionExpression),
			ExpressionAttributeNames: names(req.ExpressionAttributeNames),
		}
		if req.ConsistentRead {
			pending.ConsistentRead = &req.ConsistentRead
		}

		for attempt := 0; pending != nil && len(pending.Keys) > 0; attempt++ {
			if attempt >= e.maxAttempts {
				return nil, fmt.Errorf("%w: %d keys of %s", errors.ErrBatchUnprocessed, len(pending.Keys), req.TableName)
			}
			if attempt > 0 {
				if err := e.wait(ctx, attempt); err != nil {
					return nil, err
				}
			}

			out, err := e.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{req.TableName: *pending},
			})
			if err != nil {
				return nil, fmt.Errorf("batch get failed: %w", err)
			}

			for _, item := range out.Responses[req.TableName] {
				found[Fingerprint(item, keyNames)] = item
			}

			next, ok := out.UnprocessedKeys[req.TableName]
			if !ok {
				break
			}
			pending = &next
		}
	}

	items := make([]map[string]types.AttributeValue, 0, len(found))
	for _, key := range req.Keys {
		if item, ok := found[Fingerprint(key, keyNames)]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// BatchWrite issues every write request against table in chunks of 25.
func (e *BatchExecutor) BatchWrite(ctx context.Context, table string, requests []types.WriteRequest) (*BatchWriteResult, error) {
	result := &BatchWriteResult{}

	for start := 0; start < len(requests); start += MaxBatchWriteSize {
		end := min(start+MaxBatchWriteSize, len(requests))
		pending := requests[start:end]

		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt >= e.maxAttempts {
				return result, fmt.Errorf("%w: %d writes to %s", errors.ErrBatchUnprocessed, len(pending), table)
			}
			if attempt > 0 {
				if err := e.wait(ctx, attempt); err != nil {
					return result, err
				}
			}

			out, err := e.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems:           map[string][]types.WriteRequest{table: pending},
				ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
			})
			if err != nil {
				return result, fmt.Errorf("batch write failed: %w", err)
			}
			result.ConsumedCapacity = append(result.ConsumedCapacity, out.ConsumedCapacity...)

			unprocessed := out.UnprocessedItems[table]
			result.Processed += len(pending) - len(unprocessed)
			pending = unprocessed
		}
	}
	return result, nil
}

// BatchDelete deletes keys from table.
func (e *BatchExecutor) BatchDelete(ctx context.Context, table string, keys []map[string]types.AttributeValue) (*BatchWriteResult, error) {
	requests := make([]types.WriteRequest, len(keys))
	for i, key := range keys {
		requests[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}}
	}
	return e.BatchWrite(ctx, table, requests)
}

// BatchPut writes items to table.
func (e *BatchExecutor) BatchPut(ctx context.Context, table string, items []map[string]types.AttributeValue) (*BatchWriteResult, error) {
	requests := make([]types.WriteRequest, len(items))
	for i, item := range items {
		requests[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
	}
	return e.BatchWrite(ctx, table, requests)
}

func (e *BatchExecutor) wait(ctx context.Context, attempt int) error {
	if e.backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.backoff << (attempt - 1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fingerprint identifies an item by its key attributes. Only scalar key types
// (S, N, B) are distinguished, which is all a DynamoDB key can hold.
func Fingerprint(item map[string]types.AttributeValue, keyNames []string) string {
	sorted := append([]string(nil), keyNames...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, name := range sorted {
		b.WriteString(name)
		switch v := item[name].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString("=S:")
			b.WriteString(v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString("=N:")
			b.WriteString(v.Value)
		case *types.AttributeValueMemberB:
			b.WriteString("=B:")
			b.WriteString(base64.StdEncoding.EncodeToString(v.Value))
		default:
			b.WriteString("=?")
		}
		b.WriteByte(0)
	}
	return b.String()
}
