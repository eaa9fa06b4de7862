package query

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/internal/expr"
	"github.com/pay-theory/dynaquery/pkg/core"
	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/metrics"
)

// BatchGetBuilder reads many items by primary key.
type BatchGetBuilder[T any] struct {
	exec        *Executor
	keys        []map[string]any
	projection  []string
	consistent  bool
	maxAttempts int
	backoff     time.Duration
}

// BatchGetResult is the outcome of a batch read. Items are in key order;
// keys with no item are skipped.
type BatchGetResult[T any] struct {
	Request *core.BatchGetRequest
	Items   []T
	Raw     []map[string]types.AttributeValue
}

// NewBatchGetBuilder creates a read of every item in keys.
func NewBatchGetBuilder[T any](exec *Executor, keys []map[string]any) *BatchGetBuilder[T] {
	return &BatchGetBuilder[T]{exec: exec, keys: keys}
}

// Attributes limits the returned attributes to paths. Key attributes are
// always added so results can be matched to keys.
func (b *BatchGetBuilder[T]) Attributes(paths ...string) *BatchGetBuilder[T] {
	b.projection = append(b.projection, paths...)
	return b
}

// ConsistentRead requests strongly consistent reads.
func (b *BatchGetBuilder[T]) ConsistentRead() *BatchGetBuilder[T] {
	b.consistent = true
	return b
}

// Retry sets how many requests are made per chunk while the store reports
// unprocessed keys, and the base delay between them.
func (b *BatchGetBuilder[T]) Retry(attempts int, backoff time.Duration) *BatchGetBuilder[T] {
	b.maxAttempts = attempts
	b.backoff = backoff
	return b
}

// Compile converts the keys and projection. Duplicate keys are rejected.
func (b *BatchGetBuilder[T]) Compile() (*core.BatchGetRequest, error) {
	entity := b.exec.entity
	if len(b.keys) == 0 {
		return nil, fmt.Errorf("%w: no keys provided", errors.ErrMissingKey)
	}

	keyNames := entity.KeyNames()
	seen := make(map[string]int, len(b.keys))
	keys := make([]map[string]types.AttributeValue, len(b.keys))
	for i, k := range b.keys {
		key, err := BuildKey(entity, k)
		if err != nil {
			return nil, fmt.Errorf("invalid key at index %d: %w", i, err)
		}
		fp := core.Fingerprint(key, keyNames)
		if prev, dup := seen[fp]; dup {
			return nil, fmt.Errorf("%w: keys %d and %d", errors.ErrDuplicateKey, prev, i)
		}
		seen[fp] = i
		keys[i] = key
	}

	req := &core.BatchGetRequest{
		TableName:      entity.Table,
		Keys:           keys,
		ConsistentRead: b.consistent,
	}
	if len(b.projection) > 0 {
		table := expr.NewTable()
		proj, err := expr.RenderProjection(withKeys(b.projection, keyNames), table)
		if err != nil {
			return nil, err
		}
		req.ProjectionExpression = proj
		req.ExpressionAttributeNames = table.Names()
	}
	return req, nil
}

// Execute compiles and, unless ret is ReturnInput, sends the batch.
func (b *BatchGetBuilder[T]) Execute(ctx context.Context, ret ReturnOption) (*BatchGetResult[T], error) {
	req, err := b.Compile()
	if err != nil {
		return nil, err
	}
	result := &BatchGetResult[T]{Request: req}
	if ret == ReturnInput {
		return result, nil
	}

	batch := core.NewBatchExecutor(b.exec.client)
	if b.maxAttempts > 0 {
		batch.WithRetry(b.maxAttempts, b.backoff)
	}
	rows, err := batch.BatchGet(ctx, req)
	if err != nil {
		return result, errors.NewErrorWithContext("batch_get", b.exec.entity.Name, err, map[string]any{"table": req.TableName, "keys": len(req.Keys)})
	}
	b.exec.report(b.exec.logger, metrics.BatchRequests, 1, []string{"table:" + req.TableName, "operation:BatchGetItem"})

	result.Raw = rows
	if ret == ReturnOutput {
		return result, nil
	}
	items, err := decodeItems[T](b.exec.entity, rows)
	result.Items = items
	if err != nil {
		return result, errors.NewError("decode", b.exec.entity.Name, err)
	}
	return result, nil
}

// BatchPut writes items in chunks of 25, re-sending unprocessed writes.
func BatchPut[T any](ctx context.Context, exec *Executor, items []T) (*core.BatchWriteResult, error) {
	entity := exec.entity
	rows := make([]map[string]types.AttributeValue, len(items))
	for i, item := range items {
		row, err := EncodeItem(entity, item)
		if err != nil {
			return nil, errors.NewError("encode", entity.Name, err)
		}
		if _, err := entity.KeyOf(row); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		rows[i] = row
	}

	result, err := core.NewBatchExecutor(exec.client).BatchPut(ctx, entity.Table, rows)
	if err != nil {
		return result, errors.NewErrorWithContext("batch_put", entity.Name, err, map[string]any{"table": entity.Table})
	}
	exec.report(exec.logger, metrics.BatchRequests, 1, []string{"table:" + entity.Table, "operation:BatchWriteItem"})
	return result, nil
}

// BatchDelete deletes every key in chunks of 25, re-sending unprocessed deletes.
func BatchDelete(ctx context.Context, exec *Executor, keys []map[string]any) (*core.BatchWriteResult, error) {
	entity := exec.entity
	converted := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		key, err := BuildKey(entity, k)
		if err != nil {
			return nil, fmt.Errorf("invalid key at index %d: %w", i, err)
		}
		converted[i] = key
	}

	result, err := core.NewBatchExecutor(exec.client).BatchDelete(ctx, entity.Table, converted)
	if err != nil {
		return result, errors.NewErrorWithContext("batch_delete", entity.Name, err, map[string]any{"table": entity.Table})
	}
	exec.report(exec.logger, metrics.BatchRequests, 1, []string{"table:" + entity.Table, "operation:BatchWriteItem"})
	return result, nil
}

func withKeys(projection, keyNames []string) []string {
	out := append([]string(nil), projection...)
	for _, name := range keyNames {
		if !slices.Contains(projection, name) {
			out = append(out, name)
		}
	}
	return out
}
