// Package query builds and runs DynamoDB Query and Scan requests for an entity.
//
// Key conditions, filters and projections of one request are rendered into a
// single substitution table so their placeholders never collide. Index
// selection is automatic unless UsingIndex names one.
package query

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/internal/expr"
	"github.com/pay-theory/dynaquery/pkg/condition"
	"github.com/pay-theory/dynaquery/pkg/core"
	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/index"
	"github.com/pay-theory/dynaquery/pkg/model"
)

// Query represents a DynamoDB query builder
type Query[T any] struct {
	exec *Executor

	partitionKey   string
	partitionValue any
	sortKey        string
	sortTokens     expr.Tokens
	keyCondition   *condition.Builder

	filter      *condition.Builder
	projection  []string
	limit       *int32
	consistent  bool
	descending  bool
	index       string
	startKey    map[string]types.AttributeValue
	cursorIndex *string
	err         error
}

// NewQuery creates an empty query for the executor's entity.
func NewQuery[T any](exec *Executor) *Query[T] {
	return &Query[T]{exec: exec}
}

// PartitionKey sets the partition key equality condition.
func (q *Query[T]) PartitionKey(path string, v any) *Query[T] {
	q.partitionKey = path
	q.partitionValue = v
	return q
}

// SortKey starts the sort key condition on path.
func (q *Query[T]) SortKey(path string) *KeyClause[T] {
	return &KeyClause[T]{query: q, key: path}
}

// KeyCondition replaces PartitionKey and SortKey with a condition built by
// hand. Only the operators legal in a key condition may be used; the first
// attribute compared with "=" is taken as the partition key.
func (q *Query[T]) KeyCondition(b *condition.Builder) *Query[T] {
	q.keyCondition = b
	return q
}

// Filter sets the filter expression.
func (q *Query[T]) Filter(b *condition.Builder) *Query[T] {
	q.filter = b
	return q
}

// Attributes limits the returned attributes to paths.
func (q *Query[T]) Attributes(paths ...string) *Query[T] {
	q.projection = append(q.projection, paths...)
	return q
}

// Limit sets the maximum number of items evaluated per page.
func (q *Query[T]) Limit(n int) *Query[T] {
	if n <= 0 {
		q.limit = nil
		return q
	}
	q.limit = aws.Int32(clampInt32(n))
	return q
}

// ConsistentRead requests strongly consistent reads.
func (q *Query[T]) ConsistentRead() *Query[T] {
	q.consistent = true
	return q
}

// Descending returns items in descending sort key order.
func (q *Query[T]) Descending() *Query[T] {
	q.descending = true
	return q
}

// UsingIndex selects the index explicitly.
func (q *Query[T]) UsingIndex(name string) *Query[T] {
	q.index = name
	return q
}

// StartAt resumes after key, which must be a LastEvaluatedKey returned by the store.
func (q *Query[T]) StartAt(key map[string]types.AttributeValue) *Query[T] {
	q.startKey = key
	q.cursorIndex = nil
	return q
}

// StartAtCursor resumes from a token produced by Output.Cursor.
func (q *Query[T]) StartAtCursor(token string) *Query[T] {
	c, err := DecodeCursor(token)
	if err != nil {
		q.fail(err)
		return q
	}
	if c == nil {
		q.startKey, q.cursorIndex = nil, nil
		return q
	}
	q.startKey = c.LastKey
	q.cursorIndex = &c.Index
	return q
}

// Err returns the first error recorded while building.
func (q *Query[T]) Err() error {
	return q.err
}

// Compile resolves the index and renders every expression.
func (q *Query[T]) Compile() (*core.CompiledQuery, error) {
	if q.err != nil {
		return nil, q.err
	}
	entity := q.exec.entity

	keyTokens, required, err := q.keyTokens()
	if err != nil {
		return nil, err
	}
	if err := expr.CheckKey(keyTokens); err != nil {
		return nil, err
	}

	indexName, err := q.exec.selector.Resolve(required, q.index)
	if err != nil {
		return nil, err
	}
	if err := checkCursorIndex(q.cursorIndex, indexName); err != nil {
		return nil, err
	}
	if q.consistent {
		if err := checkConsistentRead(entity, indexName); err != nil {
			return nil, err
		}
	}

	table := expr.NewTable()
	keyExpr, err := expr.Render(keyTokens, table)
	if err != nil {
		return nil, err
	}
	filterExpr, projExpr, err := renderCommon(q.filter, q.projection, table)
	if err != nil {
		return nil, err
	}

	compiled := &core.CompiledQuery{
		Operation:                 core.OpQuery,
		TableName:                 entity.Table,
		IndexName:                 indexName,
		KeyConditionExpression:    keyExpr,
		FilterExpression:          filterExpr,
		ProjectionExpression:      projExpr,
		ExpressionAttributeNames:  table.Names(),
		ExpressionAttributeValues: table.Values(),
		Limit:                     q.limit,
		ExclusiveStartKey:         q.startKey,
	}
	if q.descending {
		compiled.ScanIndexForward = aws.Bool(false)
	}
	if q.consistent {
		compiled.ConsistentRead = aws.Bool(true)
	}
	return compiled, nil
}

// Input compiles the query into the SDK request.
func (q *Query[T]) Input() (*dynamodb.QueryInput, error) {
	compiled, err := q.Compile()
	if err != nil {
		return nil, err
	}
	return compiled.QueryInput(), nil
}

// Run compiles and executes the query.
func (q *Query[T]) Run(ctx context.Context, opts RunOptions) (*Output[T], error) {
	compiled, err := q.Compile()
	if err != nil {
		return nil, err
	}
	return run[T](ctx, q.exec, compiled, q.exec.fetchQuery, opts)
}

// All runs the query to exhaustion and returns the decoded items.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	out, err := q.Run(ctx, RunOptions{All: true})
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

// First returns the first matching item, or ErrNotFound.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	var zero T
	out, err := q.Run(ctx, RunOptions{All: true, Max: 1})
	if err != nil {
		return zero, err
	}
	if len(out.Items) == 0 {
		return zero, errors.ErrNotFound
	}
	return out.Items[0], nil
}

func (q *Query[T]) keyTokens() (expr.Tokens, index.RequiredKeys, error) {
	if q.keyCondition != nil {
		if err := q.keyCondition.Err(); err != nil {
			return nil, index.RequiredKeys{}, err
		}
		tokens := q.keyCondition.Tokens()
		return tokens, keyAttributes(tokens), nil
	}

	if q.partitionKey == "" {
		return nil, index.RequiredKeys{}, fmt.Errorf("%w: %s query needs a partition key", errors.ErrMissingKey, q.exec.entity.Name)
	}
	tokens := expr.Compare(expr.OpEq, q.partitionKey, q.exec.entity.Transform(q.partitionKey, q.partitionValue))
	if len(q.sortTokens) > 0 {
		tokens = append(tokens, expr.Literal(" AND "))
		tokens = append(tokens, q.sortTokens...)
	}
	return tokens, index.RequiredKeys{PartitionKey: q.partitionKey, SortKey: q.sortKey}, nil
}

func (q *Query[T]) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// KeyClause builds the sort key part of a key condition.
type KeyClause[T any] struct {
	query *Query[T]
	key   string
}

func (k *KeyClause[T]) Eq(v any) *Query[T] { return k.compare(expr.OpEq, v) }
func (k *KeyClause[T]) Lt(v any) *Query[T] { return k.compare(expr.OpLt, v) }
func (k *KeyClause[T]) Le(v any) *Query[T] { return k.compare(expr.OpLe, v) }
func (k *KeyClause[T]) Gt(v any) *Query[T] { return k.compare(expr.OpGt, v) }
func (k *KeyClause[T]) Ge(v any) *Query[T] { return k.compare(expr.OpGe, v) }

// Between matches lo <= sort key <= hi.
func (k *KeyClause[T]) Between(lo, hi any) *Query[T] {
	entity := k.query.exec.entity
	return k.set(expr.Between(k.key, entity.Transform(k.key, lo), entity.Transform(k.key, hi)))
}

// BeginsWith matches sort keys starting with prefix. Only the attribute's
// prefix transform is applied.
func (k *KeyClause[T]) BeginsWith(prefix string) *Query[T] {
	if attr, ok := k.query.exec.entity.Attribute(k.key); ok {
		prefix = attr.WrapPrefix(prefix)
	}
	return k.set(expr.BeginsWith(k.key, prefix))
}

func (k *KeyClause[T]) compare(op expr.Op, v any) *Query[T] {
	return k.set(expr.Compare(op, k.key, k.query.exec.entity.Transform(k.key, v)))
}

func (k *KeyClause[T]) set(tokens expr.Tokens) *Query[T] {
	k.query.sortKey = k.key
	k.query.sortTokens = tokens
	return k.query
}

// keyAttributes picks the partition and sort attributes out of a hand-built
// key condition.
func keyAttributes(tokens expr.Tokens) index.RequiredKeys {
	var order []string
	seen := make(map[string]bool)
	var partition string
	for i, tok := range tokens {
		if tok.Kind != expr.KindName {
			continue
		}
		if !seen[tok.Key] {
			seen[tok.Key] = true
			order = append(order, tok.Key)
		}
		if partition == "" && i+1 < len(tokens) && tokens[i+1].Kind == expr.KindLiteral && tokens[i+1].Text == " = " {
			partition = tok.Key
		}
	}
	if partition == "" && len(order) > 0 {
		partition = order[0]
	}

	required := index.RequiredKeys{PartitionKey: partition}
	for _, name := range order {
		if name != partition {
			required.SortKey = name
			break
		}
	}
	return required
}

func renderCommon(filter *condition.Builder, projection []string, table *expr.Table) (string, string, error) {
	var filterExpr string
	if filter != nil {
		var err error
		if filterExpr, err = filter.Build(table); err != nil {
			return "", "", err
		}
	}
	projExpr, err := expr.RenderProjection(projection, table)
	if err != nil {
		return "", "", err
	}
	return filterExpr, projExpr, nil
}

func checkCursorIndex(cursorIndex *string, indexName string) error {
	if cursorIndex != nil && *cursorIndex != indexName {
		return fmt.Errorf("%w: issued for index %q, request uses %q", errors.ErrInvalidCursor, *cursorIndex, indexName)
	}
	return nil
}

func checkConsistentRead(entity *model.Entity, indexName string) error {
	if indexName == "" {
		return nil
	}
	if idx, ok := entity.Index(indexName); ok && idx.Kind == model.GSI {
		return fmt.Errorf("%w: consistent reads are not supported on global index %q", errors.ErrValidation, indexName)
	}
	return nil
}
