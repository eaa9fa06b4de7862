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
)

// Scan represents a DynamoDB scan builder
type Scan[T any] struct {
	exec *Executor

	filter        *condition.Builder
	projection    []string
	limit         *int32
	consistent    bool
	index         string
	segment       *int32
	totalSegments *int32
	startKey      map[string]types.AttributeValue
	cursorIndex   *string
	err           error
}

// NewScan creates a scan over the executor's entity table.
func NewScan[T any](exec *Executor) *Scan[T] {
	return &Scan[T]{exec: exec}
}

// Filter sets the filter expression.
func (s *Scan[T]) Filter(b *condition.Builder) *Scan[T] {
	s.filter = b
	return s
}

// Attributes limits the returned attributes to paths.
func (s *Scan[T]) Attributes(paths ...string) *Scan[T] {
	s.projection = append(s.projection, paths...)
	return s
}

// Limit sets the maximum number of items evaluated per page.
func (s *Scan[T]) Limit(n int) *Scan[T] {
	if n <= 0 {
		s.limit = nil
		return s
	}
	s.limit = aws.Int32(clampInt32(n))
	return s
}

// ConsistentRead requests strongly consistent reads.
func (s *Scan[T]) ConsistentRead() *Scan[T] {
	s.consistent = true
	return s
}

// UsingIndex scans a secondary index instead of the table.
func (s *Scan[T]) UsingIndex(name string) *Scan[T] {
	s.index = name
	return s
}

// Segment restricts the scan to one segment of a parallel scan.
func (s *Scan[T]) Segment(segment, total int) *Scan[T] {
	if total < 1 || segment < 0 || segment >= total {
		s.fail(fmt.Errorf("%w: segment %d of %d", errors.ErrValidation, segment, total))
		return s
	}
	s.segment = aws.Int32(int32(segment))
	s.totalSegments = aws.Int32(int32(total))
	return s
}

// StartAt resumes after key, which must be a LastEvaluatedKey returned by the store.
func (s *Scan[T]) StartAt(key map[string]types.AttributeValue) *Scan[T] {
	s.startKey = key
	s.cursorIndex = nil
	return s
}

// StartAtCursor resumes from a token produced by Output.Cursor.
func (s *Scan[T]) StartAtCursor(token string) *Scan[T] {
	c, err := DecodeCursor(token)
	if err != nil {
		s.fail(err)
		return s
	}
	if c == nil {
		s.startKey, s.cursorIndex = nil, nil
		return s
	}
	s.startKey = c.LastKey
	s.cursorIndex = &c.Index
	return s
}

// Err returns the first error recorded while building.
func (s *Scan[T]) Err() error {
	return s.err
}

// Compile renders the filter and projection.
func (s *Scan[T]) Compile() (*core.CompiledQuery, error) {
	if s.err != nil {
		return nil, s.err
	}
	entity := s.exec.entity

	if err := s.exec.selector.ValidateScan(s.index); err != nil {
		return nil, err
	}
	if err := checkCursorIndex(s.cursorIndex, s.index); err != nil {
		return nil, err
	}
	if s.consistent {
		if err := checkConsistentRead(entity, s.index); err != nil {
			return nil, err
		}
	}

	table := expr.NewTable()
	filterExpr, projExpr, err := renderCommon(s.filter, s.projection, table)
	if err != nil {
		return nil, err
	}

	compiled := &core.CompiledQuery{
		Operation:                 core.OpScan,
		TableName:                 entity.Table,
		IndexName:                 s.index,
		FilterExpression:          filterExpr,
		ProjectionExpression:      projExpr,
		ExpressionAttributeNames:  table.Names(),
		ExpressionAttributeValues: table.Values(),
		Limit:                     s.limit,
		ExclusiveStartKey:         s.startKey,
		Segment:                   s.segment,
		TotalSegments:             s.totalSegments,
	}
	if s.consistent {
		compiled.ConsistentRead = aws.Bool(true)
	}
	return compiled, nil
}

// Input compiles the scan into the SDK request.
func (s *Scan[T]) Input() (*dynamodb.ScanInput, error) {
	compiled, err := s.Compile()
	if err != nil {
		return nil, err
	}
	return compiled.ScanInput(), nil
}

// Run compiles and executes the scan.
func (s *Scan[T]) Run(ctx context.Context, opts RunOptions) (*Output[T], error) {
	compiled, err := s.Compile()
	if err != nil {
		return nil, err
	}
	return run[T](ctx, s.exec, compiled, s.exec.fetchScan, opts)
}

// All scans to exhaustion and returns the decoded items.
func (s *Scan[T]) All(ctx context.Context) ([]T, error) {
	out, err := s.Run(ctx, RunOptions{All: true})
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (s *Scan[T]) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}
