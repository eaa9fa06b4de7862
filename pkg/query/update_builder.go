package query

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/internal/expr"
	"github.com/pay-theory/dynaquery/pkg/condition"
	"github.com/pay-theory/dynaquery/pkg/core"
	"github.com/pay-theory/dynaquery/pkg/errors"
)

// UpdateBuilder provides a fluent API for building complex update expressions
type UpdateBuilder[T any] struct {
	exec         *Executor
	key          map[string]any
	actions      []expr.Action
	when         *condition.Builder
	returnValues types.ReturnValue
	err          error
}

// UpdateResult is the outcome of an update, put or delete.
type UpdateResult[T any] struct {
	Request *core.CompiledQuery
	// Item is the decoded ReturnValues image, when one was requested and returned.
	Item *T
	// Raw is the ReturnValues image as stored.
	Raw map[string]types.AttributeValue
}

// NewUpdateBuilder creates an update of the item identified by key.
func NewUpdateBuilder[T any](exec *Executor, key map[string]any) *UpdateBuilder[T] {
	return &UpdateBuilder[T]{exec: exec, key: key}
}

// Set assigns value to path.
func (ub *UpdateBuilder[T]) Set(path string, value any) *UpdateBuilder[T] {
	return ub.add(path, expr.Assign(path, ub.wrap(path, value)))
}

// SetIfNotExists assigns value to path only if path is absent.
func (ub *UpdateBuilder[T]) SetIfNotExists(path string, value any) *UpdateBuilder[T] {
	return ub.add(path, expr.AssignIfNotExists(path, ub.wrap(path, value)))
}

// Add increments a number or adds elements to a set.
func (ub *UpdateBuilder[T]) Add(path string, value any) *UpdateBuilder[T] {
	return ub.add(path, expr.AddValue(path, ub.wrap(path, value)))
}

// Increment is an alias for Add with value 1
func (ub *UpdateBuilder[T]) Increment(path string) *UpdateBuilder[T] {
	return ub.Add(path, 1)
}

// Decrement is an alias for Add with value -1
func (ub *UpdateBuilder[T]) Decrement(path string) *UpdateBuilder[T] {
	return ub.Add(path, -1)
}

// IncrementBy renders "SET path = path + :v". The attribute must exist.
func (ub *UpdateBuilder[T]) IncrementBy(path string, n any) *UpdateBuilder[T] {
	return ub.add(path, expr.Increment(path, n))
}

// DecrementBy renders "SET path = path - :v". The attribute must exist.
func (ub *UpdateBuilder[T]) DecrementBy(path string, n any) *UpdateBuilder[T] {
	return ub.add(path, expr.Decrement(path, n))
}

// Remove deletes path from the item.
func (ub *UpdateBuilder[T]) Remove(path string) *UpdateBuilder[T] {
	return ub.add(path, expr.RemovePath(path))
}

// Delete removes elements from a set attribute.
func (ub *UpdateBuilder[T]) Delete(path string, value any) *UpdateBuilder[T] {
	return ub.add(path, expr.DeleteValue(path, ub.wrap(path, value)))
}

// AppendToList appends values to a list attribute.
func (ub *UpdateBuilder[T]) AppendToList(path string, values any) *UpdateBuilder[T] {
	return ub.add(path, expr.AppendList(path, ub.wrap(path, values)))
}

// PrependToList prepends values to a list attribute.
func (ub *UpdateBuilder[T]) PrependToList(path string, values any) *UpdateBuilder[T] {
	return ub.add(path, expr.PrependList(path, ub.wrap(path, values)))
}

// RemoveFromListAt removes the list element at index.
func (ub *UpdateBuilder[T]) RemoveFromListAt(path string, index int) *UpdateBuilder[T] {
	return ub.add(path, expr.RemoveIndex(path, index))
}

// SetListElement assigns value to the list element at index.
func (ub *UpdateBuilder[T]) SetListElement(path string, index int, value any) *UpdateBuilder[T] {
	return ub.add(path, expr.SetIndex(path, index, ub.wrap(path, value)))
}

// When makes the update conditional.
func (ub *UpdateBuilder[T]) When(b *condition.Builder) *UpdateBuilder[T] {
	ub.when = b
	return ub
}

// ReturnValues selects the item image returned by the store.
func (ub *UpdateBuilder[T]) ReturnValues(rv types.ReturnValue) *UpdateBuilder[T] {
	ub.returnValues = rv
	return ub
}

// Err returns the first error recorded while building.
func (ub *UpdateBuilder[T]) Err() error {
	return ub.err
}

// Compile renders the update and condition expressions into one table.
func (ub *UpdateBuilder[T]) Compile() (*core.CompiledQuery, error) {
	if ub.err != nil {
		return nil, ub.err
	}
	entity := ub.exec.entity
	if len(ub.actions) == 0 {
		return nil, fmt.Errorf("%w: %s update has no actions", errors.ErrValidation, entity.Name)
	}

	key, err := BuildKey(entity, ub.key)
	if err != nil {
		return nil, err
	}

	table := expr.NewTable()
	updateExpr, err := expr.Render(expr.UpdateTokens(ub.actions), table)
	if err != nil {
		return nil, err
	}
	conditionExpr, err := buildCondition(ub.when, table)
	if err != nil {
		return nil, err
	}

	return &core.CompiledQuery{
		Operation:                 core.OpUpdateItem,
		TableName:                 entity.Table,
		Key:                       key,
		UpdateExpression:          updateExpr,
		ConditionExpression:       conditionExpr,
		ExpressionAttributeNames:  table.Names(),
		ExpressionAttributeValues: table.Values(),
		ReturnValues:              ub.returnValues,
	}, nil
}

// Input compiles the update into the SDK request.
func (ub *UpdateBuilder[T]) Input() (*dynamodb.UpdateItemInput, error) {
	compiled, err := ub.Compile()
	if err != nil {
		return nil, err
	}
	return compiled.UpdateItemInput(), nil
}

// Execute compiles and, unless ret is ReturnInput, sends the update.
func (ub *UpdateBuilder[T]) Execute(ctx context.Context, ret ReturnOption) (*UpdateResult[T], error) {
	compiled, err := ub.Compile()
	if err != nil {
		return nil, err
	}
	result := &UpdateResult[T]{Request: compiled}
	if ret == ReturnInput {
		return result, nil
	}

	out, err := ub.exec.client.UpdateItem(ctx, compiled.UpdateItemInput())
	if err != nil {
		return result, errors.NewErrorWithContext("update", ub.exec.entity.Name, err, map[string]any{"table": compiled.TableName})
	}
	return finishWrite(ub.exec, result, out.Attributes, ret)
}

func (ub *UpdateBuilder[T]) add(path string, action expr.Action) *UpdateBuilder[T] {
	if ub.err != nil {
		return ub
	}
	for _, name := range ub.exec.entity.KeyNames() {
		if name == path {
			ub.err = fmt.Errorf("%w: key attribute %q cannot be updated", errors.ErrValidation, path)
			return ub
		}
	}
	ub.actions = append(ub.actions, action)
	return ub
}

func (ub *UpdateBuilder[T]) wrap(path string, value any) any {
	return ub.exec.entity.Transform(path, value)
}

func buildCondition(b *condition.Builder, table *expr.Table) (string, error) {
	if b == nil {
		return "", nil
	}
	return b.Build(table)
}

func finishWrite[T any](exec *Executor, result *UpdateResult[T], attrs map[string]types.AttributeValue, ret ReturnOption) (*UpdateResult[T], error) {
	result.Raw = attrs
	if ret != ReturnDefault || len(attrs) == 0 {
		return result, nil
	}
	item, err := DecodeItem[T](exec.entity, attrs)
	if err != nil {
		return result, errors.NewError("decode", exec.entity.Name, err)
	}
	result.Item = &item
	return result, nil
}
