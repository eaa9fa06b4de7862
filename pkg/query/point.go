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
	"github.com/pay-theory/dynaquery/pkg/model"
)

// BuildKey converts key into the entity's primary key map, applying value
// transforms. key must hold exactly the table key attributes.
func BuildKey(entity *model.Entity, key map[string]any) (map[string]types.AttributeValue, error) {
	names := entity.KeyNames()
	out := make(map[string]types.AttributeValue, len(names))
	for _, name := range names {
		v, ok := key[name]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s.%s", errors.ErrMissingKey, entity.Name, name)
		}
		av, err := expr.ToAttributeValue(entity.Transform(name, v))
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", name, err)
		}
		out[name] = av
	}
	if len(key) != len(names) {
		for name := range key {
			if _, ok := out[name]; !ok {
				return nil, fmt.Errorf("%w: %q is not a key attribute of %s", errors.ErrValidation, name, entity.Name)
			}
		}
	}
	return out, nil
}

// GetBuilder reads one item by primary key.
type GetBuilder[T any] struct {
	exec       *Executor
	key        map[string]any
	projection []string
	consistent bool
}

// GetResult is the outcome of a point read.
type GetResult[T any] struct {
	Request *core.CompiledQuery
	Item    *T
	Raw     map[string]types.AttributeValue
}

// NewGetBuilder creates a read of the item identified by key.
func NewGetBuilder[T any](exec *Executor, key map[string]any) *GetBuilder[T] {
	return &GetBuilder[T]{exec: exec, key: key}
}

// Attributes limits the returned attributes to paths.
func (g *GetBuilder[T]) Attributes(paths ...string) *GetBuilder[T] {
	g.projection = append(g.projection, paths...)
	return g
}

// ConsistentRead requests a strongly consistent read.
func (g *GetBuilder[T]) ConsistentRead() *GetBuilder[T] {
	g.consistent = true
	return g
}

// Compile builds the GetItem request.
func (g *GetBuilder[T]) Compile() (*core.CompiledQuery, error) {
	key, err := BuildKey(g.exec.entity, g.key)
	if err != nil {
		return nil, err
	}
	table := expr.NewTable()
	projExpr, err := expr.RenderProjection(g.projection, table)
	if err != nil {
		return nil, err
	}
	compiled := &core.CompiledQuery{
		Operation:                core.OpGetItem,
		TableName:                g.exec.entity.Table,
		Key:                      key,
		ProjectionExpression:     projExpr,
		ExpressionAttributeNames: table.Names(),
	}
	if g.consistent {
		compiled.ConsistentRead = aws.Bool(true)
	}
	return compiled, nil
}

// Input compiles the read into the SDK request.
func (g *GetBuilder[T]) Input() (*dynamodb.GetItemInput, error) {
	compiled, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return compiled.GetItemInput(), nil
}

// Execute sends the read. A missing item is ErrNotFound.
func (g *GetBuilder[T]) Execute(ctx context.Context, ret ReturnOption) (*GetResult[T], error) {
	compiled, err := g.Compile()
	if err != nil {
		return nil, err
	}
	result := &GetResult[T]{Request: compiled}
	if ret == ReturnInput {
		return result, nil
	}

	out, err := g.exec.client.GetItem(ctx, compiled.GetItemInput())
	if err != nil {
		return result, errors.NewErrorWithContext("get", g.exec.entity.Name, err, map[string]any{"table": compiled.TableName})
	}
	if len(out.Item) == 0 {
		return result, errors.NewError("get", g.exec.entity.Name, errors.ErrNotFound)
	}
	result.Raw = out.Item
	if ret == ReturnOutput {
		return result, nil
	}

	item, err := DecodeItem[T](g.exec.entity, out.Item)
	if err != nil {
		return result, errors.NewError("decode", g.exec.entity.Name, err)
	}
	result.Item = &item
	return result, nil
}

// PutBuilder writes a whole item.
type PutBuilder[T any] struct {
	exec         *Executor
	item         T
	when         *condition.Builder
	returnValues types.ReturnValue
}

// NewPutBuilder creates a write of item.
func NewPutBuilder[T any](exec *Executor, item T) *PutBuilder[T] {
	return &PutBuilder[T]{exec: exec, item: item}
}

// When makes the write conditional.
func (p *PutBuilder[T]) When(b *condition.Builder) *PutBuilder[T] {
	p.when = b
	return p
}

// IfNotExists only writes when no item with the same key exists.
func (p *PutBuilder[T]) IfNotExists() *PutBuilder[T] {
	return p.When(condition.New(nil).Attribute(p.exec.entity.PartitionKey()).NotExists())
}

// ReturnValues selects the item image returned by the store. Only
// ReturnValueNone and ReturnValueAllOld are valid for a put.
func (p *PutBuilder[T]) ReturnValues(rv types.ReturnValue) *PutBuilder[T] {
	p.returnValues = rv
	return p
}

// Compile builds the PutItem request.
func (p *PutBuilder[T]) Compile() (*core.CompiledQuery, error) {
	entity := p.exec.entity
	item, err := EncodeItem(entity, p.item)
	if err != nil {
		return nil, errors.NewError("encode", entity.Name, err)
	}
	if _, err := entity.KeyOf(item); err != nil {
		return nil, err
	}

	table := expr.NewTable()
	conditionExpr, err := buildCondition(p.when, table)
	if err != nil {
		return nil, err
	}
	return &core.CompiledQuery{
		Operation:                 core.OpPutItem,
		TableName:                 entity.Table,
		Item:                      item,
		ConditionExpression:       conditionExpr,
		ExpressionAttributeNames:  table.Names(),
		ExpressionAttributeValues: table.Values(),
		ReturnValues:              p.returnValues,
	}, nil
}

// Input compiles the write into the SDK request.
func (p *PutBuilder[T]) Input() (*dynamodb.PutItemInput, error) {
	compiled, err := p.Compile()
	if err != nil {
		return nil, err
	}
	return compiled.PutItemInput(), nil
}

// Execute compiles and, unless ret is ReturnInput, sends the write.
func (p *PutBuilder[T]) Execute(ctx context.Context, ret ReturnOption) (*UpdateResult[T], error) {
	compiled, err := p.Compile()
	if err != nil {
		return nil, err
	}
	result := &UpdateResult[T]{Request: compiled}
	if ret == ReturnInput {
		return result, nil
	}

	out, err := p.exec.client.PutItem(ctx, compiled.PutItemInput())
	if err != nil {
		return result, errors.NewErrorWithContext("put", p.exec.entity.Name, err, map[string]any{"table": compiled.TableName})
	}
	return finishWrite(p.exec, result, out.Attributes, ret)
}

// DeleteBuilder deletes one item by primary key.
type DeleteBuilder[T any] struct {
	exec         *Executor
	key          map[string]any
	when         *condition.Builder
	returnValues types.ReturnValue
}

// NewDeleteBuilder creates a delete of the item identified by key.
func NewDeleteBuilder[T any](exec *Executor, key map[string]any) *DeleteBuilder[T] {
	return &DeleteBuilder[T]{exec: exec, key: key}
}

// When makes the delete conditional.
func (d *DeleteBuilder[T]) When(b *condition.Builder) *DeleteBuilder[T] {
	d.when = b
	return d
}

// ReturnValues selects the item image returned by the store.
func (d *DeleteBuilder[T]) ReturnValues(rv types.ReturnValue) *DeleteBuilder[T] {
	d.returnValues = rv
	return d
}

// Compile builds the DeleteItem request.
func (d *DeleteBuilder[T]) Compile() (*core.CompiledQuery, error) {
	key, err := BuildKey(d.exec.entity, d.key)
	if err != nil {
		return nil, err
	}
	table := expr.NewTable()
	conditionExpr, err := buildCondition(d.when, table)
	if err != nil {
		return nil, err
	}
	return &core.CompiledQuery{
		Operation:                 core.OpDeleteItem,
		TableName:                 d.exec.entity.Table,
		Key:                       key,
		ConditionExpression:       conditionExpr,
		ExpressionAttributeNames:  table.Names(),
		ExpressionAttributeValues: table.Values(),
		ReturnValues:              d.returnValues,
	}, nil
}

// Input compiles the delete into the SDK request.
func (d *DeleteBuilder[T]) Input() (*dynamodb.DeleteItemInput, error) {
	compiled, err := d.Compile()
	if err != nil {
		return nil, err
	}
	return compiled.DeleteItemInput(), nil
}

// Execute compiles and, unless ret is ReturnInput, sends the delete.
func (d *DeleteBuilder[T]) Execute(ctx context.Context, ret ReturnOption) (*UpdateResult[T], error) {
	compiled, err := d.Compile()
	if err != nil {
		return nil, err
	}
	result := &UpdateResult[T]{Request: compiled}
	if ret == ReturnInput {
		return result, nil
	}

	out, err := d.exec.client.DeleteItem(ctx, compiled.DeleteItemInput())
	if err != nil {
		return result, errors.NewErrorWithContext("delete", d.exec.entity.Name, err, map[string]any{"table": compiled.TableName})
	}
	return finishWrite(d.exec, result, out.Attributes, ret)
}
