package dynaquery

import (
	"context"

	"github.com/pay-theory/dynaquery/pkg/condition"
	"github.com/pay-theory/dynaquery/pkg/core"
	"github.com/pay-theory/dynaquery/pkg/model"
	"github.com/pay-theory/dynaquery/pkg/query"
)

// Entity is a typed handle on one registered entity.
type Entity[T any] struct {
	exec *query.Executor
}

// Descriptor returns the entity's descriptor.
func (e *Entity[T]) Descriptor() *model.Entity {
	return e.exec.Entity()
}

// Query starts a Query request.
func (e *Entity[T]) Query() *query.Query[T] {
	return query.NewQuery[T](e.exec)
}

// Scan starts a Scan request.
func (e *Entity[T]) Scan() *query.Scan[T] {
	return query.NewScan[T](e.exec)
}

// Condition starts a condition that applies this entity's value transforms.
func (e *Entity[T]) Condition() *condition.Builder {
	return condition.New(e.exec.Entity())
}

// Update starts an update of the item identified by key.
func (e *Entity[T]) Update(key Key) *query.UpdateBuilder[T] {
	return query.NewUpdateBuilder[T](e.exec, key)
}

// Get starts a point read of the item identified by key.
func (e *Entity[T]) Get(key Key) *query.GetBuilder[T] {
	return query.NewGetBuilder[T](e.exec, key)
}

// BatchGet starts a read of every item in keys.
func (e *Entity[T]) BatchGet(keys ...Key) *query.BatchGetBuilder[T] {
	return query.NewBatchGetBuilder[T](e.exec, keys)
}

// Put starts a write of item.
func (e *Entity[T]) Put(item T) *query.PutBuilder[T] {
	return query.NewPutBuilder(e.exec, item)
}

// Delete starts a delete of the item identified by key.
func (e *Entity[T]) Delete(key Key) *query.DeleteBuilder[T] {
	return query.NewDeleteBuilder[T](e.exec, key)
}

// BatchPut writes items, re-sending unprocessed writes.
func (e *Entity[T]) BatchPut(ctx context.Context, items ...T) (*core.BatchWriteResult, error) {
	return query.BatchPut(ctx, e.exec, items)
}

// BatchDelete deletes every key, re-sending unprocessed deletes.
func (e *Entity[T]) BatchDelete(ctx context.Context, keys ...Key) (*core.BatchWriteResult, error) {
	return query.BatchDelete(ctx, e.exec, keys)
}
