package query

import (
	"context"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pay-theory/dynaquery/pkg/core"
	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/index"
	"github.com/pay-theory/dynaquery/pkg/metrics"
	"github.com/pay-theory/dynaquery/pkg/model"
)

// Executor binds an entity to a store client. Query, Scan and UpdateBuilder
// values created from the same Executor share its logger and metrics.
type Executor struct {
	client   core.DynamoDBAPI
	entity   *model.Entity
	selector *index.Selector
	logger   zerolog.Logger
	metrics  metrics.Provider
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for per-page debug logs.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics provider.
func WithMetrics(provider metrics.Provider) Option {
	return func(e *Executor) {
		if provider != nil {
			e.metrics = provider
		}
	}
}

// NewExecutor creates an executor for entity. The entity must have been initialized.
func NewExecutor(client core.DynamoDBAPI, entity *model.Entity, opts ...Option) *Executor {
	e := &Executor{
		client:   client,
		entity:   entity,
		selector: index.NewSelector(entity),
		logger:   zerolog.Nop(),
		metrics:  &metrics.NoopProvider{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Entity returns the entity this executor serves.
func (e *Executor) Entity() *model.Entity {
	return e.entity
}

// Client returns the underlying store client.
func (e *Executor) Client() core.DynamoDBAPI {
	return e.client
}

// Logger returns the executor's logger.
func (e *Executor) Logger() zerolog.Logger {
	return e.logger
}

// Metrics returns the executor's metrics provider.
func (e *Executor) Metrics() metrics.Provider {
	return e.metrics
}

type page struct {
	items   []map[string]types.AttributeValue
	count   int32
	scanned int32
	lastKey map[string]types.AttributeValue
}

type fetchFunc func(ctx context.Context, req *core.CompiledQuery) (page, error)

func (e *Executor) fetchQuery(ctx context.Context, req *core.CompiledQuery) (page, error) {
	out, err := e.client.Query(ctx, req.QueryInput())
	if err != nil {
		return page{}, err
	}
	return page{items: out.Items, count: out.Count, scanned: out.ScannedCount, lastKey: out.LastEvaluatedKey}, nil
}

func (e *Executor) fetchScan(ctx context.Context, req *core.CompiledQuery) (page, error) {
	out, err := e.client.Scan(ctx, req.ScanInput())
	if err != nil {
		return page{}, err
	}
	return page{items: out.Items, count: out.Count, scanned: out.ScannedCount, lastKey: out.LastEvaluatedKey}, nil
}

// run issues pages strictly one after another. On a page error the output
// collected so far is returned together with the error; its LastKey is the
// cursor of the last page that succeeded.
func run[T any](ctx context.Context, e *Executor, req *core.CompiledQuery, fetch fetchFunc, opts RunOptions) (*Output[T], error) {
	out := &Output[T]{Request: req}
	if opts.Return == ReturnInput {
		return out, nil
	}

	log := e.logger.With().
		Str("run_id", uuid.NewString()).
		Str("table", req.TableName).
		Str("operation", string(req.Operation)).
		Logger()
	tags := []string{"table:" + req.TableName, "operation:" + string(req.Operation)}

	next := *req
	for {
		next.Limit = pageLimit(req.Limit, opts.Max, len(out.Raw))

		if out.Pages > 0 && opts.Delay > 0 {
			if err := sleep(ctx, opts.Delay); err != nil {
				return out.finish(e, opts, err)
			}
		}

		start := time.Now()
		p, err := fetch(ctx, &next)
		if err != nil {
			log.Debug().Err(err).Int("page", out.Pages+1).Msg("page failed")
			return out.finish(e, opts, errors.NewErrorWithContext(string(req.Operation), e.entity.Name, err, map[string]any{
				"table": req.TableName,
				"page":  out.Pages + 1,
			}))
		}
		elapsed := time.Since(start)

		out.Pages++
		out.Raw = append(out.Raw, p.items...)
		out.Count += p.count
		out.ScannedCount += p.scanned
		out.LastKey = p.lastKey

		e.report(log, metrics.Pages, 1, tags)
		e.report(log, metrics.Items, float64(len(p.items)), tags)
		e.report(log, metrics.PageLatencyMS, float64(elapsed.Milliseconds()), tags)
		log.Debug().
			Int("page", out.Pages).
			Int("items", len(p.items)).
			Bool("has_more", len(p.lastKey) > 0).
			Dur("elapsed", elapsed).
			Msg("page fetched")

		if len(p.lastKey) == 0 || !opts.All {
			break
		}
		if opts.Max > 0 && len(out.Raw) >= opts.Max {
			break
		}
		next.ExclusiveStartKey = p.lastKey
	}

	return out.finish(e, opts, nil)
}

// finish decodes the collected rows when the caller asked for typed items.
func (o *Output[T]) finish(e *Executor, opts RunOptions, runErr error) (*Output[T], error) {
	if opts.Return != ReturnDefault || len(o.Raw) == 0 {
		return o, runErr
	}
	items, err := decodeItems[T](e.entity, o.Raw)
	o.Items = items
	if runErr != nil {
		return o, runErr
	}
	if err != nil {
		return o, errors.NewError("decode", e.entity.Name, err)
	}
	return o, nil
}

// pageLimit lowers limit to what is left of budget so a page cannot overshoot it.
func pageLimit(limit *int32, budget, collected int) *int32 {
	if budget <= 0 {
		return limit
	}
	remaining := max(budget-collected, 1)
	if limit != nil && int(*limit) <= remaining {
		return limit
	}
	return aws.Int32(clampInt32(remaining))
}

// clampInt32 narrows n to the int32 range a request Limit accepts.
func clampInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Executor) report(log zerolog.Logger, name string, value float64, tags []string) {
	var err error
	if name == metrics.PageLatencyMS {
		err = e.metrics.Histogram(name, value, tags)
	} else {
		err = e.metrics.Count(name, value, tags)
	}
	if err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("failed to report metric")
	}
}

// decodeItems reverses value transforms and unmarshals rows into T. Rows that
// fail to decode are skipped; the first failure is returned.
func decodeItems[T any](entity *model.Entity, rows []map[string]types.AttributeValue) ([]T, error) {
	items := make([]T, 0, len(rows))
	var firstErr error
	for _, row := range rows {
		item, err := DecodeItem[T](entity, row)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		items = append(items, item)
	}
	return items, firstErr
}

// DecodeItem reverses entity's value transforms on row and unmarshals it into T.
func DecodeItem[T any](entity *model.Entity, row map[string]types.AttributeValue) (T, error) {
	var item T
	err := attributevalue.UnmarshalMap(entity.UnwrapItem(row), &item)
	return item, err
}

// EncodeItem marshals item and applies entity's value transforms.
func EncodeItem(entity *model.Entity, item any) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, err
	}
	return entity.WrapItem(av), nil
}
