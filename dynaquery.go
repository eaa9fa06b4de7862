// Package dynaquery compiles DynamoDB expressions from typed entity
// descriptors and runs them against a DynamoDB client.
//
// A Client holds the store client, the entity registry, a logger and a
// metrics provider. Table binds a registered entity to a Go type:
//
//	c, err := dynaquery.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := c.Register(orderEntity); err != nil {
//		return err
//	}
//	orders, err := dynaquery.Table[Order](c, "Order")
//	if err != nil {
//		return err
//	}
//	out, err := orders.Query().
//		PartitionKey("status", "open").
//		SortKey("created").Gt(since).
//		Run(ctx, dynaquery.RunOptions{All: true, Max: 100})
package dynaquery

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/pay-theory/dynaquery/internal/expr"
	"github.com/pay-theory/dynaquery/pkg/condition"
	"github.com/pay-theory/dynaquery/pkg/core"
	"github.com/pay-theory/dynaquery/pkg/logging"
	"github.com/pay-theory/dynaquery/pkg/metrics"
	"github.com/pay-theory/dynaquery/pkg/model"
	"github.com/pay-theory/dynaquery/pkg/query"
	"github.com/pay-theory/dynaquery/pkg/session"
)

type (
	// Config is the session configuration accepted by New.
	Config = session.Config
	// Key identifies one item by its table key attributes.
	Key = map[string]any
	// RunOptions control pagination of Query and Scan runs.
	RunOptions = query.RunOptions
	// ReturnOption selects what an operation returns.
	ReturnOption = query.ReturnOption
	// Condition builds condition, filter and key condition expressions.
	Condition = condition.Builder
	// EntityDescriptor describes an entity's table, attributes and indexes.
	EntityDescriptor = model.Entity
	// Attribute describes one attribute of an entity.
	Attribute = model.Attribute
	// Index describes a secondary index of an entity.
	Index = model.Index
)

const (
	RolePartitionKey = model.RolePartitionKey
	RoleSortKey      = model.RoleSortKey
	GSI              = model.GSI
	LSI              = model.LSI
)

const (
	ReturnDefault = query.ReturnDefault
	ReturnInput   = query.ReturnInput
	ReturnOutput  = query.ReturnOutput
)

// Client is the entry point for building and running requests.
type Client struct {
	api      core.DynamoDBAPI
	registry *model.Registry
	logger   zerolog.Logger
	metrics  metrics.Provider
	session  *session.Session
	closers  []io.Closer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger replaces the client's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics replaces the client's metrics provider.
func WithMetrics(provider metrics.Provider) Option {
	return func(c *Client) {
		if provider != nil {
			c.metrics = provider
		}
	}
}

// WithRegistry shares an existing entity registry.
func WithRegistry(registry *model.Registry) Option {
	return func(c *Client) {
		if registry != nil {
			c.registry = registry
		}
	}
}

// New builds a client from cfg: the AWS session, logger and metrics provider
// all come from it. A nil cfg uses session.DefaultConfig.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = session.DefaultConfig()
	}

	sess, err := session.NewSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	api, err := sess.Client()
	if err != nil {
		return nil, err
	}

	provider, err := metrics.Setup(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	c := newClient(api, append([]Option{
		WithLogger(logging.Configure(cfg.Logging)),
		WithMetrics(provider),
	}, opts...)...)
	c.session = sess
	if closer, ok := provider.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}
	return c, nil
}

// NewWithAPI builds a client around an existing DynamoDB client, such as a
// *dynamodb.Client configured elsewhere or a mock in tests.
func NewWithAPI(api core.DynamoDBAPI, opts ...Option) *Client {
	return newClient(api, opts...)
}

func newClient(api core.DynamoDBAPI, opts ...Option) *Client {
	c := &Client{
		api:      api,
		registry: model.NewRegistry(),
		logger:   zerolog.Nop(),
		metrics:  &metrics.NoopProvider{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds entity descriptors to the client's registry.
func (c *Client) Register(entities ...*EntityDescriptor) error {
	if err := c.registry.Register(entities...); err != nil {
		return err
	}
	for _, e := range entities {
		c.logger.Debug().Str("entity", e.Name).Str("table", e.Table).Msg("entity registered")
	}
	return nil
}

// RegisterFile loads entity descriptors from a YAML file and registers them.
func (c *Client) RegisterFile(path string) error {
	entities, err := model.LoadEntitiesFile(path)
	if err != nil {
		return err
	}
	return c.Register(entities...)
}

// Entity returns a registered descriptor.
func (c *Client) Entity(name string) (*EntityDescriptor, error) {
	return c.registry.Get(name)
}

// Registry returns the client's entity registry.
func (c *Client) Registry() *model.Registry {
	return c.registry
}

// API returns the underlying DynamoDB client.
func (c *Client) API() core.DynamoDBAPI {
	return c.api
}

// Session returns the AWS session, or nil when the client was built with NewWithAPI.
func (c *Client) Session() *session.Session {
	return c.session
}

// Logger returns the client's logger.
func (c *Client) Logger() zerolog.Logger {
	return c.logger
}

// Close releases the metrics client.
func (c *Client) Close() error {
	var firstErr error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}

// Table binds the registered entity name to T.
func Table[T any](c *Client, name string) (*Entity[T], error) {
	descriptor, err := c.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}
	exec := query.NewExecutor(c.api, descriptor,
		query.WithLogger(c.logger.With().Str("entity", name).Logger()),
		query.WithMetrics(c.metrics),
	)
	return &Entity[T]{exec: exec}, nil
}

// StringSet builds a string set value, which a plain []string never becomes.
func StringSet(values ...string) *types.AttributeValueMemberSS {
	return expr.StringSet(values...)
}

// NumberSet builds a number set value.
func NumberSet[N ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64 | ~float32 | ~float64](values ...N) *types.AttributeValueMemberNS {
	return expr.NumberSet(values...)
}
