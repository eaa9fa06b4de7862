package query_test

import (
	"bytes"
	"context"
	"math"
	stderrors "errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/dynaquery/pkg/condition"
	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/metrics"
	"github.com/pay-theory/dynaquery/pkg/query"
)

func TestQueryCompile(t *testing.T) {
	exec, _ := newExecutor(t)

	tests := []struct {
		name   string
		build  func() *query.Query[order]
		key    string
		filter string
		index  string
		values map[string]types.AttributeValue
	}{
		{
			name:  "table key with begins_with",
			build: func() *query.Query[order] { return query.NewQuery[order](exec).PartitionKey("pk", "42").SortKey("sk").BeginsWith("A") },
			key:   "pk = :pk AND begins_with(sk, :sk)",
			values: map[string]types.AttributeValue{
				":pk": s("ORDER#42"),
				":sk": s("A"),
			},
		},
		{
			name:  "local index picked by sort key",
			build: func() *query.Query[order] { return query.NewQuery[order](exec).PartitionKey("pk", "1").SortKey("created").Ge(10) },
			key:   "pk = :pk AND created >= :created",
			index: "pk-created",
		},
		{
			name:  "global index narrowed by sort key",
			build: func() *query.Query[order] { return query.NewQuery[order](exec).PartitionKey("status", "open").SortKey("total").Gt(5) },
			key:   "#status = :status AND #total > :total",
			index: "status-total",
			values: map[string]types.AttributeValue{
				":status": s("ST#open"),
				":total":  n("5"),
			},
		},
		{
			name: "key and filter share placeholders",
			build: func() *query.Query[order] {
				return query.NewQuery[order](exec).
					PartitionKey("status", "open").
					SortKey("total").Between(1, 5).
					Filter(condition.New(exec.Entity()).Attribute("total").Ne(3))
			},
			key:    "#status = :status AND #total BETWEEN :total AND :total_1",
			filter: "#total <> :total_2",
			index:  "status-total",
		},
		{
			name: "hand built key condition",
			build: func() *query.Query[order] {
				return query.NewQuery[order](exec).KeyCondition(
					condition.New(exec.Entity()).Attribute("created").Lt(3).Attribute("status").Eq("open"))
			},
			key:   "created < :created AND #status = :status",
			index: "status-created",
		},
		{
			name:  "explicit index",
			build: func() *query.Query[order] { return query.NewQuery[order](exec).PartitionKey("status", "x").UsingIndex("status-created") },
			key:   "#status = :status",
			index: "status-created",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := tt.build().Compile()
			require.NoError(t, err)
			assert.Equal(t, tt.key, compiled.KeyConditionExpression)
			assert.Equal(t, tt.filter, compiled.FilterExpression)
			assert.Equal(t, tt.index, compiled.IndexName)
			assert.Equal(t, "orders", compiled.TableName)
			for k, v := range tt.values {
				assert.Equal(t, v, compiled.ExpressionAttributeValues[k], k)
			}
		})
	}
}

func TestQueryInput(t *testing.T) {
	exec, _ := newExecutor(t)

	in, err := query.NewQuery[order](exec).
		PartitionKey("pk", "1").
		Filter(condition.New(exec.Entity()).Attribute("status").Eq("open")).
		Attributes("pk", "status").
		Limit(10).
		Descending().
		ConsistentRead().
		Input()
	require.NoError(t, err)

	assert.Equal(t, "pk = :pk", aws.ToString(in.KeyConditionExpression))
	assert.Equal(t, "#status = :status", aws.ToString(in.FilterExpression))
	assert.Equal(t, "pk, #status", aws.ToString(in.ProjectionExpression))
	assert.Equal(t, map[string]string{"#status": "status"}, in.ExpressionAttributeNames)
	assert.Equal(t, int32(10), aws.ToInt32(in.Limit))
	assert.False(t, aws.ToBool(in.ScanIndexForward))
	assert.True(t, aws.ToBool(in.ConsistentRead))
	assert.Nil(t, in.IndexName)
}

func TestQueryCompileErrors(t *testing.T) {
	exec, _ := newExecutor(t)
	e := exec.Entity()

	t.Run("ambiguous index names candidates", func(t *testing.T) {
		_, err := query.NewQuery[order](exec).PartitionKey("status", "open").Compile()
		assert.ErrorIs(t, err, errors.ErrIndexAmbiguous)
		assert.Contains(t, err.Error(), "status-created, status-total")
	})

	t.Run("missing partition key", func(t *testing.T) {
		_, err := query.NewQuery[order](exec).Compile()
		assert.ErrorIs(t, err, errors.ErrMissingKey)
	})

	t.Run("or in key condition", func(t *testing.T) {
		_, err := query.NewQuery[order](exec).
			KeyCondition(condition.New(e).Attribute("pk").Eq("1").Or().Attribute("sk").Eq("2")).
			Compile()
		assert.ErrorIs(t, err, errors.ErrInvalidKeyCondition)
	})

	t.Run("in key condition", func(t *testing.T) {
		_, err := query.NewQuery[order](exec).
			KeyCondition(condition.New(e).Attribute("pk").In("1", "2")).
			Compile()
		assert.ErrorIs(t, err, errors.ErrInvalidKeyCondition)
	})

	t.Run("malformed key conditions", func(t *testing.T) {
		for name, b := range map[string]*condition.Builder{
			"range on partition key":   condition.New(e).Attribute("pk").Lt("1"),
			"two sort key clauses":     condition.New(e).Attribute("pk").Eq("1").Attribute("sk").Gt("a").Attribute("sk").Lt("z"),
			"begins_with on partition": condition.New(e).Attribute("pk").BeginsWith("x"),
			"grouped":                  condition.New(e).Group(condition.New(e).Attribute("pk").Eq("1")),
		} {
			_, err := query.NewQuery[order](exec).KeyCondition(b).Input()
			assert.ErrorIs(t, err, errors.ErrInvalidKeyCondition, name)
			assert.ErrorIs(t, err, errors.ErrValidation, name)
		}
	})

	t.Run("key condition builder error", func(t *testing.T) {
		_, err := query.NewQuery[order](exec).KeyCondition(condition.New(e).Eq(1)).Compile()
		assert.ErrorIs(t, err, errors.ErrMissingAttribute)
	})

	t.Run("consistent read on global index", func(t *testing.T) {
		_, err := query.NewQuery[order](exec).PartitionKey("status", "x").SortKey("total").Eq(1).ConsistentRead().Compile()
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("bad cursor", func(t *testing.T) {
		q := query.NewQuery[order](exec).PartitionKey("pk", "1").StartAtCursor("not a cursor!")
		assert.ErrorIs(t, q.Err(), errors.ErrInvalidCursor)
		_, err := q.Compile()
		assert.ErrorIs(t, err, errors.ErrInvalidCursor)
	})

	t.Run("cursor from another index", func(t *testing.T) {
		token, err := query.EncodeCursor(cursorAt("a"), "status-created")
		require.NoError(t, err)
		_, err = query.NewQuery[order](exec).PartitionKey("pk", "1").StartAtCursor(token).Compile()
		assert.ErrorIs(t, err, errors.ErrInvalidCursor)
	})
}

func TestRunAllPages(t *testing.T) {
	exec, client := newExecutor(t)
	threePages(client)

	out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Run(context.Background(), query.RunOptions{All: true})
	require.NoError(t, err)

	assert.Len(t, out.Items, 3)
	assert.Equal(t, int32(3), out.Count)
	assert.Equal(t, int32(6), out.ScannedCount)
	assert.Equal(t, 3, out.Pages)
	assert.Nil(t, out.LastKey)
	assert.False(t, out.HasMore())
	assert.Equal(t, []string{"a", "b", "c"}, []string{out.Items[0].PK, out.Items[1].PK, out.Items[2].PK})

	cursor, err := out.Cursor()
	require.NoError(t, err)
	assert.Empty(t, cursor)
	client.AssertNumberOfCalls(t, "Query", 3)
}

func TestRunSoftCap(t *testing.T) {
	exec, client := newExecutor(t)
	threePages(client)

	out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Run(context.Background(), query.RunOptions{All: true, Max: 2})
	require.NoError(t, err)

	assert.Len(t, out.Items, 2)
	assert.Equal(t, int32(2), out.Count)
	assert.Equal(t, cursorAt("b"), out.LastKey)
	assert.True(t, out.HasMore())
	client.AssertNumberOfCalls(t, "Query", 2)

	// each page asks for no more than the remaining budget
	first := client.Calls[0].Arguments.Get(1).(*dynamodb.QueryInput)
	second := client.Calls[1].Arguments.Get(1).(*dynamodb.QueryInput)
	assert.Equal(t, int32(2), aws.ToInt32(first.Limit))
	assert.Equal(t, int32(1), aws.ToInt32(second.Limit))

	token, err := out.Cursor()
	require.NoError(t, err)
	resumed, err := query.NewQuery[order](exec).PartitionKey("pk", "1").StartAtCursor(token).Compile()
	require.NoError(t, err)
	assert.Equal(t, cursorAt("b"), resumed.ExclusiveStartKey)
}

func TestRunLargeCapKeepsLimit(t *testing.T) {
	exec, client := newExecutor(t)
	threePages(client)

	out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Limit(50).
		Run(context.Background(), query.RunOptions{All: true, Max: math.MaxInt})
	require.NoError(t, err)
	assert.Len(t, out.Items, 3)

	for _, call := range client.Calls {
		in := call.Arguments.Get(1).(*dynamodb.QueryInput)
		assert.Equal(t, int32(50), aws.ToInt32(in.Limit))
	}
	client.AssertNumberOfCalls(t, "Query", 3)
}

func TestLimitClampsToInt32(t *testing.T) {
	exec, _ := newExecutor(t)

	in, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Limit(math.MaxInt).Input()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), aws.ToInt32(in.Limit))

	scan, err := query.NewScan[order](exec).Limit(math.MaxInt).Input()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), aws.ToInt32(scan.Limit))
}

func TestRunSinglePage(t *testing.T) {
	exec, client := newExecutor(t)
	threePages(client)

	out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Limit(5).Run(context.Background(), query.RunOptions{})
	require.NoError(t, err)

	assert.Len(t, out.Items, 1)
	assert.Equal(t, 1, out.Pages)
	assert.Equal(t, cursorAt("a"), out.LastKey)
	assert.Equal(t, int32(5), aws.ToInt32(client.Calls[0].Arguments.Get(1).(*dynamodb.QueryInput).Limit))
}

func TestRunReturnModes(t *testing.T) {
	t.Run("input", func(t *testing.T) {
		exec, client := newExecutor(t)
		out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Run(context.Background(), query.RunOptions{Return: query.ReturnInput})
		require.NoError(t, err)
		require.NotNil(t, out.Request)
		assert.Equal(t, "pk = :pk", out.Request.KeyConditionExpression)
		assert.Zero(t, out.Pages)
		client.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("output", func(t *testing.T) {
		exec, client := newExecutor(t)
		threePages(client)
		out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Run(context.Background(), query.RunOptions{All: true, Return: query.ReturnOutput})
		require.NoError(t, err)
		assert.Nil(t, out.Items)
		require.Len(t, out.Raw, 3)
		assert.Equal(t, s("ORDER#a"), out.Raw[0]["pk"], "raw rows keep stored values")
	})
}

func TestRunPageErrorKeepsPartialOutput(t *testing.T) {
	exec, client := newExecutor(t)
	boom := stderrors.New("throughput exceeded")

	client.On("Query", mock.Anything, startsAt(""), mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{row("a")}, Count: 1, LastEvaluatedKey: cursorAt("a"),
	}, nil).Once()
	client.On("Query", mock.Anything, startsAt("a"), mock.Anything).Return(nil, boom).Once()

	out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Run(context.Background(), query.RunOptions{All: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var opErr *errors.Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "Query", opErr.Op)
	assert.Equal(t, 2, opErr.Context["page"])

	require.NotNil(t, out)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, cursorAt("a"), out.LastKey)
	client.AssertExpectations(t)
}

func TestRunDelayHonorsContext(t *testing.T) {
	exec, client := newExecutor(t)
	threePages(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Run(ctx, query.RunOptions{All: true, Delay: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, out.Items, 1)
	client.AssertNumberOfCalls(t, "Query", 1)
}

func TestRunDecodeError(t *testing.T) {
	exec, client := newExecutor(t)
	client.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			row("a"),
			{"pk": s("ORDER#b"), "total": s("not a number")},
		},
		Count: 2,
	}, nil).Once()

	out, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Run(context.Background(), query.RunOptions{})
	require.Error(t, err)
	assert.Len(t, out.Items, 1)
	assert.Len(t, out.Raw, 2)
}

func TestRunLogsAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	provider := &recordingProvider{}
	exec, client := newExecutor(t,
		query.WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)),
		query.WithMetrics(provider),
	)
	threePages(client)

	_, err := query.NewQuery[order](exec).PartitionKey("pk", "1").Run(context.Background(), query.RunOptions{All: true})
	require.NoError(t, err)

	assert.Equal(t, float64(3), provider.total(metrics.Pages))
	assert.Equal(t, float64(3), provider.total(metrics.Items))
	assert.Contains(t, buf.String(), `"run_id"`)
	assert.Contains(t, buf.String(), "page fetched")
}

func TestFirst(t *testing.T) {
	exec, client := newExecutor(t)
	threePages(client)

	got, err := query.NewQuery[order](exec).PartitionKey("pk", "1").First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got.PK)

	empty, emptyClient := newExecutor(t)
	emptyClient.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)
	_, err = query.NewQuery[order](empty).PartitionKey("pk", "1").First(context.Background())
	assert.True(t, errors.IsNotFound(err))
}
