package query_test

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/dynaquery/pkg/mocks"
	"github.com/pay-theory/dynaquery/pkg/model"
	"github.com/pay-theory/dynaquery/pkg/query"
)

type order struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	Status string `dynamodbav:"status,omitempty"`
	Total  int    `dynamodbav:"total,omitempty"`
}

func orderEntity(t *testing.T) *model.Entity {
	t.Helper()
	e := &model.Entity{
		Name:  "Order",
		Table: "orders",
		Attributes: []model.Attribute{
			{Name: "pk", Role: model.RolePartitionKey, Prefix: "ORDER"},
			{Name: "sk", Role: model.RoleSortKey},
			{Name: "status", Prefix: "ST"},
			{Name: "created", Type: "N"},
			{Name: "total", Type: "N"},
			{Name: "email"},
		},
		Indexes: []model.Index{
			{Name: "status-created", Kind: model.GSI, PartitionKey: "status", SortKey: "created"},
			{Name: "status-total", Kind: model.GSI, PartitionKey: "status", SortKey: "total"},
			{Name: "pk-created", Kind: model.LSI, PartitionKey: "pk", SortKey: "created"},
		},
	}
	require.NoError(t, e.Init())
	return e
}

func newExecutor(t *testing.T, opts ...query.Option) (*query.Executor, *mocks.MockDynamoDBClient) {
	t.Helper()
	client := new(mocks.MockDynamoDBClient)
	return query.NewExecutor(client, orderEntity(t), opts...), client
}

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func row(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": s("ORDER#" + id), "sk": s("A")}
}

func cursorAt(id string) map[string]types.AttributeValue {
	return row(id)
}

// startsAt matches a request resuming from cursorAt(id), or a first page when id is "".
func startsAt(id string) any {
	return mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		if id == "" {
			return in.ExclusiveStartKey == nil
		}
		v, ok := in.ExclusiveStartKey["pk"].(*types.AttributeValueMemberS)
		return ok && v.Value == "ORDER#"+id
	})
}

// threePages registers pages of one item each; the first two carry a cursor.
func threePages(client *mocks.MockDynamoDBClient) {
	client.On("Query", mock.Anything, startsAt(""), mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{row("a")}, Count: 1, ScannedCount: 2, LastEvaluatedKey: cursorAt("a"),
	}, nil).Maybe()
	client.On("Query", mock.Anything, startsAt("a"), mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{row("b")}, Count: 1, ScannedCount: 2, LastEvaluatedKey: cursorAt("b"),
	}, nil).Maybe()
	client.On("Query", mock.Anything, startsAt("b"), mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{row("c")}, Count: 1, ScannedCount: 2,
	}, nil).Maybe()
}

type recordedMetric struct {
	kind  string
	name  string
	value float64
}

type recordingProvider struct {
	metrics []recordedMetric
}

func (r *recordingProvider) Count(name string, value float64, tags []string) error {
	r.metrics = append(r.metrics, recordedMetric{"count", name, value})
	return nil
}

func (r *recordingProvider) Gauge(name string, value float64, tags []string) error {
	r.metrics = append(r.metrics, recordedMetric{"gauge", name, value})
	return nil
}

func (r *recordingProvider) Histogram(name string, value float64, tags []string) error {
	r.metrics = append(r.metrics, recordedMetric{"histogram", name, value})
	return nil
}

func (r *recordingProvider) total(name string) float64 {
	var sum float64
	for _, m := range r.metrics {
		if m.name == name {
			sum += m.value
		}
	}
	return sum
}
