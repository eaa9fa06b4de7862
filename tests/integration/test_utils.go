package integration

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/dynaquery"
	"github.com/pay-theory/dynaquery/pkg/model"
	"github.com/pay-theory/dynaquery/pkg/session"
)

// TestContext holds a client bound to DynamoDB Local and the tables it created
type TestContext struct {
	Client         *dynaquery.Client
	DynamoDBClient *dynamodb.Client
	TablesCreated  []string
}

// InitTestClient creates a client against DynamoDB Local, skipping the test when it is not running
func InitTestClient(t *testing.T) *TestContext {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("Integration tests disabled")
	}

	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:8000"
	}
	if !isDynamoDBLocalRunning(endpoint) {
		t.Skipf("DynamoDB Local is not running at %s", endpoint)
	}

	cfg := session.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.AccessKeyID = "dummy"
	cfg.SecretAccessKey = "dummy"
	cfg.Logging.Enabled = false

	ctx := context.Background()
	client, err := dynaquery.New(ctx, cfg)
	require.NoError(t, err)

	api, err := client.Session().Client()
	require.NoError(t, err)

	tc := &TestContext{Client: client, DynamoDBClient: api}
	t.Cleanup(func() {
		for _, table := range tc.TablesCreated {
			if _, err := api.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(table)}); err != nil {
				t.Logf("Cleanup error for %s: %v", table, err)
			}
		}
		_ = client.Close()
	})
	return tc
}

// CreateTable creates a uniquely named table for entity, registers the entity
// under that table and waits until the table is active.
func (tc *TestContext) CreateTable(t *testing.T, entity *model.Entity) {
	t.Helper()

	entity.Table = fmt.Sprintf("%s-%s", entity.Table, uuid.NewString()[:8])
	require.NoError(t, tc.Client.Register(entity))

	input := tableInput(entity)
	_, err := tc.DynamoDBClient.CreateTable(context.Background(), input)
	require.NoError(t, err)
	tc.TablesCreated = append(tc.TablesCreated, entity.Table)

	waiter := dynamodb.NewTableExistsWaiter(tc.DynamoDBClient)
	require.NoError(t, waiter.Wait(context.Background(), &dynamodb.DescribeTableInput{TableName: input.TableName}, 30*time.Second))
}

func tableInput(entity *model.Entity) *dynamodb.CreateTableInput {
	defined := map[string]bool{}
	var definitions []types.AttributeDefinition
	define := func(name string) {
		if name == "" || defined[name] {
			return
		}
		defined[name] = true
		attrType := types.ScalarAttributeTypeS
		if attr, ok := entity.Attribute(name); ok && attr.Type == "N" {
			attrType = types.ScalarAttributeTypeN
		}
		definitions = append(definitions, types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: attrType})
	}

	schema := func(pk, sk string) []types.KeySchemaElement {
		define(pk)
		keys := []types.KeySchemaElement{{AttributeName: aws.String(pk), KeyType: types.KeyTypeHash}}
		if sk != "" {
			define(sk)
			keys = append(keys, types.KeySchemaElement{AttributeName: aws.String(sk), KeyType: types.KeyTypeRange})
		}
		return keys
	}

	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(entity.Table),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema:   schema(entity.PartitionKey(), entity.SortKey()),
	}
	projection := &types.Projection{ProjectionType: types.ProjectionTypeAll}
	for _, idx := range entity.Indexes {
		keys := schema(idx.PartitionKey, idx.SortKey)
		if idx.Kind == model.GSI {
			input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
				IndexName: aws.String(idx.Name), KeySchema: keys, Projection: projection,
			})
		} else {
			input.LocalSecondaryIndexes = append(input.LocalSecondaryIndexes, types.LocalSecondaryIndex{
				IndexName: aws.String(idx.Name), KeySchema: keys, Projection: projection,
			})
		}
	}
	input.AttributeDefinitions = definitions
	return input
}

func isDynamoDBLocalRunning(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", u.Host, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
