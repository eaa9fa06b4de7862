package dynaquery_test

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/dynaquery"
)

type streamOrder struct {
	PK         string   `dynamodbav:"PK"`
	SK         string   `dynamodbav:"SK"`
	OrderID    string   `dynamodbav:"order_id"`
	CustomerID string   `dynamodbav:"customer_id"`
	Total      float64  `dynamodbav:"total"`
	Status     string   `dynamodbav:"status"`
	Items      []string `dynamodbav:"items"`
}

func TestUnmarshalStreamImage(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"PK":          events.NewStringAttribute("ORDER#123"),
		"SK":          events.NewStringAttribute("METADATA"),
		"order_id":    events.NewStringAttribute("123"),
		"customer_id": events.NewStringAttribute("CUST456"),
		"total":       events.NewNumberAttribute("99.99"),
		"status":      events.NewStringAttribute("pending"),
		"items": events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewStringAttribute("ITEM1"),
			events.NewStringAttribute("ITEM2"),
		}),
	}

	var order streamOrder
	require.NoError(t, dynaquery.UnmarshalStreamImage(image, &order))

	assert.Equal(t, "ORDER#123", order.PK)
	assert.Equal(t, "METADATA", order.SK)
	assert.Equal(t, "123", order.OrderID)
	assert.Equal(t, "CUST456", order.CustomerID)
	assert.Equal(t, 99.99, order.Total)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, []string{"ITEM1", "ITEM2"}, order.Items)
}

func TestUnmarshalStreamImageEdges(t *testing.T) {
	var order streamOrder
	assert.NoError(t, dynaquery.UnmarshalStreamImage(map[string]events.DynamoDBAttributeValue{}, &order))
	assert.Error(t, dynaquery.UnmarshalStreamImage(map[string]events.DynamoDBAttributeValue{
		"PK": events.NewStringAttribute("TEST"),
	}, nil))
}

func TestConvertStreamImage(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"s":    events.NewStringAttribute("test"),
		"n":    events.NewNumberAttribute("123"),
		"bool": events.NewBooleanAttribute(true),
		"null": events.NewNullAttribute(),
		"b":    events.NewBinaryAttribute([]byte("data")),
		"ss":   events.NewStringSetAttribute([]string{"a", "b"}),
		"ns":   events.NewNumberSetAttribute([]string{"1", "2"}),
		"bs":   events.NewBinarySetAttribute([][]byte{[]byte("d1"), []byte("d2")}),
		"list": events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewStringAttribute("item1"),
			events.NewNumberAttribute("42"),
		}),
		"map": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"key": events.NewStringAttribute("value"),
		}),
	}

	got, err := dynaquery.ConvertStreamImage(image)
	require.NoError(t, err)

	assert.Equal(t, map[string]types.AttributeValue{
		"s":    &types.AttributeValueMemberS{Value: "test"},
		"n":    &types.AttributeValueMemberN{Value: "123"},
		"bool": &types.AttributeValueMemberBOOL{Value: true},
		"null": &types.AttributeValueMemberNULL{Value: true},
		"b":    &types.AttributeValueMemberB{Value: []byte("data")},
		"ss":   &types.AttributeValueMemberSS{Value: []string{"a", "b"}},
		"ns":   &types.AttributeValueMemberNS{Value: []string{"1", "2"}},
		"bs":   &types.AttributeValueMemberBS{Value: [][]byte{[]byte("d1"), []byte("d2")}},
		"list": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "item1"},
			&types.AttributeValueMemberN{Value: "42"},
		}},
		"map": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: "value"},
		}},
	}, got)
}

func TestDecodeStreamRecord(t *testing.T) {
	c, _ := newClient(t)
	users, err := dynaquery.Table[User](c, "User")
	require.NoError(t, err)

	record := events.DynamoDBEventRecord{
		EventID:   "1",
		EventName: "MODIFY",
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"id": events.NewStringAttribute("USER#7"),
			},
			OldImage: map[string]events.DynamoDBAttributeValue{
				"id":     events.NewStringAttribute("USER#7"),
				"status": events.NewStringAttribute("ST#new"),
			},
			NewImage: map[string]events.DynamoDBAttributeValue{
				"id":     events.NewStringAttribute("USER#7"),
				"status": events.NewStringAttribute("ST#active"),
				"tags":   events.NewStringSetAttribute([]string{"vip"}),
			},
		},
	}

	change, err := users.DecodeStreamRecord(record)
	require.NoError(t, err)
	assert.Equal(t, "MODIFY", change.EventName)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "USER#7"}, change.Keys["id"], "keys stay as stored")
	require.NotNil(t, change.Old)
	require.NotNil(t, change.New)
	assert.Equal(t, User{ID: "7", Status: "new"}, *change.Old)
	assert.Equal(t, User{ID: "7", Status: "active", Tags: []string{"vip"}}, *change.New)

	insert := record
	insert.EventName = "INSERT"
	insert.Change.OldImage = nil
	changes, err := users.DecodeStreamEvent(events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{insert}})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Nil(t, changes[0].Old)
}
