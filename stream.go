package dynaquery

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/pkg/query"
)

// StreamChange is one decoded DynamoDB stream record.
type StreamChange[T any] struct {
	EventID   string
	EventName string
	Keys      map[string]types.AttributeValue
	// Old and New are nil when the stream view type or event omits that image.
	Old *T
	New *T
}

// DecodeStreamRecord converts a stream record's images, reversing the
// entity's value transforms.
func (e *Entity[T]) DecodeStreamRecord(record events.DynamoDBEventRecord) (*StreamChange[T], error) {
	change := &StreamChange[T]{
		EventID:   record.EventID,
		EventName: record.EventName,
	}

	keys, err := ConvertStreamImage(record.Change.Keys)
	if err != nil {
		return nil, fmt.Errorf("stream keys: %w", err)
	}
	change.Keys = keys

	if len(record.Change.OldImage) > 0 {
		old, err := e.decodeImage(record.Change.OldImage)
		if err != nil {
			return nil, fmt.Errorf("old image: %w", err)
		}
		change.Old = &old
	}
	if len(record.Change.NewImage) > 0 {
		img, err := e.decodeImage(record.Change.NewImage)
		if err != nil {
			return nil, fmt.Errorf("new image: %w", err)
		}
		change.New = &img
	}
	return change, nil
}

// DecodeStreamEvent decodes every record of event. The first failing record
// stops decoding.
func (e *Entity[T]) DecodeStreamEvent(event events.DynamoDBEvent) ([]*StreamChange[T], error) {
	out := make([]*StreamChange[T], 0, len(event.Records))
	for i, record := range event.Records {
		change, err := e.DecodeStreamRecord(record)
		if err != nil {
			return out, fmt.Errorf("record %d (%s): %w", i, record.EventID, err)
		}
		out = append(out, change)
	}
	return out, nil
}

func (e *Entity[T]) decodeImage(image map[string]events.DynamoDBAttributeValue) (T, error) {
	var zero T
	item, err := ConvertStreamImage(image)
	if err != nil {
		return zero, err
	}
	return query.DecodeItem[T](e.exec.Entity(), item)
}

// UnmarshalStreamImage decodes a stream image into out without any entity
// transforms. out must be a non-nil pointer.
func UnmarshalStreamImage(image map[string]events.DynamoDBAttributeValue, out any) error {
	if out == nil {
		return fmt.Errorf("stream image destination is nil")
	}
	item, err := ConvertStreamImage(image)
	if err != nil {
		return err
	}
	return attributevalue.UnmarshalMap(item, out)
}

// ConvertStreamImage converts Lambda event attribute values to SDK attribute values.
func ConvertStreamImage(image map[string]events.DynamoDBAttributeValue) (map[string]types.AttributeValue, error) {
	if image == nil {
		return nil, nil
	}
	out := make(map[string]types.AttributeValue, len(image))
	for name, v := range image {
		av, err := convertStreamValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = av
	}
	return out, nil
}

func convertStreamValue(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, len(list))
		for i, item := range list {
			av, err := convertStreamValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = av
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m := v.Map()
		out := make(map[string]types.AttributeValue, len(m))
		for k, item := range m {
			av, err := convertStreamValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = av
		}
		return &types.AttributeValueMemberM{Value: out}, nil
	default:
		return nil, fmt.Errorf("unsupported stream attribute type %d", v.DataType())
	}
}
