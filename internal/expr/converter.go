package expr

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ToAttributeValue converts a Go value to a DynamoDB AttributeValue.
// AttributeValues pass through untouched so callers can force a wire type,
// typically a string or number set.
func ToAttributeValue(value any) (types.AttributeValue, error) {
	switch v := value.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case types.AttributeValue:
		return v, nil
	case time.Time:
		return &types.AttributeValueMemberS{Value: v.Format(time.RFC3339Nano)}, nil
	case *time.Time:
		if v == nil {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		return &types.AttributeValueMemberS{Value: v.Format(time.RFC3339Nano)}, nil
	}

	av, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", value, err)
	}
	return av, nil
}

// StringSet builds an SS attribute value.
func StringSet(values ...string) *types.AttributeValueMemberSS {
	return &types.AttributeValueMemberSS{Value: values}
}

// NumberSet builds an NS attribute value.
func NumberSet[N ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64 | ~float32 | ~float64](values ...N) *types.AttributeValueMemberNS {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return &types.AttributeValueMemberNS{Value: out}
}
