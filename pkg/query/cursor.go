package query

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/pkg/errors"
)

// Cursor is the decoded form of an opaque pagination token.
type Cursor struct {
	LastKey map[string]types.AttributeValue
	Index   string
}

type cursorJSON struct {
	Key   map[string]jsonValue `json:"k"`
	Index string               `json:"i,omitempty"`
}

// jsonValue mirrors the DynamoDB JSON shape of an attribute value.
type jsonValue struct {
	S    *string              `json:"S,omitempty"`
	N    *string              `json:"N,omitempty"`
	B    []byte               `json:"B,omitempty"`
	BOOL *bool                `json:"BOOL,omitempty"`
	NULL bool                 `json:"NULL,omitempty"`
	L    []jsonValue          `json:"L,omitempty"`
	M    map[string]jsonValue `json:"M,omitempty"`
	SS   []string             `json:"SS,omitempty"`
	NS   []string             `json:"NS,omitempty"`
	BS   [][]byte             `json:"BS,omitempty"`
}

// EncodeCursor encodes lastKey into a URL-safe token. An empty key encodes to "".
func EncodeCursor(lastKey map[string]types.AttributeValue, index string) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}

	c := cursorJSON{Key: make(map[string]jsonValue, len(lastKey)), Index: index}
	for k, v := range lastKey {
		jv, err := toJSONValue(v)
		if err != nil {
			return "", fmt.Errorf("failed to convert attribute %s: %w", k, err)
		}
		c.Key[k] = jv
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor reverses EncodeCursor. An empty token decodes to nil.
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidCursor, err)
	}

	var c cursorJSON
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidCursor, err)
	}
	if len(c.Key) == 0 {
		return nil, fmt.Errorf("%w: no key", errors.ErrInvalidCursor)
	}

	out := &Cursor{LastKey: make(map[string]types.AttributeValue, len(c.Key)), Index: c.Index}
	for k, jv := range c.Key {
		av, err := jv.attributeValue()
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %s: %v", errors.ErrInvalidCursor, k, err)
		}
		out.LastKey[k] = av
	}
	return out, nil
}

func toJSONValue(av types.AttributeValue) (jsonValue, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return jsonValue{S: &v.Value}, nil
	case *types.AttributeValueMemberN:
		return jsonValue{N: &v.Value}, nil
	case *types.AttributeValueMemberB:
		return jsonValue{B: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return jsonValue{BOOL: &v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return jsonValue{NULL: true}, nil
	case *types.AttributeValueMemberSS:
		return jsonValue{SS: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return jsonValue{NS: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return jsonValue{BS: v.Value}, nil
	case *types.AttributeValueMemberL:
		list := make([]jsonValue, len(v.Value))
		for i, item := range v.Value {
			jv, err := toJSONValue(item)
			if err != nil {
				return jsonValue{}, err
			}
			list[i] = jv
		}
		return jsonValue{L: list}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]jsonValue, len(v.Value))
		for k, item := range v.Value {
			jv, err := toJSONValue(item)
			if err != nil {
				return jsonValue{}, err
			}
			m[k] = jv
		}
		return jsonValue{M: m}, nil
	default:
		return jsonValue{}, fmt.Errorf("unknown AttributeValue type: %T", av)
	}
}

func (j jsonValue) attributeValue() (types.AttributeValue, error) {
	switch {
	case j.S != nil:
		return &types.AttributeValueMemberS{Value: *j.S}, nil
	case j.N != nil:
		return &types.AttributeValueMemberN{Value: *j.N}, nil
	case j.B != nil:
		return &types.AttributeValueMemberB{Value: j.B}, nil
	case j.BOOL != nil:
		return &types.AttributeValueMemberBOOL{Value: *j.BOOL}, nil
	case j.NULL:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case j.SS != nil:
		return &types.AttributeValueMemberSS{Value: j.SS}, nil
	case j.NS != nil:
		return &types.AttributeValueMemberNS{Value: j.NS}, nil
	case j.BS != nil:
		return &types.AttributeValueMemberBS{Value: j.BS}, nil
	case j.L != nil:
		list := make([]types.AttributeValue, len(j.L))
		for i, item := range j.L {
			av, err := item.attributeValue()
			if err != nil {
				return nil, err
			}
			list[i] = av
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case j.M != nil:
		m := make(map[string]types.AttributeValue, len(j.M))
		for k, item := range j.M {
			av, err := item.attributeValue()
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	default:
		return nil, fmt.Errorf("empty attribute value")
	}
}
