package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	dqerrors "github.com/pay-theory/dynaquery/pkg/errors"
)

// Op is a comparison operator.
type Op string

// Comparison operators
const (
	OpEq Op = "="
	OpNe Op = "<>"
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// negations rewrites "not op" into an equivalent comparison instead of
// emitting NOT in front of it.
var negations = map[Op]Op{
	OpEq: OpNe,
	OpNe: OpEq,
	OpLt: OpGe,
	OpLe: OpGt,
	OpGt: OpLe,
	OpGe: OpLt,
}

// Valid reports whether op is a known comparison operator.
func (op Op) Valid() bool {
	_, ok := negations[op]
	return ok
}

// Negate returns the comparison that "not op" is rewritten to.
func Negate(op Op) (Op, error) {
	neg, ok := negations[op]
	if !ok {
		return "", fmt.Errorf("%w: %s", dqerrors.ErrInvalidOperator, op)
	}
	return neg, nil
}

// ParseOp normalizes the textual operator forms callers commonly use.
func ParseOp(s string) (Op, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "=", "==", "EQ":
		return OpEq, nil
	case "<>", "!=", "NE":
		return OpNe, nil
	case "<", "LT":
		return OpLt, nil
	case "<=", "LE":
		return OpLe, nil
	case ">", "GT":
		return OpGt, nil
	case ">=", "GE":
		return OpGe, nil
	default:
		return "", fmt.Errorf("%w: %s", dqerrors.ErrInvalidOperator, s)
	}
}

// Compare renders "k op :k".
func Compare(op Op, key string, v any) Tokens {
	return Tokens{Name(key), Literal(" " + string(op) + " "), Value(key, v)}
}

// SizeCompare renders "size(k) op :k".
func SizeCompare(op Op, key string, v any) Tokens {
	return Tokens{Literal("size("), Name(key), Literal(") " + string(op) + " "), Value(key, v)}
}

// Between renders "k BETWEEN :k AND :k_1".
func Between(key string, lo, hi any) Tokens {
	return Tokens{Name(key), Literal(" BETWEEN "), Value(key, lo), Literal(" AND "), Value(key, hi)}
}

// SizeBetween renders "size(k) BETWEEN :k AND :k_1".
func SizeBetween(key string, lo, hi any) Tokens {
	return Tokens{Literal("size("), Name(key), Literal(") BETWEEN "), Value(key, lo), Literal(" AND "), Value(key, hi)}
}

// BeginsWith renders "begins_with(k, :k)".
func BeginsWith(key string, v any) Tokens {
	return function("begins_with", key, v)
}

// Contains renders "contains(k, :k)". Collections must be reduced with Singleton first.
func Contains(key string, v any) Tokens {
	return function("contains", key, v)
}

// Type renders "attribute_type(k, :k)" where t is a type descriptor such as "S" or "SS".
func Type(key string, t string) Tokens {
	return function("attribute_type", key, t)
}

// Exists renders "attribute_exists(k)".
func Exists(key string) Tokens {
	return Tokens{Literal("attribute_exists("), Name(key), Literal(")")}
}

// NotExists renders "attribute_not_exists(k)".
func NotExists(key string) Tokens {
	return Tokens{Literal("attribute_not_exists("), Name(key), Literal(")")}
}

// Impossible renders a condition that no item satisfies.
func Impossible(key string) Tokens {
	return Tokens{
		Literal("attribute_exists("), Name(key),
		Literal(") AND attribute_not_exists("), Name(key), Literal(")"),
	}
}

// In renders "k IN (:k, :k_1, ...)". An empty candidate list renders Impossible
// because DynamoDB rejects "IN ()".
func In(key string, values []any) Tokens {
	if len(values) == 0 {
		return Impossible(key)
	}
	out := make(Tokens, 0, 2*len(values)+2)
	out = append(out, Name(key), Literal(" IN ("))
	for i, v := range values {
		if i > 0 {
			out = append(out, Literal(", "))
		}
		out = append(out, Value(key, v))
	}
	return append(out, Literal(")"))
}

// NotIn renders "NOT (k IN (...))". An empty candidate list renders nothing,
// which leaves the surrounding condition unrestricted.
func NotIn(key string, values []any) Tokens {
	if len(values) == 0 {
		return nil
	}
	return Not(In(key, values))
}

// Not wraps ts in "NOT (...)".
func Not(ts Tokens) Tokens {
	if len(ts) == 0 {
		return nil
	}
	out := make(Tokens, 0, len(ts)+2)
	out = append(out, Literal("NOT ("))
	out = append(out, ts...)
	return append(out, Literal(")"))
}

// Parenthesis wraps ts in "(...)".
func Parenthesis(ts Tokens) Tokens {
	if len(ts) == 0 {
		return nil
	}
	out := make(Tokens, 0, len(ts)+2)
	out = append(out, Literal("("))
	out = append(out, ts...)
	return append(out, Literal(")"))
}

// Singleton reduces a collection argument of contains to its only element.
// Scalars are returned unchanged. A collection with any other number of
// elements is rejected.
func Singleton(v any) (any, error) {
	switch av := v.(type) {
	case nil, []byte:
		return v, nil
	case *types.AttributeValueMemberSS:
		if len(av.Value) != 1 {
			return nil, multiValue(len(av.Value))
		}
		return &types.AttributeValueMemberS{Value: av.Value[0]}, nil
	case *types.AttributeValueMemberNS:
		if len(av.Value) != 1 {
			return nil, multiValue(len(av.Value))
		}
		return &types.AttributeValueMemberN{Value: av.Value[0]}, nil
	case *types.AttributeValueMemberBS:
		if len(av.Value) != 1 {
			return nil, multiValue(len(av.Value))
		}
		return &types.AttributeValueMemberB{Value: av.Value[0]}, nil
	case *types.AttributeValueMemberL:
		if len(av.Value) != 1 {
			return nil, multiValue(len(av.Value))
		}
		return av.Value[0], nil
	case types.AttributeValue:
		return v, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() != 1 {
			return nil, multiValue(rv.Len())
		}
		return rv.Index(0).Interface(), nil
	case reflect.Map:
		// sets expressed as map[T]struct{} or map[T]bool
		if rv.Len() != 1 {
			return nil, multiValue(rv.Len())
		}
		return rv.MapKeys()[0].Interface(), nil
	default:
		return v, nil
	}
}

// Expand flattens a single slice argument into its elements so that
// In("k", []string{"a", "b"}) and In("k", "a", "b") are equivalent.
func Expand(values []any) []any {
	if len(values) != 1 {
		return values
	}
	rv := reflect.ValueOf(values[0])
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return values
	}
	if _, ok := values[0].([]byte); ok {
		return values
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func function(name, key string, v any) Tokens {
	return Tokens{Literal(name + "("), Name(key), Literal(", "), Value(key, v), Literal(")")}
}

func multiValue(n int) error {
	return fmt.Errorf("%w: got %d", dqerrors.ErrMultiValueContains, n)
}
