package model

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// HasTransform reports whether the attribute wraps its values.
func (a Attribute) HasTransform() bool {
	return a.Prefix != "" || a.Suffix != ""
}

// Separator returns the string placed between prefix, value and suffix.
func (a Attribute) Separator() string {
	if a.separator == "" {
		return DefaultSeparator
	}
	return a.separator
}

// WrapString turns "v" into "prefix#v#suffix". Either side is omitted when not configured.
func (a Attribute) WrapString(s string) string {
	sep := a.Separator()
	if a.Prefix != "" {
		s = a.Prefix + sep + s
	}
	if a.Suffix != "" {
		s = s + sep + a.Suffix
	}
	return s
}

// WrapPrefix applies only the prefix. Used for begins_with, where a suffix
// would turn the prefix match into an exact match.
func (a Attribute) WrapPrefix(s string) string {
	if a.Prefix == "" {
		return s
	}
	return a.Prefix + a.Separator() + s
}

// UnwrapString strips exactly the configured prefix and suffix, so values that
// themselves contain the separator survive the round trip. A value that does
// not carry the affixes is returned unchanged.
func (a Attribute) UnwrapString(s string) string {
	sep := a.Separator()
	if a.Prefix != "" {
		s = strings.TrimPrefix(s, a.Prefix+sep)
	}
	if a.Suffix != "" {
		s = strings.TrimSuffix(s, sep+a.Suffix)
	}
	return s
}

// Wrap transforms a Go value. Strings are wrapped, string slices element by
// element, and everything else passes through.
func (a Attribute) Wrap(v any) any {
	if !a.HasTransform() {
		return v
	}
	return a.mapValue(v, a.WrapString)
}

// Unwrap reverses Wrap.
func (a Attribute) Unwrap(v any) any {
	if !a.HasTransform() {
		return v
	}
	return a.mapValue(v, a.UnwrapString)
}

// WrapAttributeValue transforms the string members of a wire value.
func (a Attribute) WrapAttributeValue(av types.AttributeValue) types.AttributeValue {
	if !a.HasTransform() {
		return av
	}
	return mapAttributeValue(av, a.WrapString)
}

// UnwrapAttributeValue reverses WrapAttributeValue.
func (a Attribute) UnwrapAttributeValue(av types.AttributeValue) types.AttributeValue {
	if !a.HasTransform() {
		return av
	}
	return mapAttributeValue(av, a.UnwrapString)
}

func (a Attribute) mapValue(v any, fn func(string) string) any {
	switch tv := v.(type) {
	case string:
		return fn(tv)
	case *string:
		if tv == nil {
			return tv
		}
		s := fn(*tv)
		return &s
	case []string:
		out := make([]string, len(tv))
		for i, s := range tv {
			out[i] = fn(s)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = a.mapValue(e, fn)
		}
		return out
	case types.AttributeValue:
		return mapAttributeValue(tv, fn)
	default:
		return v
	}
}

func mapAttributeValue(av types.AttributeValue, fn func(string) string) types.AttributeValue {
	switch tv := av.(type) {
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: fn(tv.Value)}
	case *types.AttributeValueMemberSS:
		out := make([]string, len(tv.Value))
		for i, s := range tv.Value {
			out[i] = fn(s)
		}
		return &types.AttributeValueMemberSS{Value: out}
	case *types.AttributeValueMemberL:
		out := make([]types.AttributeValue, len(tv.Value))
		for i, e := range tv.Value {
			out[i] = mapAttributeValue(e, fn)
		}
		return &types.AttributeValueMemberL{Value: out}
	default:
		return av
	}
}
