// Package expr compiles condition, key, update and projection expressions.
//
// An expression is built as an ordered sequence of tokens. Literal tokens carry
// fixed text such as operators and punctuation, Name tokens reference an
// attribute path and Value tokens carry a literal value tied to the attribute
// it was compared against. Rendering walks the sequence once and replaces every
// Name and Value with a placeholder allocated from a Table.
package expr

// Kind identifies the variant a Token holds.
type Kind uint8

const (
	// KindLiteral is fixed expression text.
	KindLiteral Kind = iota
	// KindName references an attribute path.
	KindName
	// KindValue references a literal value.
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindName:
		return "name"
	case KindValue:
		return "value"
	default:
		return "unknown"
	}
}

// Token is one element of an expression.
type Token struct {
	Kind Kind
	// Text is set for literals.
	Text string
	// Key is the attribute path for names and values.
	Key string
	// Value is the literal carried by a value token.
	Value any
}

// Tokens is an ordered token sequence. Order is significant: tokens render verbatim, left to right.
type Tokens []Token

// Literal returns a literal token.
func Literal(text string) Token {
	return Token{Kind: KindLiteral, Text: text}
}

// Name returns an attribute-name token.
func Name(key string) Token {
	return Token{Kind: KindName, Key: key}
}

// Value returns an attribute-value token bound to key.
func Value(key string, v any) Token {
	return Token{Kind: KindValue, Key: key, Value: v}
}

// Clone returns a copy of ts that shares no backing array with it.
func (ts Tokens) Clone() Tokens {
	if ts == nil {
		return nil
	}
	out := make(Tokens, len(ts))
	copy(out, ts)
	return out
}
