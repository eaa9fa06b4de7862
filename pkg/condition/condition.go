// Package condition provides a chainable builder for DynamoDB condition and
// filter expressions.
//
//	c := condition.New(entity).
//		Attribute("status").Eq("open").
//		Or().
//		Attribute("total").Not().Lt(100)
//
// Each clause starts with Attribute and ends with a comparison. And and Or
// only set the connective placed before the next clause; a connective with no
// clause after it is never rendered. Errors are sticky: the first one is
// reported by Err, Build and Compile.
package condition

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/internal/expr"
	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/model"
)

type connective uint8

const (
	and connective = iota
	or
)

func (c connective) literal() string {
	if c == or {
		return " OR "
	}
	return " AND "
}

// Builder accumulates condition tokens. A Builder is not safe for concurrent use.
type Builder struct {
	lookup  model.Lookup
	tokens  expr.Tokens
	pending connective
	key     string
	negate  bool
	size    bool
	err     error
}

// Expression is a rendered condition with its placeholders.
type Expression struct {
	Expression string
	Names      map[string]string
	Values     map[string]types.AttributeValue
}

// New creates an empty builder. lookup supplies prefix/suffix transforms for
// literal values and may be nil.
func New(lookup model.Lookup) *Builder {
	return &Builder{lookup: lookup}
}

// Attribute selects the attribute the next comparison applies to.
func (b *Builder) Attribute(path string) *Builder {
	b.key = path
	return b
}

// Not negates the next comparison. Ordering comparisons are rewritten
// (not lt becomes ge); the others are wrapped in NOT (...).
func (b *Builder) Not() *Builder {
	b.negate = !b.negate
	return b
}

// Size compares size(attribute) instead of the attribute itself.
func (b *Builder) Size() *Builder {
	b.size = true
	return b
}

// And joins the next clause with AND. This is the default.
func (b *Builder) And() *Builder {
	b.pending = and
	return b
}

// Or joins the next clause with OR.
func (b *Builder) Or() *Builder {
	b.pending = or
	return b
}

func (b *Builder) Eq(v any) *Builder { return b.compare(expr.OpEq, v) }
func (b *Builder) Ne(v any) *Builder { return b.compare(expr.OpNe, v) }
func (b *Builder) Lt(v any) *Builder { return b.compare(expr.OpLt, v) }
func (b *Builder) Le(v any) *Builder { return b.compare(expr.OpLe, v) }
func (b *Builder) Gt(v any) *Builder { return b.compare(expr.OpGt, v) }
func (b *Builder) Ge(v any) *Builder { return b.compare(expr.OpGe, v) }

// Compare applies a textual operator such as "=", "!=" or "GE".
func (b *Builder) Compare(op string, v any) *Builder {
	parsed, err := expr.ParseOp(op)
	if err != nil {
		return b.fail(err)
	}
	return b.compare(parsed, v)
}

// Between matches lo <= attribute <= hi.
func (b *Builder) Between(lo, hi any) *Builder {
	key, ok := b.begin()
	if !ok {
		return b
	}
	var clause expr.Tokens
	if b.size {
		clause = expr.SizeBetween(key, lo, hi)
	} else {
		clause = expr.Between(key, b.wrap(key, lo), b.wrap(key, hi))
	}
	return b.emit(b.maybeNot(clause))
}

// BeginsWith matches string prefixes. Only the attribute's prefix transform is
// applied to the argument.
func (b *Builder) BeginsWith(prefix string) *Builder {
	key, ok := b.begin()
	if !ok || !b.noSize("begins_with") {
		return b
	}
	if attr, found := b.attribute(key); found {
		prefix = attr.WrapPrefix(prefix)
	}
	return b.emit(b.maybeNot(expr.BeginsWith(key, prefix)))
}

// Contains matches a substring of a string attribute or an element of a set or
// list attribute. A collection argument must hold exactly one element.
func (b *Builder) Contains(v any) *Builder {
	key, ok := b.begin()
	if !ok || !b.noSize("contains") {
		return b
	}
	v, err := expr.Singleton(v)
	if err != nil {
		return b.fail(fmt.Errorf("%s: %w", key, err))
	}
	// A substring search on a wrapped string must not be wrapped itself.
	if attr, found := b.attribute(key); found && attr.Type != "S" {
		v = attr.Wrap(v)
	}
	return b.emit(b.maybeNot(expr.Contains(key, v)))
}

// In matches any of values. A single slice argument is expanded. With no
// values In never matches, while Not().In() with no values always matches.
func (b *Builder) In(values ...any) *Builder {
	key, ok := b.begin()
	if !ok || !b.noSize("in") {
		return b
	}
	values = expr.Expand(values)
	wrapped := make([]any, len(values))
	for i, v := range values {
		wrapped[i] = b.wrap(key, v)
	}
	if b.negate {
		return b.emit(expr.NotIn(key, wrapped))
	}
	return b.emit(expr.In(key, wrapped))
}

// Exists matches items that have the attribute.
func (b *Builder) Exists() *Builder {
	key, ok := b.begin()
	if !ok || !b.noSize("attribute_exists") {
		return b
	}
	return b.emit(b.maybeNot(expr.Exists(key)))
}

// NotExists matches items that lack the attribute.
func (b *Builder) NotExists() *Builder {
	key, ok := b.begin()
	if !ok || !b.noSize("attribute_not_exists") {
		return b
	}
	return b.emit(b.maybeNot(expr.NotExists(key)))
}

// Type matches the attribute's DynamoDB type descriptor ("S", "N", "SS", ...).
func (b *Builder) Type(t string) *Builder {
	key, ok := b.begin()
	if !ok || !b.noSize("attribute_type") {
		return b
	}
	return b.emit(b.maybeNot(expr.Type(key, t)))
}

// Group appends other wrapped in parentheses. A nil or empty other is a no-op.
// After Not the group is wrapped in NOT (...) instead.
func (b *Builder) Group(other *Builder) *Builder {
	if other == nil || b.err != nil {
		return b
	}
	if other.err != nil {
		return b.fail(other.err)
	}
	if b.negate {
		return b.emit(expr.Not(other.tokens))
	}
	return b.emit(expr.Parenthesis(other.tokens))
}

// Parenthesis is an alias of Group.
func (b *Builder) Parenthesis(other *Builder) *Builder {
	return b.Group(other)
}

// Condition appends other's clauses without parentheses.
func (b *Builder) Condition(other *Builder) *Builder {
	if other == nil || b.err != nil {
		return b
	}
	if other.err != nil {
		return b.fail(other.err)
	}
	return b.emit(other.tokens.Clone())
}

// Tokens returns a copy of the accumulated tokens.
func (b *Builder) Tokens() expr.Tokens {
	return b.tokens.Clone()
}

// Empty reports whether no clause has been added.
func (b *Builder) Empty() bool {
	return len(b.tokens) == 0
}

// Err returns the first error recorded while building.
func (b *Builder) Err() error {
	return b.err
}

// Clone returns an independent copy of the builder.
func (b *Builder) Clone() *Builder {
	c := *b
	c.tokens = b.tokens.Clone()
	return &c
}

// Build renders the condition into table. An empty builder renders "".
func (b *Builder) Build(table *expr.Table) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return expr.Render(b.tokens, table)
}

// Compile renders the condition with a fresh substitution table.
func (b *Builder) Compile() (Expression, error) {
	table := expr.NewTable()
	s, err := b.Build(table)
	if err != nil {
		return Expression{}, err
	}
	return Expression{Expression: s, Names: table.Names(), Values: table.Values()}, nil
}

func (b *Builder) compare(op expr.Op, v any) *Builder {
	key, ok := b.begin()
	if !ok {
		return b
	}
	if !op.Valid() {
		return b.fail(fmt.Errorf("%w: %s", errors.ErrInvalidOperator, op))
	}
	if b.negate {
		op, _ = expr.Negate(op)
	}
	if b.size {
		return b.emit(expr.SizeCompare(op, key, v))
	}
	return b.emit(expr.Compare(op, key, b.wrap(key, v)))
}

// begin returns the current attribute, recording an error if none is selected.
func (b *Builder) begin() (string, bool) {
	if b.err != nil {
		return "", false
	}
	if b.key == "" {
		b.fail(errors.ErrMissingAttribute)
		return "", false
	}
	return b.key, true
}

// emit appends one clause. The pending connective goes in front of it only
// when there is something to join and the clause is non-empty.
func (b *Builder) emit(clause expr.Tokens) *Builder {
	defer b.resetClause()
	if len(clause) == 0 {
		return b
	}
	if len(b.tokens) > 0 {
		b.tokens = append(b.tokens, expr.Literal(b.pending.literal()))
	}
	b.tokens = append(b.tokens, clause...)
	return b
}

func (b *Builder) resetClause() {
	b.pending = and
	b.negate = false
	b.size = false
}

func (b *Builder) maybeNot(clause expr.Tokens) expr.Tokens {
	if b.negate {
		return expr.Not(clause)
	}
	return clause
}

func (b *Builder) noSize(fn string) bool {
	if b.size {
		b.fail(fmt.Errorf("%w: size() cannot be combined with %s", errors.ErrInvalidOperator, fn))
		return false
	}
	return true
}

func (b *Builder) attribute(key string) (model.Attribute, bool) {
	if b.lookup == nil {
		return model.Attribute{}, false
	}
	return b.lookup.Attribute(key)
}

func (b *Builder) wrap(key string, v any) any {
	attr, ok := b.attribute(key)
	if !ok {
		return v
	}
	return attr.Wrap(v)
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	b.resetClause()
	return b
}
