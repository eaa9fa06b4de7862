package expr

import (
	"fmt"
	"strings"

	dqerrors "github.com/pay-theory/dynaquery/pkg/errors"
)

// Render walks ts once, substituting names and values through t, and
// concatenates the result. An empty sequence renders "", which callers must
// treat as "no expression" and leave out of the request.
func Render(ts Tokens, t *Table) (string, error) {
	if len(ts) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, tok := range ts {
		switch tok.Kind {
		case KindLiteral:
			b.WriteString(tok.Text)
		case KindName:
			name, err := t.Name(tok.Key)
			if err != nil {
				return "", err
			}
			b.WriteString(name)
		case KindValue:
			placeholder, err := t.Value(tok.Key, tok.Value)
			if err != nil {
				return "", err
			}
			b.WriteString(placeholder)
		default:
			return "", fmt.Errorf("unknown token kind %d", tok.Kind)
		}
	}
	return b.String(), nil
}

// RenderProjection renders a ProjectionExpression for paths.
func RenderProjection(paths []string, t *Table) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		name, err := t.Name(p)
		if err != nil {
			return "", err
		}
		out[i] = name
	}
	return strings.Join(out, ", "), nil
}

// keyComparisons are the operators a sort key clause may use. The partition
// key clause must use " = ".
var keyComparisons = map[string]bool{
	" = ":  true,
	" < ":  true,
	" <= ": true,
	" > ":  true,
	" >= ": true,
}

// CheckKey rejects token sequences DynamoDB would refuse as a key condition.
// The sequence is one or two clauses joined by " AND ", each on a different
// attribute. One clause is the partition key equality; the other may be a sort
// key comparison, begins_with or BETWEEN, in either order. OR, NOT, <>, IN,
// size(), grouping and the other functions are not allowed.
func CheckKey(ts Tokens) error {
	first, firstOp, next, err := keyClause(ts, 0)
	if err != nil {
		return err
	}
	if next == len(ts) {
		if firstOp != " = " {
			return fmt.Errorf("%w: partition key %s must be compared with =", dqerrors.ErrInvalidKeyCondition, first)
		}
		return nil
	}
	if !isLiteral(ts[next], " AND ") {
		return fmt.Errorf("%w: %q is not allowed", dqerrors.ErrInvalidKeyCondition, strings.TrimSpace(tokenText(ts[next])))
	}

	second, secondOp, end, err := keyClause(ts, next+1)
	if err != nil {
		return err
	}
	if end != len(ts) {
		return fmt.Errorf("%w: at most one sort key condition is allowed", dqerrors.ErrInvalidKeyCondition)
	}
	if second == first {
		return fmt.Errorf("%w: %s referenced twice", dqerrors.ErrInvalidKeyCondition, first)
	}
	if firstOp != " = " && secondOp != " = " {
		return fmt.Errorf("%w: no partition key equality", dqerrors.ErrInvalidKeyCondition)
	}
	return nil
}

// keyClause parses one key clause starting at ts[i] and returns the attribute,
// the operator text and the index after the clause.
func keyClause(ts Tokens, i int) (string, string, int, error) {
	at := func(j int) (Token, bool) {
		if j < len(ts) {
			return ts[j], true
		}
		return Token{}, false
	}
	malformed := fmt.Errorf("%w: malformed key condition", dqerrors.ErrInvalidKeyCondition)

	first, ok := at(i)
	if !ok {
		return "", "", i, malformed
	}

	if isLiteral(first, "begins_with(") {
		name, okName := at(i + 1)
		sep, okSep := at(i + 2)
		val, okVal := at(i + 3)
		closing, okClose := at(i + 4)
		if !okName || !okSep || !okVal || !okClose ||
			name.Kind != KindName || !isLiteral(sep, ", ") || val.Kind != KindValue || !isLiteral(closing, ")") {
			return "", "", i, malformed
		}
		return name.Key, "begins_with", i + 5, nil
	}

	if first.Kind != KindName {
		return "", "", i, fmt.Errorf("%w: %q is not allowed", dqerrors.ErrInvalidKeyCondition, strings.TrimSpace(tokenText(first)))
	}
	op, ok := at(i + 1)
	if !ok || op.Kind != KindLiteral {
		return "", "", i, malformed
	}

	switch {
	case op.Text == " BETWEEN ":
		lo, okLo := at(i + 2)
		and, okAnd := at(i + 3)
		hi, okHi := at(i + 4)
		if !okLo || !okAnd || !okHi || lo.Kind != KindValue || !isLiteral(and, " AND ") || hi.Kind != KindValue {
			return "", "", i, malformed
		}
		return first.Key, op.Text, i + 5, nil
	case keyComparisons[op.Text]:
		val, okVal := at(i + 2)
		if !okVal || val.Kind != KindValue {
			return "", "", i, malformed
		}
		return first.Key, op.Text, i + 3, nil
	default:
		return "", "", i, fmt.Errorf("%w: %q is not allowed", dqerrors.ErrInvalidKeyCondition, strings.TrimSpace(op.Text))
	}
}

func isLiteral(tok Token, text string) bool {
	return tok.Kind == KindLiteral && tok.Text == text
}

func tokenText(tok Token) string {
	if tok.Kind == KindLiteral {
		return tok.Text
	}
	return tok.Key
}
