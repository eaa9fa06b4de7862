package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	dqerrors "github.com/pay-theory/dynaquery/pkg/errors"
)

// MaxPlaceholderAttempts bounds the search for a free placeholder slot.
const MaxPlaceholderAttempts = 1000

// Table allocates expression attribute names and values for one request.
// Key, filter, projection and update expressions of the same request must share
// a Table so placeholders never collide. A Table is not safe for concurrent use.
type Table struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

// NewTable creates an empty substitution table.
func NewTable() *Table {
	return &Table{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// Name returns the expression form of an attribute path. Segments that are
// reserved words or not plain identifiers are replaced by a #placeholder;
// all other segments pass through unchanged.
func (t *Table) Name(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", dqerrors.ErrInvalidPath)
	}

	segments := strings.Split(path, ".")
	for i, segment := range segments {
		base, index, err := splitSegment(segment)
		if err != nil {
			return "", fmt.Errorf("%w: %q", err, path)
		}
		if !needsEscape(base) {
			continue
		}
		placeholder, err := t.escape(base)
		if err != nil {
			return "", err
		}
		segments[i] = placeholder + index
	}
	return strings.Join(segments, "."), nil
}

// Value registers v under a placeholder derived from path and returns the
// placeholder. Repeated use of the same path yields :path, :path_1, :path_2...
func (t *Table) Value(path string, v any) (string, error) {
	av, err := ToAttributeValue(v)
	if err != nil {
		return "", fmt.Errorf("value for %q: %w", path, err)
	}

	base := ":" + sanitize(path)
	placeholder := base
	for attempt := 1; ; attempt++ {
		if _, taken := t.values[placeholder]; !taken {
			t.values[placeholder] = av
			return placeholder, nil
		}
		if attempt > MaxPlaceholderAttempts {
			return "", fmt.Errorf("%w: %s", dqerrors.ErrSubstitutionExhausted, base)
		}
		placeholder = base + "_" + strconv.Itoa(attempt)
	}
}

// Names returns the accumulated ExpressionAttributeNames, or nil if none were allocated.
func (t *Table) Names() map[string]string {
	if len(t.names) == 0 {
		return nil
	}
	out := make(map[string]string, len(t.names))
	for k, v := range t.names {
		out[k] = v
	}
	return out
}

// Values returns the accumulated ExpressionAttributeValues, or nil if none were allocated.
func (t *Table) Values() map[string]types.AttributeValue {
	if len(t.values) == 0 {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Reset clears the table for reuse with an unrelated expression.
func (t *Table) Reset() {
	clear(t.names)
	clear(t.values)
}

func (t *Table) escape(segment string) (string, error) {
	base := "#" + sanitize(segment)
	placeholder := base
	for attempt := 1; ; attempt++ {
		existing, taken := t.names[placeholder]
		if !taken {
			t.names[placeholder] = segment
			return placeholder, nil
		}
		if existing == segment {
			return placeholder, nil
		}
		if attempt > MaxPlaceholderAttempts {
			return "", fmt.Errorf("%w: %s", dqerrors.ErrSubstitutionExhausted, base)
		}
		placeholder = base + "_" + strconv.Itoa(attempt)
	}
}

// splitSegment separates "items[2][0]" into "items" and "[2][0]".
func splitSegment(segment string) (base, index string, err error) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		if segment == "" || strings.ContainsRune(segment, ']') {
			return "", "", dqerrors.ErrInvalidPath
		}
		return segment, "", nil
	}

	base, index = segment[:open], segment[open:]
	if base == "" {
		return "", "", dqerrors.ErrInvalidPath
	}
	for rest := index; rest != ""; {
		end := strings.IndexByte(rest, ']')
		if rest[0] != '[' || end < 2 {
			return "", "", dqerrors.ErrInvalidPath
		}
		if _, err := strconv.Atoi(rest[1:end]); err != nil {
			return "", "", dqerrors.ErrInvalidPath
		}
		rest = rest[end+1:]
	}
	return base, index, nil
}

func needsEscape(segment string) bool {
	if IsReserved(segment) {
		return true
	}
	for i, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '_' || (r >= '0' && r <= '9')):
		default:
			return true
		}
	}
	return false
}

// sanitize maps a path onto the placeholder alphabet: runs of anything other
// than letters and digits collapse to one underscore.
func sanitize(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	pending := false
	for _, r := range path {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if b.Len() == 0 {
		return "v"
	}
	return b.String()
}
