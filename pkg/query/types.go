package query

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/pkg/core"
)

// ReturnOption selects what a run or point operation hands back.
type ReturnOption uint8

const (
	// ReturnDefault executes the request and decodes items into T.
	ReturnDefault ReturnOption = iota
	// ReturnInput compiles the request without executing it.
	ReturnInput
	// ReturnOutput executes the request and returns the stored rows untouched.
	ReturnOutput
)

func (r ReturnOption) String() string {
	switch r {
	case ReturnDefault:
		return "default"
	case ReturnInput:
		return "input"
	case ReturnOutput:
		return "output"
	default:
		return "unknown"
	}
}

// RunOptions controls pagination.
type RunOptions struct {
	// All follows LastEvaluatedKey until the store reports no more pages.
	All bool
	// Max caps the number of items collected; zero means unbounded. Each
	// page's Limit is lowered to the remaining budget, so the cap is never
	// overshot. If the cap is hit while the store still has a cursor, the
	// cursor is returned in Output.LastKey.
	Max int
	// Delay is waited between consecutive page requests.
	Delay time.Duration
	// Return selects the output mode.
	Return ReturnOption
}

// Output aggregates the pages of one run.
type Output[T any] struct {
	// Request is the compiled first-page request.
	Request *core.CompiledQuery
	// Items holds decoded items. It is only filled for ReturnDefault.
	Items []T
	// Raw holds the rows exactly as the store returned them.
	Raw          []map[string]types.AttributeValue
	Count        int32
	ScannedCount int32
	Pages        int
	// LastKey is the cursor to resume from, or nil when the read is exhausted.
	LastKey map[string]types.AttributeValue
}

// HasMore reports whether the store has more results past LastKey.
func (o *Output[T]) HasMore() bool {
	return len(o.LastKey) > 0
}

// Cursor encodes LastKey as an opaque token for StartAtCursor. It returns ""
// when the read is exhausted.
func (o *Output[T]) Cursor() (string, error) {
	var index string
	if o.Request != nil {
		index = o.Request.IndexName
	}
	return EncodeCursor(o.LastKey, index)
}
