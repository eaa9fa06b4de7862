// Package errors defines error types and utilities for dynaquery
package errors

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrValidation is the root of every error raised before a request is sent.
var ErrValidation = errors.New("validation failed")

// Validation errors. Each one wraps ErrValidation.
var (
	// ErrMultiValueContains is returned when contains receives a collection with more than one element
	ErrMultiValueContains = fmt.Errorf("%w: contains accepts exactly one element", ErrValidation)

	// ErrIndexAmbiguous is returned when a key attribute belongs to more than one index
	ErrIndexAmbiguous = fmt.Errorf("%w: ambiguous index", ErrValidation)

	// ErrIndexNotFound is returned when a specified index doesn't exist
	ErrIndexNotFound = fmt.Errorf("%w: index not found", ErrValidation)

	// ErrSubstitutionExhausted is returned when no free value placeholder could be allocated
	ErrSubstitutionExhausted = fmt.Errorf("%w: placeholder slots exhausted", ErrValidation)

	// ErrInvalidKeyCondition is returned when a key condition uses an operator DynamoDB rejects there
	ErrInvalidKeyCondition = fmt.Errorf("%w: invalid key condition", ErrValidation)

	// ErrDuplicateKey is returned when a batch contains the same key twice
	ErrDuplicateKey = fmt.Errorf("%w: duplicate key", ErrValidation)

	// ErrMissingAttribute is returned when an operator is used before an attribute was named
	ErrMissingAttribute = fmt.Errorf("%w: no attribute selected", ErrValidation)

	// ErrInvalidPath is returned when an attribute path cannot be parsed
	ErrInvalidPath = fmt.Errorf("%w: invalid attribute path", ErrValidation)

	// ErrMissingKey is returned when a request is built without its required key
	ErrMissingKey = fmt.Errorf("%w: missing key", ErrValidation)

	// ErrInvalidEntity is returned when an entity descriptor is invalid
	ErrInvalidEntity = fmt.Errorf("%w: invalid entity", ErrValidation)

	// ErrUnknownEntity is returned when the registry has no entity with the requested name
	ErrUnknownEntity = fmt.Errorf("%w: unknown entity", ErrValidation)

	// ErrInvalidOperator is returned when an unknown comparison operator is used
	ErrInvalidOperator = fmt.Errorf("%w: invalid operator", ErrValidation)

	// ErrInvalidCursor is returned when a pagination cursor cannot be decoded or belongs to another index
	ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", ErrValidation)
)

// ErrBatchUnprocessed is returned when a batch still has unprocessed requests after every retry.
var ErrBatchUnprocessed = errors.New("batch requests left unprocessed")

// ErrNotFound is returned when a point lookup or Query.First yields no item.
var ErrNotFound = errors.New("item not found")

// Error represents a detailed error with context
type Error struct {
	Op      string         // Operation that failed
	Entity  string         // Entity name
	Err     error          // Underlying error
	Context map[string]any // Additional context
}

// Error implements the error interface
func (e *Error) Error() string {
	// Entity names and context stay out of the message; they are available on the struct.
	return fmt.Sprintf("dynaquery: %s operation failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error
func NewError(op, entity string, err error) *Error {
	return &Error{
		Op:     op,
		Entity: entity,
		Err:    err,
	}
}

// NewErrorWithContext creates a new Error with context
func NewErrorWithContext(op, entity string, err error, context map[string]any) *Error {
	return &Error{
		Op:      op,
		Entity:  entity,
		Err:     err,
		Context: context,
	}
}

// IsValidation reports whether err was raised before any request reached the store.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error indicates an item was not found
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConditionFailed checks if an error is a store-reported conditional check failure
func IsConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
