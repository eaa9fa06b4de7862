// Package validation checks DynamoDB resource names before they reach a request.
package validation

import (
	"fmt"
	"regexp"

	"github.com/pay-theory/dynaquery/pkg/errors"
)

// Name length limits
const (
	MinNameLength       = 3
	MaxTableNameLength  = 255
	MaxIndexNameLength  = 255
	MaxAttributeNameLen = 255
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidateTableName validates a DynamoDB table name
func ValidateTableName(name string) error {
	if len(name) < MinNameLength || len(name) > MaxTableNameLength {
		return fmt.Errorf("%w: table name %q must be %d-%d characters", errors.ErrInvalidEntity, name, MinNameLength, MaxTableNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: table name %q can only contain letters, numbers, dots, dashes, and underscores", errors.ErrInvalidEntity, name)
	}
	return nil
}

// ValidateIndexName validates a DynamoDB index name. Empty means the table itself.
func ValidateIndexName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) < MinNameLength || len(name) > MaxIndexNameLength {
		return fmt.Errorf("%w: index name %q must be %d-%d characters", errors.ErrInvalidEntity, name, MinNameLength, MaxIndexNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: index name %q can only contain letters, numbers, dots, dashes, and underscores", errors.ErrInvalidEntity, name)
	}
	return nil
}

// ValidateAttributeName validates a top-level attribute name. Any non-empty
// name up to 255 bytes is legal; reserved words are handled by placeholders.
func ValidateAttributeName(name string) error {
	if name == "" || len(name) > MaxAttributeNameLen {
		return fmt.Errorf("%w: attribute name must be 1-%d bytes", errors.ErrInvalidEntity, MaxAttributeNameLen)
	}
	return nil
}
