// Package index resolves which secondary index, if any, a query must target.
package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/model"
)

// Selector picks the key schema that serves a query
type Selector struct {
	entity *model.Entity
}

// NewSelector creates a new index selector
func NewSelector(entity *model.Entity) *Selector {
	return &Selector{
		entity: entity,
	}
}

// RequiredKeys represents the key attributes named by a query
type RequiredKeys struct {
	PartitionKey string
	SortKey      string
}

// target is either the table itself (Name == "") or one secondary index.
type target struct {
	Name         string
	PartitionKey string
	SortKey      string
}

// Resolve returns the index name to query, or "" for the table itself.
//
// An explicit index always wins once it is known to exist and to be keyed on
// the required partition attribute. Otherwise every key schema whose partition
// key is the required attribute is a candidate; a required sort attribute
// narrows the candidates to schemas with that sort key. One survivor is used
// directly. If the table itself survives alongside indexes, the table wins.
// Anything else is ambiguous and must be disambiguated by the caller.
func (s *Selector) Resolve(required RequiredKeys, explicit string) (string, error) {
	if explicit != "" {
		idx, ok := s.entity.Index(explicit)
		if !ok {
			return "", fmt.Errorf("%w: %s on %s", errors.ErrIndexNotFound, explicit, s.entity.Name)
		}
		if required.PartitionKey != "" && idx.PartitionKey != required.PartitionKey {
			return "", fmt.Errorf("%w: index %s is keyed on %s, not %s",
				errors.ErrIndexNotFound, explicit, idx.PartitionKey, required.PartitionKey)
		}
		return explicit, nil
	}

	if required.PartitionKey == "" {
		return "", fmt.Errorf("%w: query needs a partition key", errors.ErrMissingKey)
	}

	candidates := s.candidates(required.PartitionKey)
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no key schema has partition key %s", errors.ErrIndexNotFound, required.PartitionKey)
	}

	if required.SortKey != "" {
		narrowed := candidates[:0:0]
		for _, c := range candidates {
			if c.SortKey == required.SortKey {
				narrowed = append(narrowed, c)
			}
		}
		if len(narrowed) == 0 {
			return "", fmt.Errorf("%w: no key schema has partition key %s and sort key %s",
				errors.ErrIndexNotFound, required.PartitionKey, required.SortKey)
		}
		candidates = narrowed
	}

	if len(candidates) == 1 {
		return candidates[0].Name, nil
	}
	for _, c := range candidates {
		if c.Name == "" {
			return "", nil
		}
	}
	return "", fmt.Errorf("%w: %s is the partition key of indexes %s; name one with UsingIndex or add a sort key condition",
		errors.ErrIndexAmbiguous, required.PartitionKey, names(candidates))
}

// ValidateScan checks an optional index name for a scan.
func (s *Selector) ValidateScan(explicit string) error {
	if explicit == "" {
		return nil
	}
	if _, ok := s.entity.Index(explicit); !ok {
		return fmt.Errorf("%w: %s on %s", errors.ErrIndexNotFound, explicit, s.entity.Name)
	}
	return nil
}

func (s *Selector) candidates(partitionKey string) []target {
	var out []target
	if s.entity.PartitionKey() == partitionKey {
		out = append(out, target{PartitionKey: partitionKey, SortKey: s.entity.SortKey()})
	}
	for _, idx := range s.entity.Indexes {
		if idx.PartitionKey == partitionKey {
			out = append(out, target{Name: idx.Name, PartitionKey: idx.PartitionKey, SortKey: idx.SortKey})
		}
	}
	return out
}

func names(targets []target) string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.Name != "" {
			out = append(out, t.Name)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
