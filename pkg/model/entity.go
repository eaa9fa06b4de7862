// Package model holds entity descriptors: the attribute metadata that
// condition, query and update builders consult for key roles, index
// membership and prefix/suffix value transforms.
//
// Entities are declared explicitly, either in Go or in YAML, and are
// immutable once Init has succeeded.
package model

import (
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/validation"
)

// Role marks an attribute as part of the table's primary key.
type Role string

const (
	RoleNone         Role = ""
	RolePartitionKey Role = "pk"
	RoleSortKey      Role = "sk"
)

// IndexKind distinguishes global from local secondary indexes.
type IndexKind string

const (
	GSI IndexKind = "GSI"
	LSI IndexKind = "LSI"
)

// DefaultSeparator joins prefix, value and suffix.
const DefaultSeparator = "#"

// Attribute describes one attribute of an entity.
type Attribute struct {
	Name string `yaml:"name" validate:"required"`
	// Type is the DynamoDB type descriptor (S, N, B, BOOL, L, M, SS, NS, BS).
	Type   string `yaml:"type" validate:"omitempty,oneof=S N B BOOL NULL L M SS NS BS"`
	Role   Role   `yaml:"role" validate:"omitempty,oneof=pk sk"`
	Prefix string `yaml:"prefix"`
	Suffix string `yaml:"suffix"`
	// Indexes lists the secondary indexes this attribute is a key of. Init fills it in.
	Indexes []string `yaml:"-"`

	separator string
}

// Index describes a secondary index.
type Index struct {
	Name         string    `yaml:"name" validate:"required"`
	Kind         IndexKind `yaml:"kind" validate:"required,oneof=GSI LSI"`
	PartitionKey string    `yaml:"partition_key" validate:"required"`
	SortKey      string    `yaml:"sort_key"`
}

// Entity describes an item type stored in a table.
type Entity struct {
	Name       string      `yaml:"name" validate:"required"`
	Table      string      `yaml:"table" validate:"required"`
	Separator  string      `yaml:"separator"`
	Attributes []Attribute `yaml:"attributes" validate:"required,min=1,dive"`
	Indexes    []Index     `yaml:"indexes" validate:"dive"`

	byName       map[string]int
	partitionKey string
	sortKey      string
}

// Lookup resolves attribute metadata by path.
type Lookup interface {
	Attribute(path string) (Attribute, bool)
}

var _ Lookup = (*Entity)(nil)

// Init validates the descriptor and builds its lookup tables. It must be
// called before the entity is used; Registry.Register calls it.
func (e *Entity) Init() error {
	if err := validateStruct(e); err != nil {
		return err
	}
	if err := validation.ValidateTableName(e.Table); err != nil {
		return err
	}
	if e.Separator == "" {
		e.Separator = DefaultSeparator
	}

	e.byName = make(map[string]int, len(e.Attributes))
	e.partitionKey, e.sortKey = "", ""
	for i := range e.Attributes {
		attr := &e.Attributes[i]
		if _, dup := e.byName[attr.Name]; dup {
			return invalid(e.Name, "duplicate attribute %q", attr.Name)
		}
		if err := validation.ValidateAttributeName(attr.Name); err != nil {
			return err
		}
		e.byName[attr.Name] = i
		attr.separator = e.Separator
		attr.Indexes = nil

		switch attr.Role {
		case RolePartitionKey:
			if e.partitionKey != "" {
				return invalid(e.Name, "more than one partition key")
			}
			e.partitionKey = attr.Name
		case RoleSortKey:
			if e.sortKey != "" {
				return invalid(e.Name, "more than one sort key")
			}
			e.sortKey = attr.Name
		}
	}
	if e.partitionKey == "" {
		return invalid(e.Name, "no partition key")
	}

	seen := make(map[string]bool, len(e.Indexes))
	for _, idx := range e.Indexes {
		if seen[idx.Name] {
			return invalid(e.Name, "duplicate index %q", idx.Name)
		}
		seen[idx.Name] = true
		if err := validation.ValidateIndexName(idx.Name); err != nil {
			return err
		}

		if idx.Kind == LSI {
			if idx.PartitionKey != e.partitionKey {
				return invalid(e.Name, "local index %q must share partition key %q", idx.Name, e.partitionKey)
			}
			if idx.SortKey == "" {
				return invalid(e.Name, "local index %q needs a sort key", idx.Name)
			}
		}
		for _, key := range []string{idx.PartitionKey, idx.SortKey} {
			if key == "" {
				continue
			}
			i, ok := e.byName[key]
			if !ok {
				return invalid(e.Name, "index %q references undeclared attribute %q", idx.Name, key)
			}
			e.Attributes[i].Indexes = append(e.Attributes[i].Indexes, idx.Name)
		}
	}
	return nil
}

// Attribute returns the declared attribute at path. Nested paths resolve only
// when declared verbatim.
func (e *Entity) Attribute(path string) (Attribute, bool) {
	i, ok := e.byName[path]
	if !ok {
		return Attribute{}, false
	}
	return e.Attributes[i], true
}

// PartitionKey returns the table partition key attribute name.
func (e *Entity) PartitionKey() string { return e.partitionKey }

// SortKey returns the table sort key attribute name, or "".
func (e *Entity) SortKey() string { return e.sortKey }

// Index returns the named secondary index.
func (e *Entity) Index(name string) (Index, bool) {
	for _, idx := range e.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// IndexNames returns every secondary index name, sorted.
func (e *Entity) IndexNames() []string {
	out := make([]string, len(e.Indexes))
	for i, idx := range e.Indexes {
		out[i] = idx.Name
	}
	sort.Strings(out)
	return out
}

// KeyNames returns the table key attribute names, partition key first.
func (e *Entity) KeyNames() []string {
	if e.sortKey == "" {
		return []string{e.partitionKey}
	}
	return []string{e.partitionKey, e.sortKey}
}

// Transform applies the prefix/suffix transform declared for path to v.
// Undeclared paths are returned unchanged.
func (e *Entity) Transform(path string, v any) any {
	attr, ok := e.Attribute(path)
	if !ok {
		return v
	}
	return attr.Wrap(v)
}

// WrapItem returns a copy of item with every declared transform applied.
func (e *Entity) WrapItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	return e.mapItem(item, Attribute.WrapAttributeValue)
}

// UnwrapItem returns a copy of item with every declared transform reversed.
func (e *Entity) UnwrapItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	return e.mapItem(item, Attribute.UnwrapAttributeValue)
}

// KeyOf extracts the table key attributes from item.
func (e *Entity) KeyOf(item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	key := make(map[string]types.AttributeValue, 2)
	for _, name := range e.KeyNames() {
		v, ok := item[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", errors.ErrMissingKey, e.Name, name)
		}
		key[name] = v
	}
	return key, nil
}

func (e *Entity) mapItem(item map[string]types.AttributeValue, fn func(Attribute, types.AttributeValue) types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if attr, ok := e.Attribute(k); ok {
			v = fn(attr, v)
		}
		out[k] = v
	}
	return out
}

func invalid(entity, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", errors.ErrInvalidEntity, entity, fmt.Sprintf(format, args...))
}

