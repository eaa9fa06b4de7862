package model

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pay-theory/dynaquery/pkg/errors"
)

var validate = validator.New()

// document is the layout of an entity descriptor file:
//
//	entities:
//	  - name: Order
//	    table: orders
//	    attributes:
//	      - {name: pk, role: pk, prefix: ORDER}
//	      - {name: status}
//	    indexes:
//	      - {name: by-status, kind: GSI, partition_key: status}
type document struct {
	Entities []*Entity `yaml:"entities" validate:"required,min=1,dive"`
}

// LoadEntities decodes entity descriptors from YAML and initializes them.
func LoadEntities(r io.Reader) ([]*Entity, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty descriptor", errors.ErrInvalidEntity)
		}
		return nil, fmt.Errorf("failed to decode entities: %w", err)
	}
	if err := validateStruct(&doc); err != nil {
		return nil, err
	}
	for _, e := range doc.Entities {
		if err := e.Init(); err != nil {
			return nil, err
		}
	}
	return doc.Entities, nil
}

// LoadEntitiesFile reads entity descriptors from a YAML file.
func LoadEntitiesFile(path string) ([]*Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return LoadEntities(bytes.NewReader(data))
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", errors.ErrInvalidEntity, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", errors.ErrInvalidEntity, err)
}
