package model_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/dynaquery/pkg/errors"
	"github.com/pay-theory/dynaquery/pkg/model"
)

func orderEntity() *model.Entity {
	return &model.Entity{
		Name:  "Order",
		Table: "orders",
		Attributes: []model.Attribute{
			{Name: "pk", Role: model.RolePartitionKey, Prefix: "ORDER"},
			{Name: "sk", Role: model.RoleSortKey},
			{Name: "status", Prefix: "P", Suffix: "S"},
			{Name: "customer"},
			{Name: "created", Type: "S"},
		},
		Indexes: []model.Index{
			{Name: "by-status", Kind: model.GSI, PartitionKey: "status", SortKey: "created"},
			{Name: "by-created", Kind: model.LSI, PartitionKey: "pk", SortKey: "created"},
		},
	}
}

func TestRegisterEntity(t *testing.T) {
	registry := model.NewRegistry()
	require.NoError(t, registry.Register(orderEntity()))

	e, err := registry.Get("Order")
	require.NoError(t, err)

	assert.Equal(t, "pk", e.PartitionKey())
	assert.Equal(t, "sk", e.SortKey())
	assert.Equal(t, []string{"pk", "sk"}, e.KeyNames())
	assert.Equal(t, model.DefaultSeparator, e.Separator)
	assert.Equal(t, []string{"by-created", "by-status"}, e.IndexNames())

	created, ok := e.Attribute("created")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"by-status", "by-created"}, created.Indexes)

	attr, ok := registry.AttributeMetadata("Order", "status")
	require.True(t, ok)
	assert.Equal(t, "P", attr.Prefix)
	assert.Equal(t, []string{"by-status"}, attr.Indexes)

	_, ok = registry.AttributeMetadata("Order", "missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"Order"}, registry.Names())
	assert.Len(t, registry.ByTable("orders"), 1)
	assert.Empty(t, registry.ByTable("other"))
}

func TestRegisterErrors(t *testing.T) {
	t.Run("unknown entity", func(t *testing.T) {
		_, err := model.NewRegistry().Get("Nope")
		assert.ErrorIs(t, err, errors.ErrUnknownEntity)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		registry := model.NewRegistry()
		require.NoError(t, registry.Register(orderEntity()))
		assert.ErrorIs(t, registry.Register(orderEntity()), errors.ErrInvalidEntity)
	})

	tests := []struct {
		name   string
		mutate func(e *model.Entity)
	}{
		{"missing table", func(e *model.Entity) { e.Table = "" }},
		{"no partition key", func(e *model.Entity) { e.Attributes[0].Role = model.RoleNone }},
		{"two partition keys", func(e *model.Entity) { e.Attributes[3].Role = model.RolePartitionKey }},
		{"duplicate attribute", func(e *model.Entity) { e.Attributes[3].Name = "status" }},
		{"bad type", func(e *model.Entity) { e.Attributes[4].Type = "STRING" }},
		{"bad index kind", func(e *model.Entity) { e.Indexes[0].Kind = "OTHER" }},
		{"undeclared index key", func(e *model.Entity) { e.Indexes[0].PartitionKey = "ghost" }},
		{"local index on other partition", func(e *model.Entity) { e.Indexes[1].PartitionKey = "status" }},
		{"duplicate index", func(e *model.Entity) { e.Indexes[1].Name = "by-status" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := orderEntity()
			tt.mutate(e)
			err := model.NewRegistry().Register(e)
			assert.ErrorIs(t, err, errors.ErrInvalidEntity)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestKeyOf(t *testing.T) {
	e := orderEntity()
	require.NoError(t, e.Init())

	key, err := e.KeyOf(map[string]types.AttributeValue{
		"pk":     &types.AttributeValueMemberS{Value: "ORDER#1"},
		"sk":     &types.AttributeValueMemberS{Value: "A"},
		"status": &types.AttributeValueMemberS{Value: "x"},
	})
	require.NoError(t, err)
	assert.Len(t, key, 2)

	_, err = e.KeyOf(map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "ORDER#1"}})
	assert.ErrorIs(t, err, errors.ErrMissingKey)
}

func TestLoadEntities(t *testing.T) {
	doc := `
entities:
  - name: Order
    table: orders
    separator: "|"
    attributes:
      - {name: pk, role: pk, prefix: ORDER}
      - {name: sk, role: sk}
      - {name: status}
    indexes:
      - {name: by-status, kind: GSI, partition_key: status}
`
	entities, err := model.LoadEntities(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, entities, 1)

	e := entities[0]
	assert.Equal(t, "orders", e.Table)
	assert.Equal(t, "pk", e.PartitionKey())
	assert.Equal(t, "ORDER|1", e.Transform("pk", "1"))

	idx, ok := e.Index("by-status")
	require.True(t, ok)
	assert.Equal(t, model.GSI, idx.Kind)
}

func TestLoadEntitiesErrors(t *testing.T) {
	_, err := model.LoadEntities(strings.NewReader(""))
	assert.ErrorIs(t, err, errors.ErrInvalidEntity)

	_, err = model.LoadEntities(strings.NewReader("entities: []"))
	assert.ErrorIs(t, err, errors.ErrInvalidEntity)

	_, err = model.LoadEntities(strings.NewReader("entities:\n  - name: X\n    table: t\n    attributes:\n      - {name: a, colour: red}\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestLoadEntitiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities:\n  - name: User\n    table: users\n    attributes:\n      - {name: id, role: pk}\n"), 0o600))

	entities, err := model.LoadEntitiesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "User", entities[0].Name)

	_, err = model.LoadEntitiesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
