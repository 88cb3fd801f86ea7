package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]models.EntityDefinition{
		{Name: "Project", TenantScoped: true},
		{Name: "Task", TenantScoped: true},
		{Name: "Invoice", Table: "billing_invoices", TenantScoped: true},
		{Name: "Country", TenantScoped: false},
	})
	require.NoError(t, err)
	return r
}

func TestRegistry_Lookup(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name     string
		lookup   string
		entity   string
		found    bool
		isScoped bool
	}{
		{name: "canonical", lookup: "Project", entity: "Project", found: true, isScoped: true},
		{name: "lowercase", lookup: "project", entity: "Project", found: true, isScoped: true},
		{name: "uppercase", lookup: "PROJECT", entity: "Project", found: true, isScoped: true},
		{name: "plural", lookup: "projects", entity: "Project", found: true, isScoped: true},
		{name: "plural of table name", lookup: "billing_invoice", entity: "Invoice", found: true, isScoped: true},
		{name: "physical table", lookup: "billing_invoices", entity: "Invoice", found: true, isScoped: true},
		{name: "not tenant scoped", lookup: "countries", entity: "Country", found: true, isScoped: false},
		{name: "unregistered", lookup: "ReportingNote", found: false},
		{name: "prefix of registered name", lookup: "Proj", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := r.Lookup(tt.lookup)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.entity, def.Name)
			assert.Equal(t, tt.isScoped, r.IsTenantScoped(tt.lookup))
		})
	}
}

func TestRegistry_Entities(t *testing.T) {
	r := testRegistry(t)

	entities := r.Entities()
	require.Len(t, entities, 4)
	assert.Equal(t, "Project", entities[0].Name)

	entities[0].Name = "changed"
	def, ok := r.Lookup("project")
	require.True(t, ok)
	assert.Equal(t, "Project", def.Name)
}

func TestNewRegistry_Errors(t *testing.T) {
	_, err := NewRegistry([]models.EntityDefinition{{Name: " "}})
	assert.Error(t, err)

	_, err = NewRegistry([]models.EntityDefinition{{Name: "Project"}, {Name: "projects"}})
	assert.Error(t, err)
}

func TestRegistry_Nil(t *testing.T) {
	var r *Registry
	_, ok := r.Lookup("Project")
	assert.False(t, ok)
	assert.Nil(t, r.Entities())
}
