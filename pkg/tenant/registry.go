// Package tenant rewrites free-form query text so every tenant-scoped table it reads is
// pinned to the caller's tenant.
package tenant

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// Registry is the static set of entities the platform knows about. Names match
// case-insensitively and in singular or plural form, so "Project", "project" and
// "projects" all resolve to the same entry.
type Registry struct {
	entities []models.EntityDefinition
	byName   map[string]int
}

// NewRegistry indexes entity definitions. Names and physical table names must be unique
// across all variants.
func NewRegistry(defs []models.EntityDefinition) (*Registry, error) {
	r := &Registry{
		entities: make([]models.EntityDefinition, 0, len(defs)),
		byName:   make(map[string]int, len(defs)*3),
	}

	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			return nil, fmt.Errorf("entity registry: entity with empty name")
		}
		idx := len(r.entities)
		r.entities = append(r.entities, def)

		for _, variant := range nameVariants(def.Name, def.TableName()) {
			if prev, ok := r.byName[variant]; ok && prev != idx {
				return nil, fmt.Errorf("entity registry: %q and %q both match %q",
					r.entities[prev].Name, def.Name, variant)
			}
			r.byName[variant] = idx
		}
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for static fixtures; it panics on invalid input.
func MustNewRegistry(defs []models.EntityDefinition) *Registry {
	r, err := NewRegistry(defs)
	if err != nil {
		panic(err)
	}
	return r
}

func nameVariants(names ...string) []string {
	var variants []string
	seen := make(map[string]struct{})
	for _, name := range names {
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == "" {
			continue
		}
		for _, v := range []string{lower, inflection.Singular(lower), inflection.Plural(lower)} {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			variants = append(variants, v)
		}
	}
	return variants
}

// Lookup finds the entity a table name refers to.
func (r *Registry) Lookup(name string) (models.EntityDefinition, bool) {
	if r == nil {
		return models.EntityDefinition{}, false
	}
	idx, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return models.EntityDefinition{}, false
	}
	return r.entities[idx], true
}

// IsTenantScoped reports whether name refers to an entity carrying a tenantId column.
func (r *Registry) IsTenantScoped(name string) bool {
	def, ok := r.Lookup(name)
	return ok && def.TenantScoped
}

// Entities returns the definitions in configuration order.
func (r *Registry) Entities() []models.EntityDefinition {
	if r == nil {
		return nil
	}
	out := make([]models.EntityDefinition, len(r.entities))
	copy(out, r.entities)
	return out
}
