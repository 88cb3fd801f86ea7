package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// RegistryFileVersion is the only registry file layout understood.
const RegistryFileVersion = 1

type registryFile struct {
	Version  int                       `yaml:"version"`
	Entities []models.EntityDefinition `yaml:"entities"`
}

// LoadEntities reads a versioned entity registry file:
//
//	version: 1
//	entities:
//	  - name: Project
//	    tenant_scoped: true
//	  - name: Country
//	    table: ref.countries
func LoadEntities(path string) ([]models.EntityDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity registry: %w", err)
	}
	return ParseEntities(data)
}

// ParseEntities decodes registry file content.
func ParseEntities(data []byte) ([]models.EntityDefinition, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse entity registry: %w", err)
	}
	if file.Version != RegistryFileVersion {
		return nil, fmt.Errorf("unsupported entity registry version %d (want %d)", file.Version, RegistryFileVersion)
	}
	return file.Entities, nil
}
