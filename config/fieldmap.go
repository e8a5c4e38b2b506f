package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/sage/pkg/models"
)

// fieldMappingFile is the on-disk field mapping, YAML:
//
//	include_defaults: true
//	fields:
//	  company_name: Account.Name
//
// or the same keys in TOML. External names may be JMESPath expressions.
type fieldMappingFile struct {
	IncludeDefaults bool              `yaml:"include_defaults" toml:"include_defaults"`
	Fields          map[string]string `yaml:"fields" toml:"fields"`
}

// LoadFieldMapping reads the mapping at path once. An empty path yields the built-in
// lead mapping. Unknown local field names are rejected.
func LoadFieldMapping(path string) (models.FieldMapping, error) {
	if path == "" {
		return models.DefaultLeadFieldMapping(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.FieldMapping{}, fmt.Errorf("failed to read field mapping %s: %w", path, err)
	}

	var file fieldMappingFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &file)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		return models.FieldMapping{}, fmt.Errorf("unsupported field mapping format %q", filepath.Ext(path))
	}
	if err != nil {
		return models.FieldMapping{}, fmt.Errorf("failed to parse field mapping %s: %w", path, err)
	}

	entries := make(map[string]string, len(file.Fields))
	if file.IncludeDefaults {
		defaults := models.DefaultLeadFieldMapping()
		for _, local := range defaults.LocalFields() {
			entries[local], _ = defaults.External(local)
		}
	}

	var scratch models.Lead
	for local, external := range file.Fields {
		if err := scratch.SetField(local, nil); err != nil {
			return models.FieldMapping{}, fmt.Errorf("field mapping %s: %w", path, err)
		}
		if strings.TrimSpace(external) == "" {
			return models.FieldMapping{}, fmt.Errorf("field mapping %s: %s has no external field", path, local)
		}
		entries[local] = strings.TrimSpace(external)
	}

	mapping := models.NewFieldMapping(entries)
	if mapping.Len() == 0 {
		return models.FieldMapping{}, fmt.Errorf("field mapping %s maps no fields", path)
	}
	return mapping, nil
}
