package patterns

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var (
	ErrCatalogueMissing = errors.New("pattern catalogue not found")
	ErrCatalogueInvalid = errors.New("invalid pattern catalogue")
)

// Catalogue is the set of patterns available for combination analysis.
type Catalogue struct {
	Version  string    `json:"version" yaml:"version"`
	Patterns []Pattern `json:"patterns" yaml:"patterns"`
}

const catalogueSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["patterns"],
  "properties": {
    "version": {"type": "string"},
    "patterns": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "category": {"type": "string"},
          "type": {"type": "string"},
          "status": {"type": "string"},
          "targets": {"type": "array", "items": {"type": "string"}},
          "dynamic_content": {"type": "boolean"},
          "performance": {
            "type": "object",
            "properties": {
              "average_lift": {"type": ["number", "null"]}
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("catalogue.schema.json", catalogueSchema)

// LoadCatalogue reads a JSON or YAML catalogue (chosen by extension). A
// missing file is an error wrapping ErrCatalogueMissing, never an empty
// catalogue.
func LoadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCatalogueMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON validates and decodes a JSON catalogue.
func ParseJSON(data []byte) (*Catalogue, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogueInvalid, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogueInvalid, err)
	}

	var cat Catalogue
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogueInvalid, err)
	}
	if err := cat.checkUnique(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// ParseYAML converts a YAML catalogue to JSON so both formats go through the
// same schema.
func ParseYAML(data []byte) (*Catalogue, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogueInvalid, err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogueInvalid, err)
	}
	return ParseJSON(asJSON)
}

func (c *Catalogue) checkUnique() error {
	seen := make(map[string]bool, len(c.Patterns))
	for _, p := range c.Patterns {
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate pattern id %q", ErrCatalogueInvalid, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// Eligible returns the patterns open to combination analysis, in catalogue
// order.
func (c *Catalogue) Eligible(productionOnly bool) []Pattern {
	var out []Pattern
	for _, p := range c.Patterns {
		if productionOnly && !p.IsProduction() {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (c *Catalogue) Lookup(id string) (Pattern, bool) {
	for _, p := range c.Patterns {
		if p.ID == id {
			return p, true
		}
	}
	return Pattern{}, false
}
