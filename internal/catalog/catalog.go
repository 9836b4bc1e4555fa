// Package catalog loads the read-only model catalog. Models are owned by an
// external configuration collaborator; this core only reads them.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModel indicates a model ID not present (or not active) in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// Model describes one generation model and its billing parameters.
type Model struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"`
	RemoteID      string `yaml:"remote_id"`
	RatePerBlock  int    `yaml:"rate"`           // credits per started 100-token block
	MaxTokens     int    `yaml:"max_tokens"`     // generation budget per turn
	ContextTokens int    `yaml:"context_tokens"` // context window budget
	Active        bool   `yaml:"active"`
}

// Catalog is an immutable set of models keyed by ID.
type Catalog struct {
	models map[string]Model
	order  []string
}

type catalogFile struct {
	Models []Model `yaml:"models"`
}

// Load reads the catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw YAML.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{models: make(map[string]Model, len(file.Models))}
	for _, m := range file.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("parse catalog: model with empty id")
		}
		if m.RatePerBlock <= 0 || m.MaxTokens <= 0 || m.ContextTokens <= 0 {
			return nil, fmt.Errorf("parse catalog: model %q has non-positive billing parameters", m.ID)
		}
		if _, dup := c.models[m.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate model %q", m.ID)
		}
		c.models[m.ID] = m
		c.order = append(c.order, m.ID)
	}
	return c, nil
}

// Get returns an active model by ID, or ErrUnknownModel.
func (c *Catalog) Get(id string) (Model, error) {
	m, ok := c.models[id]
	if !ok || !m.Active {
		return Model{}, fmt.Errorf("model %q: %w", id, ErrUnknownModel)
	}
	return m, nil
}

// List returns all active models in file order.
func (c *Catalog) List() []Model {
	out := make([]Model, 0, len(c.order))
	for _, id := range c.order {
		if m := c.models[id]; m.Active {
			out = append(out, m)
		}
	}
	return out
}
