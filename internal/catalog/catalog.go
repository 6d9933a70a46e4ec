// Package catalog provides the static committee reference table. The table is
// loaded once from a versioned YAML definition and never mutated afterwards.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"prodigymun/pkg/domain"

	"gopkg.in/yaml.v3"
)

//go:embed committees.yaml
var defaultDefinition []byte

type definition struct {
	Version    int                `yaml:"version"`
	Committees []domain.Committee `yaml:"committees"`
}

// Catalog is an immutable, ordered committee table.
type Catalog struct {
	version    int
	committees []domain.Committee
	byID       map[string]int
}

// Parse builds a catalog from a YAML definition. Ids must be unique and
// non-empty and every committee must carry a known category.
func Parse(data []byte) (*Catalog, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse committee catalog: %w", err)
	}
	if def.Version <= 0 {
		return nil, fmt.Errorf("committee catalog: missing version")
	}
	c := &Catalog{
		version:    def.Version,
		committees: make([]domain.Committee, 0, len(def.Committees)),
		byID:       make(map[string]int, len(def.Committees)),
	}
	for i, committee := range def.Committees {
		committee.ID = strings.TrimSpace(committee.ID)
		if committee.ID == "" {
			return nil, fmt.Errorf("committee catalog: entry %d has empty id", i)
		}
		if _, dup := c.byID[committee.ID]; dup {
			return nil, fmt.Errorf("committee catalog: duplicate id %q", committee.ID)
		}
		category, err := domain.ParseCategory(string(committee.Category))
		if err != nil {
			return nil, fmt.Errorf("committee catalog: %s: %w", committee.ID, err)
		}
		committee.Category = category
		c.byID[committee.ID] = len(c.committees)
		c.committees = append(c.committees, committee)
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. The embedded definition is part of the
// binary, so a parse failure is a build defect and panics.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultDefinition)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Version returns the definition version.
func (c *Catalog) Version() int { return c.version }

// Get returns the committee with id. Unknown ids are not an error: callers
// fall back to displaying the raw id.
func (c *Catalog) Get(id string) (domain.Committee, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return domain.Committee{}, false
	}
	return c.committees[idx], true
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// DisplayName returns the committee name or the raw id when unknown.
func (c *Catalog) DisplayName(id string) string {
	if committee, ok := c.Get(id); ok {
		return committee.Name
	}
	return id
}

// All returns every committee in definition order.
func (c *Catalog) All() []domain.Committee {
	return slices.Clone(c.committees)
}

// FilterByCategory returns the committees of category in definition order.
func (c *Catalog) FilterByCategory(category domain.Category) []domain.Committee {
	out := make([]domain.Committee, 0, len(c.committees))
	for _, committee := range c.committees {
		if committee.Category == category {
			out = append(out, committee)
		}
	}
	return out
}

// IDs returns committee ids of the given categories (all when none given).
func (c *Catalog) IDs(categories ...domain.Category) []string {
	out := make([]string, 0, len(c.committees))
	for _, committee := range c.committees {
		if len(categories) == 0 || slices.Contains(categories, committee.Category) {
			out = append(out, committee.ID)
		}
	}
	return out
}
