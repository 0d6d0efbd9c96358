package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mandalnilabja/chatgate/internal/types"
)

//go:embed models.yaml
var defaultCatalogYAML []byte

// Model types shown to clients.
const (
	ModelTypeNormal    = "normal"
	ModelTypeReasoning = "reasoning"
)

// ModelEntry describes one model exposed by the gateway.
type ModelEntry struct {
	ID            string         `yaml:"id" json:"id"`
	Label         string         `yaml:"label" json:"label,omitempty"`
	Group         string         `yaml:"group" json:"group,omitempty"`
	Family        string         `yaml:"family" json:"family"`
	UpstreamModel string         `yaml:"upstream_model" json:"upstream_model,omitempty"`
	Type          string         `yaml:"type" json:"type,omitempty"`
	MaxTokens     int            `yaml:"max_tokens" json:"max_tokens,omitempty"`
	MonthlyLimit  *float64       `yaml:"monthly_limit_usd" json:"monthly_limit_usd,omitempty"`
	Pricing       *types.Pricing `yaml:"pricing" json:"pricing,omitempty"`
}

type catalogFile struct {
	Models []ModelEntry `yaml:"models"`
}

// Catalog is the read-only per-model configuration: family, pricing and monthly limit.
// It is loaded once at startup and shared by the dispatcher, ledger and guard.
type Catalog struct {
	entries []ModelEntry
	byID    map[string]int
}

// NewCatalog builds a catalog from entries. Model ids must be unique and non-empty.
func NewCatalog(entries []ModelEntry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]ModelEntry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("model id must not be empty")
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("model %s: duplicate id", e.ID)
		}
		if e.MonthlyLimit != nil && *e.MonthlyLimit <= 0 {
			return nil, fmt.Errorf("model %s: monthly_limit_usd must be positive", e.ID)
		}
		if p := e.Pricing; p != nil && (p.InputPerMillionUSD < 0 || p.OutputPerMillionUSD < 0) {
			return nil, fmt.Errorf("model %s: pricing must not be negative", e.ID)
		}
		if e.Type != "" && e.Type != ModelTypeNormal && e.Type != ModelTypeReasoning {
			return nil, fmt.Errorf("model %s: type %q must be %q or %q", e.ID, e.Type, ModelTypeNormal, ModelTypeReasoning)
		}
		c.byID[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	return NewCatalog(f.Models)
}

// LoadCatalog reads a YAML catalog from disk.
func LoadCatalog(path string) (*Catalog, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %q: %w", absPath, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks every entry against the dispatch table. resolve returns the
// family a model id routes to. An entry without a family takes the routed one;
// an entry whose family disagrees with the route is a configuration error.
func (c *Catalog) Validate(resolve func(modelID string) (string, error)) error {
	for i := range c.entries {
		e := &c.entries[i]
		family, err := resolve(e.ID)
		if err != nil {
			return fmt.Errorf("model %s: %w", e.ID, err)
		}
		if e.Family == "" {
			e.Family = family
			continue
		}
		if e.Family != family {
			return fmt.Errorf("model %s: family %q does not match routed family %q", e.ID, e.Family, family)
		}
	}
	return nil
}

// Lookup returns the entry for a model id.
func (c *Catalog) Lookup(modelID string) (ModelEntry, bool) {
	i, ok := c.byID[modelID]
	if !ok {
		return ModelEntry{}, false
	}
	return c.entries[i], true
}

// Pricing returns the pricing of a model, if configured.
func (c *Catalog) Pricing(modelID string) (types.Pricing, bool) {
	e, ok := c.Lookup(modelID)
	if !ok || e.Pricing == nil {
		return types.Pricing{}, false
	}
	return *e.Pricing, true
}

// MonthlyLimit returns the monthly USD limit of a model, if configured.
func (c *Catalog) MonthlyLimit(modelID string) (float64, bool) {
	e, ok := c.Lookup(modelID)
	if !ok || e.MonthlyLimit == nil {
		return 0, false
	}
	return *e.MonthlyLimit, true
}

// UpstreamModel returns the upstream model name, defaulting to the id itself.
func (c *Catalog) UpstreamModel(modelID string) string {
	if e, ok := c.Lookup(modelID); ok && e.UpstreamModel != "" {
		return e.UpstreamModel
	}
	return modelID
}

// Models returns a copy of all entries in catalog order.
func (c *Catalog) Models() []ModelEntry {
	out := make([]ModelEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
