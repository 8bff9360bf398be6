package inference

import (
	"fmt"
	"strings"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/apperr"
)

// Default model names per task.
const (
	DefaultGenerateModel = "gemma"
	DefaultExplainModel  = "deepseek"
)

// ErrModelUnavailable is returned for a model the catalog does not serve.
var ErrModelUnavailable = apperr.New(apperr.ErrUpstream, "model not available")

// Model is one servable model.
type Model struct {
	Name     string
	ID       string
	Family   string
	Endpoint string
}

// Catalog maps public model names to their serving details.
type Catalog struct {
	models map[string]Model
	order  []string
}

// NewCatalog builds a catalog from configuration. Entries without an
// endpoint are served from serverURL. A missing family is guessed from the
// name.
func NewCatalog(entries []config.ModelConfig, serverURL string) *Catalog {
	c := &Catalog{models: make(map[string]Model, len(entries))}
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		m := Model{
			Name:     name,
			ID:       e.ID,
			Family:   strings.ToLower(strings.TrimSpace(e.Family)),
			Endpoint: strings.TrimRight(strings.TrimSpace(e.Endpoint), "/"),
		}
		if m.Family == "" {
			m.Family = guessFamily(name)
		}
		if m.Endpoint == "" {
			m.Endpoint = strings.TrimRight(serverURL, "/")
		}
		if _, dup := c.models[name]; !dup {
			c.order = append(c.order, name)
		}
		c.models[name] = m
	}
	return c
}

func guessFamily(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "gemma"):
		return FamilyGemma
	case strings.HasPrefix(lower, "deepseek"):
		return FamilyDeepSeek
	case strings.HasPrefix(lower, "phi"):
		return FamilyPhi
	default:
		return FamilyPlain
	}
}

// Lookup returns the model registered under name.
func (c *Catalog) Lookup(name string) (Model, error) {
	m, ok := c.models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrModelUnavailable, name)
	}
	return m, nil
}

// Names lists the catalog in configuration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}
