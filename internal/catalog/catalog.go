package catalog

import (
	_ "embed"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/reqlab/reqlab/internal/errdef"
)

//go:embed endpoints.yaml
var endpointsYAML []byte

// FieldSpec describes one parameter or body field of a demo endpoint. Used by
// the UI for form hints only; the engine never validates against it.
type FieldSpec struct {
	Name        string      `yaml:"name"        json:"name"`
	Type        string      `yaml:"type"        json:"type"`
	Required    bool        `yaml:"required"    json:"required"`
	Description string      `yaml:"description" json:"description"`
	Default     interface{} `yaml:"default,omitempty" json:"defaultValue,omitempty"`
}

type EndpointDefinition struct {
	ID              string      `yaml:"-"               json:"id"`
	Name            string      `yaml:"name"            json:"name"`
	Path            string      `yaml:"path"            json:"path"`
	Method          string      `yaml:"method"          json:"method"`
	Description     string      `yaml:"description"     json:"description"`
	Category        string      `yaml:"category"        json:"category"`
	Params          []FieldSpec `yaml:"params,omitempty" json:"params,omitempty"`
	Body            []FieldSpec `yaml:"body,omitempty"   json:"body,omitempty"`
	ExampleRequest  interface{} `yaml:"exampleRequest"  json:"exampleRequest"`
	ExampleResponse interface{} `yaml:"exampleResponse" json:"exampleResponse"`
}

// Category keeps endpoints in declaration order; categories appear in
// first-seen order so grouping is stable across runs.
type Category struct {
	Name      string
	Endpoints []EndpointDefinition
}

type Catalog struct {
	endpoints []EndpointDefinition
	byID      map[string]int
}

// Load parses the embedded endpoint data and assigns each definition a fresh
// id. Definitions are immutable after this point.
func Load() (*Catalog, error) {
	var endpoints []EndpointDefinition
	if err := yaml.Unmarshal(endpointsYAML, &endpoints); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "parse endpoint catalog")
	}

	byID := make(map[string]int, len(endpoints))
	for i := range endpoints {
		endpoints[i].ID = uuid.NewString()
		byID[endpoints[i].ID] = i
	}
	return &Catalog{endpoints: endpoints, byID: byID}, nil
}

func (c *Catalog) Endpoints() []EndpointDefinition {
	out := make([]EndpointDefinition, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

func (c *Catalog) ByCategory() []Category {
	index := make(map[string]int)
	var groups []Category
	for _, ep := range c.endpoints {
		i, ok := index[ep.Category]
		if !ok {
			i = len(groups)
			index[ep.Category] = i
			groups = append(groups, Category{Name: ep.Category})
		}
		groups[i].Endpoints = append(groups[i].Endpoints, ep)
	}
	return groups
}

// ByID reports ok=false on a miss; absence is routine, not an error.
func (c *Catalog) ByID(id string) (EndpointDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return EndpointDefinition{}, false
	}
	return c.endpoints[i], true
}

// ByName returns the first definition with a matching name.
func (c *Catalog) ByName(name string) (EndpointDefinition, bool) {
	for _, ep := range c.endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EndpointDefinition{}, false
}
