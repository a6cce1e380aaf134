package vars

import (
	"regexp"
	"strings"

	"github.com/reqlab/reqlab/internal/env"
)

// Provider supplies values for {{name}} placeholders.
type Provider interface {
	Resolve(name string) (string, bool)
}

var templateVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

type Resolver struct {
	providers []Provider
}

func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// Expand replaces every {{key}} token whose key resolves through a provider.
// Unresolved placeholders stay intact - a missing or disabled variable is a
// routine miss, never an error. Substituted values are not re-scanned, so
// expansion cannot recurse.
func (r *Resolver) Expand(input string) string {
	if r == nil || input == "" {
		return input
	}
	return templateVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := templateVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		name := strings.TrimSpace(sub[1])
		if name == "" {
			return match
		}
		for _, provider := range r.providers {
			if value, ok := provider.Resolve(name); ok {
				return value
			}
		}
		return match
	})
}

// ExpandMap expands every value of a string map, leaving keys untouched.
func (r *Resolver) ExpandMap(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = r.Expand(v)
	}
	return out
}

// NormalizeURL expands templates and defaults the scheme to http://. The
// result is not validated; a malformed URL surfaces as an execution failure
// downstream.
func (r *Resolver) NormalizeURL(raw string) string {
	expanded := r.Expand(raw)
	if strings.HasPrefix(expanded, "http://") || strings.HasPrefix(expanded, "https://") {
		return expanded
	}
	return "http://" + expanded
}

// EnvironmentProvider resolves against one environment's enabled variables.
// Disabled variables are invisible here so their placeholders survive
// expansion untouched.
type EnvironmentProvider struct {
	environment *env.Environment
}

func NewEnvironmentProvider(environment *env.Environment) Provider {
	return &EnvironmentProvider{environment: environment}
}

func (p *EnvironmentProvider) Resolve(name string) (string, bool) {
	if p == nil || p.environment == nil {
		return "", false
	}
	for _, variable := range p.environment.Variables {
		if variable.Key == name && variable.Enabled {
			return variable.Value, true
		}
	}
	return "", false
}

// ForEnvironment builds the resolver used for one send. A nil environment
// yields a resolver that leaves all placeholders intact.
func ForEnvironment(environment *env.Environment) *Resolver {
	if environment == nil {
		return NewResolver()
	}
	return NewResolver(NewEnvironmentProvider(environment))
}
