package vars

import (
	"testing"

	"github.com/reqlab/reqlab/internal/env"
)

func testEnvironment() *env.Environment {
	return &env.Environment{
		ID:   "env-1",
		Name: "test",
		Variables: []env.Variable{
			{Key: "base", Value: "api.example.com", Enabled: true},
			{Key: "token", Value: "abc123", Enabled: true},
			{Key: "secret", Value: "hidden", Enabled: false},
		},
		IsActive: true,
	}
}

func TestExpandSubstitutesEnabledVariables(t *testing.T) {
	t.Parallel()

	resolver := ForEnvironment(testEnvironment())
	got := resolver.Expand("prefix {{token}} suffix")
	if got != "prefix abc123 suffix" {
		t.Fatalf("unexpected expansion %q", got)
	}

	got = resolver.Expand("{{base}}/v1?t={{token}}&t2={{token}}")
	if got != "api.example.com/v1?t=abc123&t2=abc123" {
		t.Fatalf("expected global replacement, got %q", got)
	}
}

func TestExpandLeavesDisabledAndUnknownIntact(t *testing.T) {
	t.Parallel()

	resolver := ForEnvironment(testEnvironment())
	if got := resolver.Expand("{{secret}}"); got != "{{secret}}" {
		t.Fatalf("disabled variable must stay intact, got %q", got)
	}
	if got := resolver.Expand("{{missing}}"); got != "{{missing}}" {
		t.Fatalf("unknown variable must stay intact, got %q", got)
	}
}

func TestExpandWithoutEnvironmentIsIdentity(t *testing.T) {
	t.Parallel()

	resolver := ForEnvironment(nil)
	input := "{{base}}/api"
	if got := resolver.Expand(input); got != input {
		t.Fatalf("expected identity without environment, got %q", got)
	}
	if got := resolver.Expand(""); got != "" {
		t.Fatalf("expected empty passthrough, got %q", got)
	}
}

func TestExpandDoesNotRecurse(t *testing.T) {
	t.Parallel()

	environment := &env.Environment{
		Variables: []env.Variable{
			{Key: "a", Value: "{{b}}", Enabled: true},
			{Key: "b", Value: "final", Enabled: true},
		},
	}
	resolver := ForEnvironment(environment)
	if got := resolver.Expand("{{a}}"); got != "{{b}}" {
		t.Fatalf("expected single-pass expansion, got %q", got)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	resolver := ForEnvironment(testEnvironment())
	cases := map[string]string{
		"example.com/api":      "http://example.com/api",
		"https://x":            "https://x",
		"http://already":       "http://already",
		"{{base}}/api":         "http://api.example.com/api",
		"https://{{base}}/api": "https://api.example.com/api",
	}
	for input, want := range cases {
		if got := resolver.NormalizeURL(input); got != want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExpandMap(t *testing.T) {
	t.Parallel()

	resolver := ForEnvironment(testEnvironment())
	got := resolver.ExpandMap(map[string]string{
		"Authorization": "Bearer {{token}}",
		"X-Plain":       "value",
	})
	if got["Authorization"] != "Bearer abc123" {
		t.Fatalf("unexpected header expansion %q", got["Authorization"])
	}
	if got["X-Plain"] != "value" {
		t.Fatalf("unexpected plain value %q", got["X-Plain"])
	}
}
