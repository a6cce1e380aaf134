package telemetry

import (
	"strings"
	"time"

	"github.com/reqlab/reqlab/internal/errdef"
)

const (
	envEndpoint    = "REQLAB_OTEL_ENDPOINT"
	envInsecure    = "REQLAB_OTEL_INSECURE"
	envService     = "REQLAB_OTEL_SERVICE"
	envDialTimeout = "REQLAB_OTEL_DIAL_TIMEOUT"
	envHeaders     = "REQLAB_OTEL_HEADERS"

	defaultServiceName = "reqlab"
)

type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
	Headers     map[string]string
}

// Enabled reports whether spans should be exported at all. An empty endpoint
// keeps the no-op instrumenter.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func ConfigFromEnv(getenv func(string) string) Config {
	cfg := Config{
		Endpoint:    strings.TrimSpace(getenv(envEndpoint)),
		ServiceName: strings.TrimSpace(getenv(envService)),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	switch strings.ToLower(strings.TrimSpace(getenv(envInsecure))) {
	case "1", "true", "yes":
		cfg.Insecure = true
	}
	if raw := strings.TrimSpace(getenv(envDialTimeout)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.DialTimeout = d
		}
	}
	if headers, err := ParseHeaders(getenv(envHeaders)); err == nil {
		cfg.Headers = headers
	}
	return cfg
}

// ParseHeaders parses "k1=v1, k2=v2" into a map; a blank input yields nil.
func ParseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, "=")
		if idx < 0 {
			return nil, errdef.New(errdef.CodeParse, "header %q is not key=value", pair)
		}
		key := strings.TrimSpace(pair[:idx])
		if key == "" {
			return nil, errdef.New(errdef.CodeParse, "header %q has an empty key", pair)
		}
		headers[key] = strings.TrimSpace(pair[idx+1:])
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}
