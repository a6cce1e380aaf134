package telemetry

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrumenterRecordsRequestSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(
		Config{ServiceName: "reqlab-test", Version: "test"},
		WithSpanProcessor(recorder),
	)
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	httpReq, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodGet,
		"https://example.com/api/users?limit=5",
		nil,
	)
	if err != nil {
		t.Fatalf("build http request: %v", err)
	}

	ctx, span := inst.Start(
		context.Background(),
		RequestStart{Name: "find users", HTTPRequest: httpReq},
	)
	if ctx == nil || span == nil {
		t.Fatalf("expected span to be created")
	}

	span.End(RequestResult{StatusCode: 200})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	recorded := spans[0]
	if recorded.Name() != "find users" {
		t.Fatalf("unexpected span name %q", recorded.Name())
	}
	if recorded.Status().Code != codes.Ok {
		t.Fatalf("unexpected status %v", recorded.Status())
	}
	assertAttribute(t, recorded, "http.method", "GET")
	assertAttribute(t, recorded, "http.host", "example.com")
	assertAttribute(t, recorded, "http.target", "/api/users?limit=5")
	assertAttribute(t, recorded, "http.status_code", int64(200))
	assertAttribute(t, recorded, "reqlab.request.name", "find users")
}

func TestInstrumenterMarksFailures(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{ServiceName: "reqlab-test"}, WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	httpReq, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodPost,
		"http://localhost:5000/api/insertOne",
		nil,
	)
	if err != nil {
		t.Fatalf("build http request: %v", err)
	}

	_, span := inst.Start(context.Background(), RequestStart{HTTPRequest: httpReq})
	span.End(RequestResult{Err: errors.New("connection refused")})

	_, span = inst.Start(context.Background(), RequestStart{HTTPRequest: httpReq})
	span.End(RequestResult{StatusCode: 404})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	for i, recorded := range spans {
		if recorded.Status().Code != codes.Error {
			t.Fatalf("span %d: expected error status, got %v", i, recorded.Status())
		}
	}
	if len(spans[0].Events()) == 0 {
		t.Fatalf("expected recorded error event")
	}
}

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	inst, err := New(Config{ServiceName: "reqlab-test"})
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	if _, ok := inst.(noopInstrumenter); !ok {
		t.Fatalf("expected noop instrumenter, got %T", inst)
	}
}

func TestStartWithoutRequestIsNoop(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{ServiceName: "reqlab-test"}, WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	_, span := inst.Start(context.Background(), RequestStart{Name: "no request"})
	span.End(RequestResult{})
	if got := len(recorder.Ended()); got != 0 {
		t.Fatalf("expected 0 spans, got %d", got)
	}
}

func assertAttribute(t *testing.T, span sdktrace.ReadOnlySpan, key string, want interface{}) {
	t.Helper()
	for _, attr := range span.Attributes() {
		if string(attr.Key) != key {
			continue
		}
		switch v := want.(type) {
		case string:
			if attr.Value.AsString() == v {
				return
			}
		case int64:
			if attr.Value.AsInt64() == v {
				return
			}
		}
		t.Fatalf("attribute %s mismatch: got %v, want %v", key, attr.Value, want)
	}
	t.Fatalf("attribute %s not found", key)
}
