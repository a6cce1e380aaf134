package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reqlab/reqlab/internal/errdef"
)

func TestExecuteSendsHeadersAndParams(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		got = r.Clone(context.Background())
		w.Header().Set("X-Server", "reqlab-test")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Execute(context.Background(), Request{
		Method:  "post",
		URL:     server.URL + "/api/insertOne?source=test",
		Headers: map[string]string{"X-Trace": "abc"},
		Params:  map[string]string{"limit": "5"},
		Body:    []byte(`{"name":"Ada"}`),
	}, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got.Method != http.MethodPost {
		t.Fatalf("unexpected method %s", got.Method)
	}
	query := got.URL.Query()
	if query.Get("source") != "test" || query.Get("limit") != "5" {
		t.Fatalf("unexpected query %q", got.URL.RawQuery)
	}
	if got.Header.Get("X-Trace") != "abc" {
		t.Fatalf("missing request header")
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected json content type, got %q", got.Header.Get("Content-Type"))
	}
	if string(gotBody) != `{"name":"Ada"}` {
		t.Fatalf("unexpected body %q", gotBody)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if resp.Headers.Get("X-Server") != "reqlab-test" {
		t.Fatalf("missing response header")
	}
	if string(resp.Body) != `{"success":true}` {
		t.Fatalf("unexpected response body %q", resp.Body)
	}
	if resp.Duration <= 0 {
		t.Fatalf("expected positive duration")
	}
}

func TestExecuteKeepsCookiesAcrossRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	first, err := client.Execute(context.Background(), Request{URL: server.URL}, Options{})
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if first.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected first status %d", first.StatusCode)
	}

	second, err := client.Execute(context.Background(), Request{URL: server.URL}, Options{})
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.StatusCode != http.StatusOK {
		t.Fatalf("expected cookie to be replayed, got status %d", second.StatusCode)
	}
}

func TestExecuteDoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/from" {
			http.Redirect(w, r, "/to", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Execute(context.Background(), Request{URL: server.URL + "/from"}, Options{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect to be returned, got %d", resp.StatusCode)
	}

	resp, err = client.Execute(
		context.Background(),
		Request{URL: server.URL + "/from"},
		Options{FollowRedirects: true},
	)
	if err != nil {
		t.Fatalf("execute follow: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected redirect to be followed, got %d", resp.StatusCode)
	}
	if resp.EffectiveURL != server.URL+"/to" {
		t.Fatalf("unexpected effective url %q", resp.EffectiveURL)
	}
}

func TestExecuteWrapsTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient()
	_, err := client.Execute(context.Background(), Request{URL: server.URL}, Options{})
	if err == nil {
		t.Fatalf("expected error for closed server")
	}
	if errdef.CodeOf(err) != errdef.CodeHTTP {
		t.Fatalf("unexpected error code %q", errdef.CodeOf(err))
	}
}

func TestExecuteHonoursContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	client := NewClient()
	_, err := client.Execute(ctx, Request{URL: server.URL}, Options{})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}
