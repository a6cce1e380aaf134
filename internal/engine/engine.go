package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/reqlab/reqlab/internal/draft"
	"github.com/reqlab/reqlab/internal/env"
	"github.com/reqlab/reqlab/internal/errdef"
	"github.com/reqlab/reqlab/internal/history"
	"github.com/reqlab/reqlab/internal/httpclient"
	"github.com/reqlab/reqlab/internal/notify"
	"github.com/reqlab/reqlab/internal/vars"
)

// ErrInFlight is returned when a send is issued for a draft that already has
// one in flight.
var ErrInFlight = errdef.New(errdef.CodeHTTP, "request already in flight")

// Result is the uniform outcome of a send. Data holds the decoded response
// payload when the body is valid JSON, otherwise the raw text. Time is
// wall-clock milliseconds, Size the byte length of the serialized payload.
type Result struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Data       interface{}       `json:"data"`
	Headers    map[string]string `json:"headers"`
	Time       int64             `json:"time"`
	Size       int               `json:"size"`
}

type Session struct {
	client   *httpclient.Client
	envs     *env.Store
	history  *history.Store
	notifier notify.Notifier
	opts     httpclient.Options

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	loading  bool
	last     *Result
}

func NewSession(
	client *httpclient.Client,
	envs *env.Store,
	hist *history.Store,
	notifier notify.Notifier,
	opts httpclient.Options,
) *Session {
	if client == nil {
		client = httpclient.NewClient()
	}
	if notifier == nil {
		notifier = notify.Noop()
	}
	return &Session{
		client:   client,
		envs:     envs,
		history:  hist,
		notifier: notifier,
		opts:     opts,
		inflight: make(map[string]context.CancelFunc),
	}
}

// Send executes the draft against its resolved URL. Exactly one send per draft
// may be in flight; a second concurrent call returns ErrInFlight. Transport
// and server failures are folded into the returned Result, cancellation and
// the guard are the only error returns.
func (s *Session) Send(ctx context.Context, d draft.Draft) (*Result, error) {
	sendCtx, err := s.begin(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	defer s.finish(d.ID)

	resolver := s.resolver()
	req := httpclient.Request{
		Name:    d.Name,
		Method:  d.Method,
		URL:     resolver.NormalizeURL(d.URL),
		Headers: resolver.ExpandMap(d.Headers),
		Params:  resolver.ExpandMap(d.Params),
	}

	body, err := resolveBody(resolver, d.Body)
	if err != nil {
		result := failureResult(err)
		s.store(result)
		s.notifier.Errorf("request failed: %s", errdef.Message(err))
		return result, nil
	}
	req.Body = body

	resp, err := s.client.Execute(sendCtx, req, s.opts)
	if err != nil {
		if cancelled(sendCtx, err) {
			return nil, context.Canceled
		}
		result := failureResult(err)
		s.store(result)
		s.notifier.Errorf("request failed: %s", errdef.Message(err))
		return result, nil
	}

	result := buildResult(resp)
	s.store(result)

	if resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode == http.StatusForbidden {
			s.notifier.Errorf("request forbidden (403): check CORS policy or credentials")
		} else {
			s.notifier.Errorf("request failed with status %d", resp.StatusCode)
		}
		return result, nil
	}

	if s.history != nil {
		s.history.Push(d.Snapshot())
	}
	s.notifier.Successf("%s %s completed in %dms", req.Method, req.URL, result.Time)
	return result, nil
}

// Cancel aborts the in-flight send for the given draft, if any.
func (s *Session) Cancel(draftID string) {
	s.mu.Lock()
	cancel := s.inflight[draftID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastResult returns the outcome of the most recently completed send, nil
// before the first completion.
func (s *Session) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	copied := *s.last
	return &copied
}

func (s *Session) begin(ctx context.Context, draftID string) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[draftID]; busy {
		return nil, ErrInFlight
	}
	sendCtx, cancel := context.WithCancel(ctx)
	s.inflight[draftID] = cancel
	s.loading = true
	return sendCtx, nil
}

func (s *Session) finish(draftID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel := s.inflight[draftID]; cancel != nil {
		cancel()
	}
	delete(s.inflight, draftID)
	s.loading = len(s.inflight) > 0
}

func (s *Session) store(result *Result) {
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
}

func (s *Session) resolver() *vars.Resolver {
	if s.envs == nil {
		return vars.ForEnvironment(nil)
	}
	return vars.ForEnvironment(s.envs.Active())
}

func resolveBody(resolver *vars.Resolver, body draft.Body) ([]byte, error) {
	switch body.Kind {
	case draft.BodyEmpty:
		return nil, nil
	case draft.BodyRaw:
		resolved := resolver.Expand(body.Text)
		if strings.TrimSpace(resolved) == "" {
			return nil, nil
		}
		// Bad JSON still goes on the wire as text, the server decides.
		return []byte(resolved), nil
	case draft.BodyJSON:
		if len(body.JSON) == 0 {
			return nil, nil
		}
		return append([]byte(nil), body.JSON...), nil
	default:
		return nil, nil
	}
}

func buildResult(resp *httpclient.Response) *Result {
	milliseconds := resp.Duration.Milliseconds()
	if milliseconds < 0 {
		milliseconds = 0
	}

	var data interface{}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &data); err != nil {
			data = string(resp.Body)
		}
	}

	return &Result{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Data:       data,
		Headers:    flattenHeaders(resp.Headers),
		Time:       milliseconds,
		Size:       len(resp.Body),
	}
}

func failureResult(err error) *Result {
	return &Result{
		Status:     http.StatusInternalServerError,
		StatusText: "Error",
		Data:       map[string]interface{}{"error": errdef.Message(err)},
		Headers:    map[string]string{},
		Time:       0,
		Size:       0,
	}
}

func cancelled(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled)
}

func statusText(resp *httpclient.Response) string {
	text := resp.Status
	if idx := strings.IndexByte(text, ' '); idx >= 0 {
		text = text[idx+1:]
	}
	if strings.TrimSpace(text) == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ", ")
	}
	return flat
}
