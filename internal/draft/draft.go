package draft

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/reqlab/reqlab/internal/errdef"
)

type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyRaw
	BodyJSON
)

// Body is the draft payload. Raw text may still contain template
// placeholders and is resolved at send time; structured JSON passes through
// the engine untouched.
type Body struct {
	Kind BodyKind
	Text string
	JSON json.RawMessage
}

func RawBody(text string) Body {
	if text == "" {
		return Body{}
	}
	return Body{Kind: BodyRaw, Text: text}
}

func JSONBody(raw json.RawMessage) Body {
	if len(raw) == 0 {
		return Body{}
	}
	return Body{Kind: BodyJSON, JSON: raw}
}

func (b Body) IsEmpty() bool { return b.Kind == BodyEmpty }

// The wire shape keeps the original duck-typed form: null, a JSON string, or
// a structured value. Persisted drafts from any prior run stay readable.
func (b Body) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case BodyRaw:
		return json.Marshal(b.Text)
	case BodyJSON:
		if len(b.JSON) == 0 {
			return []byte("null"), nil
		}
		return b.JSON, nil
	default:
		return []byte("null"), nil
	}
}

func (b *Body) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*b = Body{}
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return errdef.Wrap(errdef.CodeParse, err, "decode body text")
		}
		*b = RawBody(text)
		return nil
	}
	*b = Body{Kind: BodyJSON, JSON: append(json.RawMessage(nil), trimmed...)}
	return nil
}

// Draft is the editable request description. Exactly one draft is active per
// session, owned by the execution context.
type Draft struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Params    map[string]string `json:"params"`
	Body      Body              `json:"body"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Default returns the draft used when no persisted state exists.
func Default(baseURL string) Draft {
	return Draft{
		ID:        uuid.NewString(),
		Name:      "New Request",
		URL:       baseURL + "/api",
		Method:    "GET",
		Headers:   map[string]string{},
		Params:    map[string]string{},
		CreatedAt: time.Now(),
	}
}

// Clone copies the draft including its maps so callers can hold a snapshot
// without sharing mutable state.
func (d Draft) Clone() Draft {
	out := d
	out.Headers = cloneMap(d.Headers)
	out.Params = cloneMap(d.Params)
	if len(d.Body.JSON) > 0 {
		out.Body.JSON = append(json.RawMessage(nil), d.Body.JSON...)
	}
	return out
}

// Snapshot clones the draft under a fresh identity, used for history entries
// and collection copies.
func (d Draft) Snapshot() Draft {
	out := d.Clone()
	out.ID = uuid.NewString()
	out.CreatedAt = time.Now()
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
