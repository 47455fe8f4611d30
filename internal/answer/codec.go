package answer

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
)

// Type is the declared kind of a question. It decides how a stored response is decoded.
type Type string

const (
	MultiSelect Type = "mcq"
	FreeText    Type = "input"
)

func (t Type) Valid() bool {
	return t == MultiSelect || t == FreeText
}

// Codec converts answers between their in-memory form and the flat string stored
// per question. Encode always produces the canonical form; Decode also accepts the
// legacy comma-joined form.
type Codec interface {
	Encode(v Value) string
	Decode(raw string) []string
}

type jsonCodec struct {
	log logrus.FieldLogger
}

// NewCodec returns the canonical JSON-array codec. Legacy decodes are reported on log;
// a nil logger falls back to the logrus standard logger.
func NewCodec(log logrus.FieldLogger) Codec {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &jsonCodec{log: log}
}

var defaultCodec = NewCodec(nil)

// Encode uses the default codec.
func Encode(v Value) string { return defaultCodec.Encode(v) }

// Decode uses the default codec.
func Decode(raw string) []string { return defaultCodec.Decode(raw) }

func (c *jsonCodec) Encode(v Value) string {
	if !v.multi {
		return v.text
	}
	selected := v.selected
	if selected == nil {
		selected = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(selected); err != nil {
		// []string always marshals
		return "[]"
	}
	return strings.TrimSpace(buf.String())
}

func (c *jsonCodec) Decode(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{}
	}

	if out, ok := decodeStructured(trimmed); ok {
		return out
	}

	c.log.WithField("raw_len", len(raw)).Warn("answer decoded from legacy comma-separated form")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func decodeStructured(raw string) ([]string, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}

	switch t := v.(type) {
	case nil:
		return []string{}, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, it := range t {
			out = append(out, stringify(it))
		}
		return out, true
	default:
		return []string{stringify(t)}, true
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	}
}

// DecodeFor dispatches on the declared question type. Free-text responses are
// returned whole, never split.
func DecodeFor(c Codec, t Type, raw string) []string {
	if t == MultiSelect {
		return c.Decode(raw)
	}
	if raw == "" {
		return []string{}
	}
	return []string{raw}
}

// Hydrate turns a stored response back into an editable Value.
func Hydrate(c Codec, t Type, raw string) Value {
	if t == MultiSelect {
		return Selection(c.Decode(raw)...)
	}
	return Text(raw)
}

// Format renders a stored response for display.
func Format(c Codec, t Type, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "-"
	}
	if t != MultiSelect {
		return raw
	}
	return strings.Join(c.Decode(raw), ", ")
}
