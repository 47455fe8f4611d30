package answer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var ErrInvalidValue = errors.New("answer must be a string or an array of strings")

// Value is a single question's answer: free text, or the selected options of a
// multi-select question in selection order.
type Value struct {
	text     string
	selected []string
	multi    bool
}

func Text(s string) Value {
	return Value{text: s}
}

func Selection(options ...string) Value {
	out := make([]string, len(options))
	copy(out, options)
	return Value{selected: out, multi: true}
}

func (v Value) IsMulti() bool { return v.multi }

// String returns the free-text answer. It is empty for selections.
func (v Value) String() string { return v.text }

func (v Value) Selected() []string {
	out := make([]string, len(v.selected))
	copy(out, v.selected)
	return out
}

func (v Value) Contains(option string) bool {
	for _, s := range v.selected {
		if s == option {
			return true
		}
	}
	return false
}

// With appends option unless it is already selected.
func (v Value) With(option string) Value {
	if v.Contains(option) {
		return Selection(v.selected...)
	}
	return Selection(append(v.Selected(), option)...)
}

// Without removes every occurrence of option.
func (v Value) Without(option string) Value {
	out := make([]string, 0, len(v.selected))
	for _, s := range v.selected {
		if s != option {
			out = append(out, s)
		}
	}
	return Value{selected: out, multi: true}
}

// Blank reports a free-text answer with no visible content. Selections are never blank.
func (v Value) Blank() bool {
	return !v.multi && strings.TrimSpace(v.text) == ""
}

func (v Value) Equal(o Value) bool {
	if v.multi != o.multi {
		return false
	}
	if !v.multi {
		return v.text == o.text
	}
	if len(v.selected) != len(o.selected) {
		return false
	}
	for i := range v.selected {
		if v.selected[i] != o.selected[i] {
			return false
		}
	}
	return true
}

// MarshalJSON writes selections as the canonical encoded array and text as a JSON string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.multi {
		return []byte(Encode(v)), nil
	}
	return json.Marshal(v.text)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ErrInvalidValue
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ErrInvalidValue
		}
		*v = Text(s)
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return ErrInvalidValue
		}
		*v = Selection(list...)
		return nil
	default:
		return ErrInvalidValue
	}
}
