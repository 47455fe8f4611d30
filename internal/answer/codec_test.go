package answer

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "json array", raw: `["a","b"]`, want: []string{"a", "b"}},
		{name: "json array keeps order", raw: `["Longevity benefits","Improve blood pressure"]`, want: []string{"Longevity benefits", "Improve blood pressure"}},
		{name: "empty json array", raw: `[]`, want: []string{}},
		{name: "comma fallback trims", raw: "a, b, c", want: []string{"a", "b", "c"}},
		{name: "single legacy value", raw: "Plant-based", want: []string{"Plant-based"}},
		{name: "legacy keeps empty elements", raw: "a,,b", want: []string{"a", "", "b"}},
		{name: "empty", raw: "", want: []string{}},
		{name: "blank", raw: "   ", want: []string{}},
		{name: "json null", raw: "null", want: []string{}},
		{name: "json string", raw: `"Noom"`, want: []string{"Noom"}},
		{name: "json number", raw: "42", want: []string{"42"}},
		{name: "json bool", raw: "true", want: []string{"true"}},
		{name: "json object", raw: `{"a":1}`, want: []string{`{"a":1}`}},
		{name: "mixed array stringified", raw: `["x",1,true,null]`, want: []string{"x", "1", "true", ""}},
		{name: "truncated json falls back", raw: `["a","b"`, want: []string{`["a"`, `"b"`}},
		{name: "trailing data falls back", raw: `["a"] ["b"]`, want: []string{`["a"] ["b"]`}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Decode(tc.raw)
			if got == nil {
				t.Fatalf("decode returned nil slice")
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Decode(%q) got=%q want=%q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{name: "free text identity", in: Text("nothing else"), want: "nothing else"},
		{name: "free text keeps commas", in: Text("a, b"), want: "a, b"},
		{name: "selection", in: Selection("Improve blood pressure", "Longevity benefits"), want: `["Improve blood pressure","Longevity benefits"]`},
		{name: "empty selection", in: Selection(), want: `[]`},
		{name: "zero selection", in: Value{multi: true}, want: `[]`},
		{name: "html not escaped away", in: Selection("<5 lbs"), want: `["<5 lbs"]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Encode(tc.in); got != tc.want {
				t.Fatalf("Encode got=%s want=%s", got, tc.want)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := [][]string{
		{},
		{"a"},
		{"a", "b"},
		{"b", "a"},
		{"Losing 1-15 pounds", "Not sure, I just need to lose weight"},
		{`quote " inside`, `back\slash`},
		{" padded "},
		{"dup", "dup"},
	}

	for _, v := range values {
		got := Decode(Encode(Selection(v...)))
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("round trip of %q got=%q", v, got)
		}
	}
}

func TestDecodeLogsLegacyPath(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	c := NewCodec(logger)

	c.Decode(`["a"]`)
	if len(hook.Entries) != 0 {
		t.Fatalf("canonical decode should not log, got %d entries", len(hook.Entries))
	}

	c.Decode("a, b")
	if len(hook.Entries) != 1 {
		t.Fatalf("expected one legacy log entry, got %d", len(hook.Entries))
	}
	if hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", hook.LastEntry().Level)
	}
}

func TestDecodeForUsesDeclaredType(t *testing.T) {
	c := NewCodec(nil)

	got := DecodeFor(c, FreeText, "Select all, that apply")
	if !reflect.DeepEqual(got, []string{"Select all, that apply"}) {
		t.Fatalf("free text must not be split, got %q", got)
	}

	got = DecodeFor(c, MultiSelect, `["Keto or low carb","Noom"]`)
	if !reflect.DeepEqual(got, []string{"Keto or low carb", "Noom"}) {
		t.Fatalf("unexpected mcq decode %q", got)
	}

	if got := DecodeFor(c, FreeText, ""); len(got) != 0 {
		t.Fatalf("expected empty free-text decode, got %q", got)
	}
}

func TestFormat(t *testing.T) {
	c := NewCodec(nil)
	if got := Format(c, MultiSelect, ""); got != "-" {
		t.Fatalf("expected '-', got %q", got)
	}
	if got := Format(c, MultiSelect, `["a","b"]`); got != "a, b" {
		t.Fatalf("expected joined mcq, got %q", got)
	}
	if got := Format(c, FreeText, "120 lbs"); got != "120 lbs" {
		t.Fatalf("expected raw text, got %q", got)
	}
}

func TestHydrate(t *testing.T) {
	c := NewCodec(nil)
	v := Hydrate(c, MultiSelect, `["Noom","Alpha"]`)
	if !v.IsMulti() || !reflect.DeepEqual(v.Selected(), []string{"Noom", "Alpha"}) {
		t.Fatalf("unexpected hydrated selection %+v", v)
	}
	v = Hydrate(c, FreeText, "150")
	if v.IsMulti() || v.String() != "150" {
		t.Fatalf("unexpected hydrated text %+v", v)
	}
}

func TestValueJSON(t *testing.T) {
	body := map[int64]Value{
		1: Selection("Improve blood pressure", "Longevity benefits"),
		2: Text("nothing else"),
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"1":["Improve blood pressure","Longevity benefits"],"2":"nothing else"}`
	if string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}

	var back map[int64]Value
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for id, v := range body {
		if !back[id].Equal(v) {
			t.Fatalf("question %d mismatch got=%+v want=%+v", id, back[id], v)
		}
	}

	var bad Value
	if err := json.Unmarshal([]byte(`12`), &bad); err == nil {
		t.Fatalf("expected error for number answer")
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &bad); err == nil {
		t.Fatalf("expected error for non-string selection")
	}
}

func TestValueToggle(t *testing.T) {
	v := Selection()
	v = v.With("a").With("b").With("a")
	if !reflect.DeepEqual(v.Selected(), []string{"a", "b"}) {
		t.Fatalf("with should not duplicate, got %q", v.Selected())
	}
	v = v.Without("a")
	if !reflect.DeepEqual(v.Selected(), []string{"b"}) {
		t.Fatalf("without failed, got %q", v.Selected())
	}
	if Selection().Blank() {
		t.Fatalf("empty selection is not blank")
	}
	if !Text("  ").Blank() {
		t.Fatalf("whitespace text should be blank")
	}
}
