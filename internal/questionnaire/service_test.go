package questionnaire

import (
	"encoding/json"
	"errors"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

func catalogQuestion(t *testing.T, id int64) Question {
	t.Helper()
	for _, q := range mustDefaultCatalog(t).Questions {
		if q.ID == id {
			return q
		}
	}
	t.Fatalf("question %d not in default catalog", id)
	return Question{}
}

func TestCanonicalAnswer(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	svc := NewService(nil, logger)

	tests := []struct {
		name     string
		question int64
		raw      string
		want     string
		wantErr  bool
	}{
		{name: "mcq array", question: 1, raw: `["Longevity benefits","Improve blood pressure"]`, want: `["Longevity benefits","Improve blood pressure"]`},
		{name: "mcq empty array", question: 1, raw: `[]`, want: `[]`},
		{name: "mcq option with comma", question: 5, raw: `["Not sure, I just need to lose weight"]`, want: `["Not sure, I just need to lose weight"]`},
		{name: "mcq legacy string", question: 1, raw: `"Improve blood pressure, Longevity benefits"`, want: `["Improve blood pressure","Longevity benefits"]`},
		{name: "mcq legacy encoded array", question: 4, raw: `"[\"Noom\",\"Found\"]"`, want: `["Noom","Found"]`},
		{name: "mcq legacy empty string", question: 4, raw: `""`, want: `[]`},
		{name: "mcq legacy splits comma option", question: 5, raw: `"Not sure, I just need to lose weight"`, wantErr: true},
		{name: "mcq unknown option", question: 1, raw: `["Cheaper groceries"]`, wantErr: true},
		{name: "mcq duplicate option", question: 4, raw: `["Noom","Noom"]`, wantErr: true},
		{name: "mcq numbers", question: 4, raw: `[1,2]`, wantErr: true},
		{name: "text", question: 6, raw: `"metformin 500mg"`, want: "metformin 500mg"},
		{name: "text keeps inner spacing", question: 2, raw: `"  see chart  "`, want: "  see chart  "},
		{name: "text blank", question: 6, raw: `"   "`, wantErr: true},
		{name: "text empty", question: 3, raw: `""`, wantErr: true},
		{name: "text given array", question: 6, raw: `["none"]`, wantErr: true},
		{name: "null", question: 6, raw: `null`, wantErr: true},
		{name: "null on mcq", question: 1, raw: `null`, wantErr: true},
		{name: "number", question: 3, raw: `180`, wantErr: true},
		{name: "object", question: 1, raw: `{"a":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.canonicalAnswer(catalogQuestion(t, tt.question), json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidResponse) {
					t.Fatalf("expected ErrInvalidResponse, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCheckSelection(t *testing.T) {
	q := catalogQuestion(t, 4)

	if err := checkSelection(q, nil); err != nil {
		t.Fatalf("empty selection should pass: %v", err)
	}
	if err := checkSelection(q, []string{"Alpha", "Keto or low carb", "Push Health"}); err != nil {
		t.Fatalf("offered options should pass: %v", err)
	}
	if err := checkSelection(q, []string{"Alpha", "alpha"}); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("options are case sensitive, got %v", err)
	}
	if err := checkSelection(q, []string{" Noom"}); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("untrimmed option should fail, got %v", err)
	}
	if err := checkSelection(q, []string{"Found", "Noom", "Found"}); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("repeated option should fail, got %v", err)
	}
}
