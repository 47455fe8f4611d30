package questionnaire

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"medq/internal/answer"
)

func mustDefaultCatalog(t *testing.T) Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	return c
}

func ids(qs []Question) []int64 {
	out := make([]int64, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

func TestDefaultCatalog(t *testing.T) {
	c := mustDefaultCatalog(t)
	if len(c.Questionnaires) != 3 || len(c.Questions) != 6 || len(c.Links) != 9 {
		t.Fatalf("unexpected catalog size: %d questionnaires, %d questions, %d links",
			len(c.Questionnaires), len(c.Questions), len(c.Links))
	}
	qn, ok := c.Questionnaire(2)
	if !ok || qn.Name != "nad-injection" {
		t.Fatalf("unexpected questionnaire 2: %+v", qn)
	}
}

func TestQuestionsFor(t *testing.T) {
	c := mustDefaultCatalog(t)
	tests := []struct {
		questionnaireID int64
		want            []int64
	}{
		{questionnaireID: 1, want: []int64{1, 2, 4}},
		{questionnaireID: 2, want: []int64{1, 2, 3}},
		{questionnaireID: 3, want: []int64{1, 5, 6}},
		{questionnaireID: 99, want: []int64{}},
	}
	for _, tc := range tests {
		got := ids(c.QuestionsFor(tc.questionnaireID))
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("QuestionsFor(%d) got=%v want=%v", tc.questionnaireID, got, tc.want)
		}
	}
}

func TestQuestionsForStableOnEqualPriority(t *testing.T) {
	c := Catalog{
		Questionnaires: []Questionnaire{{ID: 1, Name: "x"}},
		Questions: []Question{
			{ID: 10, Type: answer.FreeText, Text: "a"},
			{ID: 11, Type: answer.FreeText, Text: "b"},
			{ID: 12, Type: answer.FreeText, Text: "c"},
		},
		Links: []Link{
			{ID: 1, QuestionID: 12, QuestionnaireID: 1, Priority: 5},
			{ID: 2, QuestionID: 10, QuestionnaireID: 1, Priority: 5},
			{ID: 3, QuestionID: 11, QuestionnaireID: 1, Priority: 1},
		},
	}
	got := ids(c.QuestionsFor(1))
	if want := []int64{11, 12, 10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestCatalogValidate(t *testing.T) {
	base := func() Catalog {
		return Catalog{
			Questionnaires: []Questionnaire{{ID: 1, Name: "x"}},
			Questions: []Question{
				{ID: 1, Type: answer.MultiSelect, Text: "pick", Options: []string{"a"}},
				{ID: 2, Type: answer.FreeText, Text: "say"},
			},
			Links: []Link{{ID: 1, QuestionID: 1, QuestionnaireID: 1}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Catalog)
		ok     bool
	}{
		{name: "valid", mutate: func(c *Catalog) {}, ok: true},
		{name: "mcq without options", mutate: func(c *Catalog) { c.Questions[0].Options = nil }},
		{name: "input with options", mutate: func(c *Catalog) { c.Questions[1].Options = []string{"x"} }},
		{name: "unknown type", mutate: func(c *Catalog) { c.Questions[1].Type = "scale" }},
		{name: "link to unknown question", mutate: func(c *Catalog) { c.Links[0].QuestionID = 42 }},
		{name: "link to unknown questionnaire", mutate: func(c *Catalog) { c.Links[0].QuestionnaireID = 42 }},
		{name: "duplicate question", mutate: func(c *Catalog) { c.Questions[1].ID = 1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestLoadCatalogRejectsUnknownFields(t *testing.T) {
	_, err := LoadCatalog(strings.NewReader("questionnaires:\n  - id: 1\n    title: x\n"))
	if err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestIsComplete(t *testing.T) {
	c := mustDefaultCatalog(t)
	questions := c.QuestionsFor(2)
	now := time.Now()

	tests := []struct {
		name string
		sets []ResponseSet
		want bool
	}{
		{name: "no response set", sets: nil, want: false},
		{name: "all answered", sets: []ResponseSet{{SubmittedAt: now, QuestionIDs: []int64{1, 2, 3}}}, want: true},
		{name: "fewer answered", sets: []ResponseSet{{SubmittedAt: now, QuestionIDs: []int64{1, 2}}}, want: false},
		{name: "same count different questions", sets: []ResponseSet{{SubmittedAt: now, QuestionIDs: []int64{1, 2, 4}}}, want: false},
		{name: "order does not matter", sets: []ResponseSet{{SubmittedAt: now, QuestionIDs: []int64{3, 1, 2}}}, want: true},
		{
			name: "latest set decides",
			sets: []ResponseSet{
				{SubmittedAt: now.Add(-time.Hour), QuestionIDs: []int64{1, 2, 3}},
				{SubmittedAt: now, QuestionIDs: []int64{1}},
			},
			want: false,
		},
		{
			name: "ids derived from items",
			sets: []ResponseSet{{SubmittedAt: now, Responses: []ResponseItem{{QuestionID: 1}, {QuestionID: 2}, {QuestionID: 3}}}},
			want: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsComplete(questions, tc.sets); got != tc.want {
				t.Fatalf("IsComplete got=%v want=%v", got, tc.want)
			}
		})
	}
}
