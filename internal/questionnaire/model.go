package questionnaire

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"medq/internal/answer"
)

var (
	ErrInvalidInput               = errors.New("invalid input")
	ErrQuestionnaireNotFound      = errors.New("questionnaire not found")
	ErrInvalidResponse            = errors.New("invalid response")
	ErrQuestionNotInQuestionnaire = errors.New("question not in questionnaire")
)

type Questionnaire struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Question struct {
	ID      int64       `json:"id" yaml:"id"`
	Type    answer.Type `json:"question_type" yaml:"type"`
	Text    string      `json:"question_text" yaml:"text"`
	Options []string    `json:"options,omitempty" yaml:"options,omitempty"`
}

// Link places a question in a questionnaire. Lower priority renders first.
type Link struct {
	ID              int64 `json:"id" yaml:"id"`
	QuestionID      int64 `json:"question_id" yaml:"question"`
	QuestionnaireID int64 `json:"questionnaire_id" yaml:"questionnaire"`
	Priority        int   `json:"priority" yaml:"priority"`
}

type Catalog struct {
	Questionnaires []Questionnaire `yaml:"questionnaires"`
	Questions      []Question      `yaml:"questions"`
	Links          []Link          `yaml:"links"`
}

// Validate checks that options are present exactly for multi-select questions
// and that every link refers to a known questionnaire and question.
func (c Catalog) Validate() error {
	qnIDs := make(map[int64]bool, len(c.Questionnaires))
	for _, qn := range c.Questionnaires {
		if qn.ID <= 0 {
			return fmt.Errorf("%w: questionnaire id must be positive", ErrInvalidInput)
		}
		if qnIDs[qn.ID] {
			return fmt.Errorf("%w: duplicate questionnaire %d", ErrInvalidInput, qn.ID)
		}
		qnIDs[qn.ID] = true
	}

	qIDs := make(map[int64]bool, len(c.Questions))
	for _, q := range c.Questions {
		if qIDs[q.ID] {
			return fmt.Errorf("%w: duplicate question %d", ErrInvalidInput, q.ID)
		}
		qIDs[q.ID] = true
		if !q.Type.Valid() {
			return fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidInput, q.ID, q.Type)
		}
		if q.Type == answer.MultiSelect && len(q.Options) == 0 {
			return fmt.Errorf("%w: question %d is mcq without options", ErrInvalidInput, q.ID)
		}
		if q.Type == answer.FreeText && len(q.Options) > 0 {
			return fmt.Errorf("%w: question %d is input with options", ErrInvalidInput, q.ID)
		}
	}

	for _, l := range c.Links {
		if !qnIDs[l.QuestionnaireID] {
			return fmt.Errorf("%w: link %d references unknown questionnaire %d", ErrInvalidInput, l.ID, l.QuestionnaireID)
		}
		if !qIDs[l.QuestionID] {
			return fmt.Errorf("%w: link %d references unknown question %d", ErrInvalidInput, l.ID, l.QuestionID)
		}
	}
	return nil
}

func (c Catalog) Questionnaire(id int64) (Questionnaire, bool) {
	for _, qn := range c.Questionnaires {
		if qn.ID == id {
			return qn, true
		}
	}
	return Questionnaire{}, false
}

// QuestionsFor returns the questions linked to questionnaireID ordered by link
// priority. Equal priorities keep link order.
func (c Catalog) QuestionsFor(questionnaireID int64) []Question {
	byID := make(map[int64]Question, len(c.Questions))
	for _, q := range c.Questions {
		byID[q.ID] = q
	}

	links := make([]Link, 0, len(c.Links))
	for _, l := range c.Links {
		if l.QuestionnaireID == questionnaireID {
			links = append(links, l)
		}
	}
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].Priority < links[j].Priority
	})

	out := make([]Question, 0, len(links))
	for _, l := range links {
		if q, ok := byID[l.QuestionID]; ok {
			out = append(out, q)
		}
	}
	return out
}

type ResponseItem struct {
	QuestionID   int64       `json:"question_id"`
	Question     string      `json:"question"`
	QuestionType answer.Type `json:"question_type"`
	Response     string      `json:"response"`
}

// ResponseSet is one submission. QuestionIDs is the exact set of answered questions.
type ResponseSet struct {
	ID              string         `json:"id"`
	QuestionnaireID int64          `json:"questionnaire_id"`
	UserID          int64          `json:"user_id"`
	SubmittedAt     time.Time      `json:"submitted_at"`
	QuestionIDs     []int64        `json:"question_ids"`
	Responses       []ResponseItem `json:"responses"`
}

// Latest returns the most recently submitted set.
func Latest(sets []ResponseSet) (ResponseSet, bool) {
	if len(sets) == 0 {
		return ResponseSet{}, false
	}
	best := sets[0]
	for _, s := range sets[1:] {
		if s.SubmittedAt.After(best.SubmittedAt) {
			best = s
		}
	}
	return best, true
}

// IsComplete reports whether the latest submission answers exactly the current
// question set. Submissions made before questions were added or removed do not count.
func IsComplete(questions []Question, sets []ResponseSet) bool {
	latest, ok := Latest(sets)
	if !ok {
		return false
	}

	answered := latest.QuestionIDs
	if len(answered) == 0 {
		for _, it := range latest.Responses {
			answered = append(answered, it.QuestionID)
		}
	}
	return sameIDSet(questionIDs(questions), answered)
}

func questionIDs(questions []Question) []int64 {
	out := make([]int64, 0, len(questions))
	for _, q := range questions {
		out = append(out, q.ID)
	}
	return out
}

func sameIDSet(a, b []int64) bool {
	left := make(map[int64]bool, len(a))
	for _, id := range a {
		left[id] = true
	}
	right := make(map[int64]bool, len(b))
	for _, id := range b {
		right[id] = true
	}
	if len(left) != len(right) {
		return false
	}
	for id := range left {
		if !right[id] {
			return false
		}
	}
	return true
}
