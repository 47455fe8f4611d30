// Package respond drives answering one questionnaire: load, edit, validate, submit.
package respond

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"medq/internal/answer"
	"medq/internal/client"
	"medq/internal/questionnaire"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotReady        = errors.New("questionnaire not loaded")
	ErrBusy            = errors.New("submission in progress")
	ErrUnknownQuestion = errors.New("question not in questionnaire")
	ErrWrongType       = errors.New("answer does not match question type")
	ErrUnknownOption   = errors.New("option not offered by question")
	ErrRequired        = errors.New("answer required")
)

const (
	msgLoadFailed   = "Failed to load questionnaire"
	msgSubmitFailed = "Failed to submit responses"
)

type State int

const (
	Loading State = iota
	Hydrated
	Submitting
	Submitted
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Hydrated:
		return "hydrated"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type api interface {
	Questionnaire(ctx context.Context, id int64) (*questionnaire.Detail, error)
	UserResponses(ctx context.Context, questionnaireID int64) ([]questionnaire.ResponseSet, error)
	Submit(ctx context.Context, questionnaireID int64, responses map[int64]json.RawMessage) (*questionnaire.ResponseSet, error)
}

// Flow holds the answers of one user for one questionnaire.
type Flow struct {
	api   api
	codec answer.Codec
	log   logrus.FieldLogger
	id    int64

	mu      sync.Mutex
	state   State
	detail  *questionnaire.Detail
	answers map[int64]answer.Value
	err     *client.Failure
}

func New(c *client.Client, questionnaireID int64, log logrus.FieldLogger) *Flow {
	return newFlow(c, questionnaireID, log)
}

func newFlow(a api, questionnaireID int64, log logrus.FieldLogger) *Flow {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Flow{
		api:     a,
		codec:   answer.NewCodec(log),
		log:     log.WithField("questionnaire", questionnaireID),
		id:      questionnaireID,
		state:   Loading,
		answers: make(map[int64]answer.Value),
	}
}

// Load fetches the questionnaire and the user's earlier submissions together and
// pre-fills answers from the most recent one.
func (f *Flow) Load(ctx context.Context) error {
	f.mu.Lock()
	f.state = Loading
	f.err = nil
	f.mu.Unlock()

	var (
		detail *questionnaire.Detail
		sets   []questionnaire.ResponseSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := f.api.Questionnaire(gctx, f.id)
		detail = d
		return err
	})
	g.Go(func() error {
		s, err := f.api.UserResponses(gctx, f.id)
		sets = s
		return err
	})

	if err := g.Wait(); err != nil {
		fail := client.NewFailure(client.LoadFailure, msgLoadFailed, err)
		f.mu.Lock()
		f.state = Error
		f.err = fail
		f.mu.Unlock()
		f.log.WithError(err).Warn("load questionnaire")
		return fail
	}

	answers := hydrate(f.codec, detail, sets, f.log)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.detail = detail
	f.answers = answers
	f.state = Hydrated
	return nil
}

// hydrate rebuilds answers from the latest set. Items are matched by question id,
// or by question text when the backend did not send ids. Selected entries the
// question no longer offers are dropped.
func hydrate(codec answer.Codec, detail *questionnaire.Detail, sets []questionnaire.ResponseSet, log logrus.FieldLogger) map[int64]answer.Value {
	out := make(map[int64]answer.Value)
	latest, ok := questionnaire.Latest(sets)
	if !ok {
		return out
	}

	byID := make(map[int64]questionnaire.Question, len(detail.Questions))
	byText := make(map[string]questionnaire.Question, len(detail.Questions))
	for _, lq := range detail.Questions {
		byID[lq.ID] = lq.Question
		byText[lq.Text] = lq.Question
	}

	for _, item := range latest.Responses {
		q, found := byID[item.QuestionID]
		if !found || item.QuestionID == 0 {
			q, found = byText[item.Question]
		}
		if !found {
			continue
		}
		v := answer.Hydrate(codec, q.Type, item.Response)
		if v.IsMulti() {
			v = offeredOnly(q, v, log)
		}
		out[q.ID] = v
	}
	return out
}

func offeredOnly(q questionnaire.Question, v answer.Value, log logrus.FieldLogger) answer.Value {
	kept := answer.Selection()
	for _, o := range v.Selected() {
		if !offers(q, o) {
			log.WithFields(logrus.Fields{
				"question_id": q.ID,
				"option":      o,
			}).Warn("dropping stored selection not offered by question")
			continue
		}
		kept = kept.With(o)
	}
	return kept
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err is the last load or submit failure.
func (f *Flow) Err() *client.Failure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Flow) Questionnaire() (questionnaire.Questionnaire, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detail == nil {
		return questionnaire.Questionnaire{}, false
	}
	return f.detail.Questionnaire, true
}

// Questions returns the questions in ascending priority.
func (f *Flow) Questions() []questionnaire.LinkedQuestion {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detail == nil {
		return nil
	}
	out := make([]questionnaire.LinkedQuestion, len(f.detail.Questions))
	copy(out, f.detail.Questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Link.Priority < out[j].Link.Priority })
	return out
}

func (f *Flow) Answer(questionID int64) (answer.Value, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.answers[questionID]
	return v, ok
}

func (f *Flow) SetText(questionID int64, text string) error {
	return f.edit(questionID, answer.FreeText, func(q questionnaire.Question, _ answer.Value) (answer.Value, error) {
		return answer.Text(text), nil
	})
}

// Toggle checks or unchecks one option. Checking an already selected option is a
// no-op. Unchecking accepts any selected entry, offered or not.
func (f *Flow) Toggle(questionID int64, option string, checked bool) error {
	return f.edit(questionID, answer.MultiSelect, func(q questionnaire.Question, cur answer.Value) (answer.Value, error) {
		if checked && !offers(q, option) {
			return cur, fmt.Errorf("%w: %q", ErrUnknownOption, option)
		}
		if !cur.IsMulti() {
			cur = answer.Selection()
		}
		if checked {
			return cur.With(option), nil
		}
		return cur.Without(option), nil
	})
}

// SetSelection replaces the selection, dropping repeats.
func (f *Flow) SetSelection(questionID int64, options ...string) error {
	return f.edit(questionID, answer.MultiSelect, func(q questionnaire.Question, _ answer.Value) (answer.Value, error) {
		v := answer.Selection()
		for _, o := range options {
			if !offers(q, o) {
				return v, fmt.Errorf("%w: %q", ErrUnknownOption, o)
			}
			v = v.With(o)
		}
		return v, nil
	})
}

func (f *Flow) edit(questionID int64, want answer.Type, apply func(questionnaire.Question, answer.Value) (answer.Value, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.detail == nil {
		return ErrNotReady
	}
	if f.state == Submitting {
		return ErrBusy
	}
	q, ok := f.question(questionID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, questionID)
	}
	if q.Type != want {
		return fmt.Errorf("%w: question %d is %s", ErrWrongType, questionID, q.Type)
	}

	next, err := apply(q, f.answers[questionID])
	if err != nil {
		return err
	}
	f.answers[questionID] = next
	return nil
}

// Progress is the share of questions with a non-empty answer, from 0 to 1.
func (f *Flow) Progress() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detail == nil || len(f.detail.Questions) == 0 {
		return 0
	}
	answered := 0
	for _, lq := range f.detail.Questions {
		if v, ok := f.answers[lq.ID]; ok && answeredValue(v) {
			answered++
		}
	}
	return float64(answered) / float64(len(f.detail.Questions))
}

// Validate requires a non-blank answer for every free-text question.
func (f *Flow) Validate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateLocked()
}

func (f *Flow) validateLocked() error {
	if f.detail == nil {
		return ErrNotReady
	}
	var missing []string
	for _, lq := range f.detail.Questions {
		if lq.Type != answer.FreeText {
			continue
		}
		if v := f.answers[lq.ID]; v.Blank() {
			missing = append(missing, fmt.Sprint(lq.ID))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: question %s", ErrRequired, strings.Join(missing, ", "))
	}
	return nil
}

// Body encodes the answers for transport. Selections go through the codec and
// are sent as raw JSON arrays; text is sent as a JSON string.
func (f *Flow) Body() (map[int64]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodyLocked()
}

func (f *Flow) bodyLocked() (map[int64]json.RawMessage, error) {
	out := make(map[int64]json.RawMessage, len(f.answers))
	for id, v := range f.answers {
		if v.IsMulti() {
			out[id] = json.RawMessage(f.codec.Encode(v))
			continue
		}
		b, err := json.Marshal(v.String())
		if err != nil {
			return nil, fmt.Errorf("encode answer %d: %w", id, err)
		}
		out[id] = b
	}
	return out, nil
}

// Submit validates and posts the answers. On failure the answers are kept and
// Submit may be called again.
func (f *Flow) Submit(ctx context.Context) (*questionnaire.ResponseSet, error) {
	f.mu.Lock()
	if f.detail == nil {
		f.mu.Unlock()
		return nil, ErrNotReady
	}
	if f.state == Submitting {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	if err := f.validateLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	body, err := f.bodyLocked()
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.state = Submitting
	f.err = nil
	f.mu.Unlock()

	set, err := f.api.Submit(ctx, f.id, body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = Error
		f.err = client.NewFailure(client.SubmitFailure, msgSubmitFailed, err)
		f.log.WithError(err).Warn("submit responses")
		return nil, f.err
	}
	f.state = Submitted
	f.log.WithField("answers", len(body)).Info("responses submitted")
	return set, nil
}

func (f *Flow) question(id int64) (questionnaire.Question, bool) {
	for _, lq := range f.detail.Questions {
		if lq.ID == id {
			return lq.Question, true
		}
	}
	return questionnaire.Question{}, false
}

func offers(q questionnaire.Question, option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

func answeredValue(v answer.Value) bool {
	if v.IsMulti() {
		return len(v.Selected()) > 0
	}
	return !v.Blank()
}
