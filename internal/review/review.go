// Package review is the administrator's view of every user's submitted answers.
package review

import (
	"context"
	"errors"
	"strings"
	"sync"

	"medq/internal/admin"
	"medq/internal/answer"
	"medq/internal/client"

	"github.com/sirupsen/logrus"
)

// ErrStale is returned by Select when a newer selection replaced this one
// before its responses arrived. The result is discarded.
var ErrStale = errors.New("selection superseded")

const (
	msgUsersFailed     = "Failed to load users"
	msgResponsesFailed = "Failed to load user responses"
)

type api interface {
	AdminUsers(ctx context.Context) ([]admin.UserSummary, error)
	AdminUserResponses(ctx context.Context, userID int64) ([]admin.QuestionnaireResponses, error)
}

// Pair is one rendered question and answer.
type Pair struct {
	QuestionID int64
	Question   string
	Type       answer.Type
	Answers    []string
	Display    string
}

type Group struct {
	QuestionnaireID   int64
	QuestionnaireName string
	Pairs             []Pair
}

type Review struct {
	api   api
	codec answer.Codec
	log   logrus.FieldLogger

	mu        sync.Mutex
	users     []admin.UserSummary
	selected  int64
	seq       uint64
	cancel    context.CancelFunc
	responses []admin.QuestionnaireResponses
	err       *client.Failure
}

func New(c *client.Client, log logrus.FieldLogger) *Review {
	return newReview(c, log)
}

func newReview(a api, log logrus.FieldLogger) *Review {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Review{api: a, codec: answer.NewCodec(log), log: log}
}

func (rv *Review) LoadUsers(ctx context.Context) error {
	users, err := rv.api.AdminUsers(ctx)
	rv.mu.Lock()
	defer rv.mu.Unlock()
	if err != nil {
		rv.err = client.NewFailure(client.LoadFailure, msgUsersFailed, err)
		rv.log.WithError(err).Warn("load users")
		return rv.err
	}
	rv.users = users
	rv.err = nil
	return nil
}

func (rv *Review) Users() []admin.UserSummary {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	out := make([]admin.UserSummary, len(rv.users))
	copy(out, rv.users)
	return out
}

// Filter keeps users whose username contains term, ignoring case. It works on
// the loaded list only.
func (rv *Review) Filter(term string) []admin.UserSummary {
	return filterUsers(rv.Users(), term)
}

func filterUsers(users []admin.UserSummary, term string) []admin.UserSummary {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]admin.UserSummary, 0, len(users))
	for _, u := range users {
		if term == "" || strings.Contains(strings.ToLower(u.Username), term) {
			out = append(out, u)
		}
	}
	return out
}

// Select makes userID current and fetches its responses. A later Select cancels
// this fetch; a result that arrives after the selection moved on is dropped and
// ErrStale returned.
func (rv *Review) Select(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithCancel(ctx)

	rv.mu.Lock()
	if rv.cancel != nil {
		rv.cancel()
	}
	rv.seq++
	seq := rv.seq
	rv.selected = userID
	rv.cancel = cancel
	rv.responses = nil
	rv.err = nil
	rv.mu.Unlock()

	groups, err := rv.api.AdminUserResponses(ctx, userID)

	rv.mu.Lock()
	defer rv.mu.Unlock()
	if seq != rv.seq || rv.selected != userID {
		cancel()
		rv.log.WithField("user_id", userID).Debug("dropping stale responses")
		return ErrStale
	}
	rv.cancel = nil
	cancel()
	if err != nil {
		rv.err = client.NewFailure(client.LoadFailure, msgResponsesFailed, err)
		rv.log.WithError(err).WithField("user_id", userID).Warn("load user responses")
		return rv.err
	}
	rv.responses = groups
	return nil
}

func (rv *Review) Selected() int64 {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.selected
}

func (rv *Review) Err() *client.Failure {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.err
}

// Groups renders the selected user's answers, decoding each by its declared
// question type.
func (rv *Review) Groups() []Group {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return buildGroups(rv.codec, rv.responses)
}

func buildGroups(codec answer.Codec, responses []admin.QuestionnaireResponses) []Group {
	out := make([]Group, 0, len(responses))
	for _, qr := range responses {
		g := Group{QuestionnaireID: qr.QuestionnaireID, QuestionnaireName: qr.QuestionnaireName}
		for _, item := range qr.Responses {
			g.Pairs = append(g.Pairs, Pair{
				QuestionID: item.QuestionID,
				Question:   item.Question,
				Type:       item.QuestionType,
				Answers:    answer.DecodeFor(codec, item.QuestionType, item.Response),
				Display:    answer.Format(codec, item.QuestionType, item.Response),
			})
		}
		out = append(out, g)
	}
	return out
}

// Close cancels any in-flight selection.
func (rv *Review) Close() {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	if rv.cancel != nil {
		rv.cancel()
		rv.cancel = nil
	}
}
