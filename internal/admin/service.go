package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"medq/internal/answer"
	"medq/internal/auth"
	"medq/internal/questionnaire"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUserNotFound = errors.New("user not found")
)

type catalogReader interface {
	Catalog(ctx context.Context) (questionnaire.Catalog, error)
	LatestSets(ctx context.Context, userID int64) (map[int64]questionnaire.ResponseSet, error)
}

type Service struct {
	db    *sql.DB
	qs    catalogReader
	codec answer.Codec
	log   logrus.FieldLogger
}

type UserSummary struct {
	ID                      int64  `json:"id"`
	Username                string `json:"username"`
	CompletedQuestionnaires int    `json:"completedQuestionnaires"`
}

// QuestionnaireResponses is a user's latest submission for one questionnaire.
type QuestionnaireResponses struct {
	QuestionnaireID   int64                        `json:"questionnaireId"`
	QuestionnaireName string                       `json:"questionnaireName"`
	SubmittedAt       time.Time                    `json:"submittedAt"`
	Responses         []questionnaire.ResponseItem `json:"responses"`
}

func NewService(db *sql.DB, qs *questionnaire.Service, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{db: db, qs: qs, codec: answer.NewCodec(log), log: log}
}

// ListUsers returns every non-admin user with the number of questionnaires their
// latest submissions complete.
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	var (
		users   []UserSummary
		catalog questionnaire.Catalog
		latest  map[int64][]questionnaire.ResponseSet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.listUsers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = s.qs.Catalog(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = s.latestAnsweredSets(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	questions := make(map[int64][]questionnaire.Question, len(catalog.Questionnaires))
	for _, qn := range catalog.Questionnaires {
		questions[qn.ID] = catalog.QuestionsFor(qn.ID)
	}

	for i := range users {
		for _, set := range latest[users[i].ID] {
			if questionnaire.IsComplete(questions[set.QuestionnaireID], []questionnaire.ResponseSet{set}) {
				users[i].CompletedQuestionnaires++
			}
		}
	}
	return users, nil
}

func (s *Service) listUsers(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username
		FROM users
		WHERE role = $1
		ORDER BY username
	`, auth.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	out := make([]UserSummary, 0)
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// latestAnsweredSets returns, per user, the answered question ids of the latest
// submission of each questionnaire.
func (s *Service) latestAnsweredSets(ctx context.Context) (map[int64][]questionnaire.ResponseSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (user_id, questionnaire_id) id, user_id, questionnaire_id, submitted_at
			FROM response_sets
			ORDER BY user_id, questionnaire_id, submitted_at DESC
		)
		SELECT l.id::text, l.user_id, l.questionnaire_id, l.submitted_at, ri.question_id
		FROM latest l
		JOIN response_items ri ON ri.response_set_id = l.id
		ORDER BY l.user_id, l.questionnaire_id, ri.question_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest sets: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]questionnaire.ResponseSet)
	for rows.Next() {
		var set questionnaire.ResponseSet
		var questionID int64
		if err := rows.Scan(&set.ID, &set.UserID, &set.QuestionnaireID, &set.SubmittedAt, &questionID); err != nil {
			return nil, fmt.Errorf("scan latest set: %w", err)
		}
		sets := out[set.UserID]
		if n := len(sets); n > 0 && sets[n-1].ID == set.ID {
			sets[n-1].QuestionIDs = append(sets[n-1].QuestionIDs, questionID)
		} else {
			set.QuestionIDs = []int64{questionID}
			sets = append(sets, set)
		}
		out[set.UserID] = sets
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest sets: %w", err)
	}
	return out, nil
}

// UserResponses returns the user's latest submission per questionnaire in
// questionnaire order. Every item carries its question type.
func (s *Service) UserResponses(ctx context.Context, userID int64) ([]QuestionnaireResponses, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	var (
		catalog questionnaire.Catalog
		latest  map[int64]questionnaire.ResponseSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = s.qs.Catalog(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = s.qs.LatestSets(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]QuestionnaireResponses, 0, len(latest))
	for qnID, set := range latest {
		name := fmt.Sprintf("questionnaire %d", qnID)
		if qn, ok := catalog.Questionnaire(qnID); ok {
			name = qn.Name
		}
		out = append(out, QuestionnaireResponses{
			QuestionnaireID:   qnID,
			QuestionnaireName: name,
			SubmittedAt:       set.SubmittedAt,
			Responses:         set.Responses,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionnaireID < out[j].QuestionnaireID })
	return out, nil
}
