package questionnaire

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"medq/internal/answer"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	db    *sql.DB
	codec answer.Codec
	log   logrus.FieldLogger
}

// LinkedQuestion is a question as it appears inside one questionnaire.
type LinkedQuestion struct {
	Question
	Link LinkPriority `json:"QuestionnaireQuestion"`
}

type LinkPriority struct {
	Priority int `json:"priority"`
}

type Detail struct {
	Questionnaire
	Questions []LinkedQuestion `json:"questions"`
}

type Summary struct {
	Detail
	QuestionCount int  `json:"question_count"`
	Completed     bool `json:"completed"`
}

type SubmitInput struct {
	QuestionnaireID int64
	UserID          int64
	Responses       map[int64]json.RawMessage
}

func NewService(db *sql.DB, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{db: db, codec: answer.NewCodec(log), log: log}
}

// SeedCatalog upserts every questionnaire, question and link of c.
func (s *Service) SeedCatalog(ctx context.Context, c Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, qn := range c.Questionnaires {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO questionnaires (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, qn.ID, qn.Name); err != nil {
			return fmt.Errorf("seed questionnaire %d: %w", qn.ID, err)
		}
	}

	for _, q := range c.Questions {
		var options interface{}
		if q.Type == answer.MultiSelect {
			b, err := json.Marshal(q.Options)
			if err != nil {
				return fmt.Errorf("encode options %d: %w", q.ID, err)
			}
			options = string(b)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO questions (id, question_type, question_text, options) VALUES ($1, $2, $3, $4::jsonb)
			ON CONFLICT (id) DO UPDATE SET
				question_type = EXCLUDED.question_type,
				question_text = EXCLUDED.question_text,
				options = EXCLUDED.options
		`, q.ID, string(q.Type), q.Text, options); err != nil {
			return fmt.Errorf("seed question %d: %w", q.ID, err)
		}
	}

	for _, l := range c.Links {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO questionnaire_questions (id, questionnaire_id, question_id, priority) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				questionnaire_id = EXCLUDED.questionnaire_id,
				question_id = EXCLUDED.question_id,
				priority = EXCLUDED.priority
		`, l.ID, l.QuestionnaireID, l.QuestionID, l.Priority); err != nil {
			return fmt.Errorf("seed link %d: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"questionnaires": len(c.Questionnaires),
		"questions":      len(c.Questions),
		"links":          len(c.Links),
	}).Info("catalog seeded")
	return nil
}

// Catalog reads the whole questionnaire catalog.
func (s *Service) Catalog(ctx context.Context) (Catalog, error) {
	var c Catalog

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM questionnaires ORDER BY id`)
	if err != nil {
		return c, fmt.Errorf("query questionnaires: %w", err)
	}
	for rows.Next() {
		var qn Questionnaire
		if err := rows.Scan(&qn.ID, &qn.Name); err != nil {
			rows.Close()
			return c, fmt.Errorf("scan questionnaire: %w", err)
		}
		c.Questionnaires = append(c.Questionnaires, qn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("iterate questionnaires: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, question_type, question_text, options FROM questions ORDER BY id`)
	if err != nil {
		return c, fmt.Errorf("query questions: %w", err)
	}
	for rows.Next() {
		var q Question
		var qType string
		var options []byte
		if err := rows.Scan(&q.ID, &qType, &q.Text, &options); err != nil {
			rows.Close()
			return c, fmt.Errorf("scan question: %w", err)
		}
		q.Type = answer.Type(qType)
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				rows.Close()
				return c, fmt.Errorf("decode options of question %d: %w", q.ID, err)
			}
		}
		c.Questions = append(c.Questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("iterate questions: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, questionnaire_id, question_id, priority
		FROM questionnaire_questions
		ORDER BY id
	`)
	if err != nil {
		return c, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.QuestionnaireID, &l.QuestionID, &l.Priority); err != nil {
			return c, fmt.Errorf("scan link: %w", err)
		}
		c.Links = append(c.Links, l)
	}
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("iterate links: %w", err)
	}
	return c, nil
}

// ListQuestionnaires returns every questionnaire with its ordered questions and
// whether userID's latest submission completes it.
func (s *Service) ListQuestionnaires(ctx context.Context, userID int64) ([]Summary, error) {
	var (
		catalog Catalog
		latest  map[int64]ResponseSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.Catalog(gctx)
		catalog = c
		return err
	})
	g.Go(func() error {
		l, err := s.LatestSets(gctx, userID)
		latest = l
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(catalog.Questionnaires))
	for _, qn := range catalog.Questionnaires {
		detail := BuildDetail(catalog, qn)
		var sets []ResponseSet
		if set, ok := latest[qn.ID]; ok {
			sets = append(sets, set)
		}
		out = append(out, Summary{
			Detail:        detail,
			QuestionCount: len(detail.Questions),
			Completed:     IsComplete(catalog.QuestionsFor(qn.ID), sets),
		})
	}
	return out, nil
}

func (s *Service) GetQuestionnaire(ctx context.Context, id int64) (*Detail, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	qn, ok := catalog.Questionnaire(id)
	if !ok {
		return nil, ErrQuestionnaireNotFound
	}
	d := BuildDetail(catalog, qn)
	return &d, nil
}

// BuildDetail joins qn with its questions in priority order.
func BuildDetail(c Catalog, qn Questionnaire) Detail {
	priority := make(map[int64]int)
	for _, l := range c.Links {
		if l.QuestionnaireID == qn.ID {
			priority[l.QuestionID] = l.Priority
		}
	}
	questions := c.QuestionsFor(qn.ID)
	d := Detail{Questionnaire: qn, Questions: make([]LinkedQuestion, 0, len(questions))}
	for _, q := range questions {
		d.Questions = append(d.Questions, LinkedQuestion{Question: q, Link: LinkPriority{Priority: priority[q.ID]}})
	}
	return d
}

// ListUserResponses returns userID's submissions for a questionnaire, most recent first.
func (s *Service) ListUserResponses(ctx context.Context, questionnaireID, userID int64) ([]ResponseSet, error) {
	if questionnaireID <= 0 || userID <= 0 {
		return nil, ErrInvalidInput
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM questionnaires WHERE id = $1)`, questionnaireID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check questionnaire: %w", err)
	}
	if !exists {
		return nil, ErrQuestionnaireNotFound
	}
	return s.querySets(ctx, userID, questionnaireID)
}

// LatestSets returns userID's most recent submission per questionnaire.
func (s *Service) LatestSets(ctx context.Context, userID int64) (map[int64]ResponseSet, error) {
	sets, err := s.querySets(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]ResponseSet)
	for _, set := range sets {
		if _, seen := out[set.QuestionnaireID]; !seen {
			out[set.QuestionnaireID] = set
		}
	}
	return out, nil
}

// querySets loads submissions newest first. questionnaireID 0 means all.
func (s *Service) querySets(ctx context.Context, userID, questionnaireID int64) ([]ResponseSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rs.id::text, rs.questionnaire_id, rs.user_id, rs.submitted_at,
			ri.question_id, q.question_text, q.question_type, ri.response
		FROM response_sets rs
		JOIN response_items ri ON ri.response_set_id = rs.id
		JOIN questions q ON q.id = ri.question_id
		LEFT JOIN questionnaire_questions qq
			ON qq.questionnaire_id = rs.questionnaire_id AND qq.question_id = ri.question_id
		WHERE rs.user_id = $1
		  AND ($2::bigint = 0 OR rs.questionnaire_id = $2::bigint)
		ORDER BY rs.submitted_at DESC, rs.id, COALESCE(qq.priority, 2147483647), ri.question_id
	`, userID, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("query response sets: %w", err)
	}
	defer rows.Close()

	out := make([]ResponseSet, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			set   ResponseSet
			item  ResponseItem
			qType string
		)
		if err := rows.Scan(&set.ID, &set.QuestionnaireID, &set.UserID, &set.SubmittedAt,
			&item.QuestionID, &item.Question, &qType, &item.Response); err != nil {
			return nil, fmt.Errorf("scan response item: %w", err)
		}
		item.QuestionType = answer.Type(qType)

		i, ok := index[set.ID]
		if !ok {
			set.QuestionIDs = []int64{}
			set.Responses = []ResponseItem{}
			out = append(out, set)
			i = len(out) - 1
			index[set.ID] = i
		}
		out[i].QuestionIDs = append(out[i].QuestionIDs, item.QuestionID)
		out[i].Responses = append(out[i].Responses, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate response items: %w", err)
	}
	return out, nil
}

// SubmitResponses validates and stores one submission. Multi-select answers are
// stored in canonical encoded form regardless of how the client sent them.
func (s *Service) SubmitResponses(ctx context.Context, in SubmitInput) (*ResponseSet, error) {
	if in.QuestionnaireID <= 0 || in.UserID <= 0 {
		return nil, ErrInvalidInput
	}
	if len(in.Responses) == 0 {
		return nil, fmt.Errorf("%w: no answers", ErrInvalidResponse)
	}

	detail, err := s.GetQuestionnaire(ctx, in.QuestionnaireID)
	if err != nil {
		return nil, err
	}

	items := make([]ResponseItem, 0, len(in.Responses))
	for _, lq := range detail.Questions {
		raw, ok := in.Responses[lq.ID]
		if !ok {
			continue
		}
		stored, err := s.canonicalAnswer(lq.Question, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, ResponseItem{
			QuestionID:   lq.ID,
			Question:     lq.Text,
			QuestionType: lq.Type,
			Response:     stored,
		})
	}
	if len(items) != len(in.Responses) {
		for id := range in.Responses {
			if !detail.hasQuestion(id) {
				return nil, fmt.Errorf("%w: %d", ErrQuestionNotInQuestionnaire, id)
			}
		}
	}

	set := ResponseSet{
		ID:              uuid.NewString(),
		QuestionnaireID: in.QuestionnaireID,
		UserID:          in.UserID,
		QuestionIDs:     make([]int64, 0, len(items)),
		Responses:       items,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO response_sets (id, questionnaire_id, user_id, submitted_at)
		VALUES ($1, $2, $3, now())
		RETURNING submitted_at
	`, set.ID, set.QuestionnaireID, set.UserID).Scan(&set.SubmittedAt); err != nil {
		return nil, fmt.Errorf("insert response set: %w", err)
	}

	for _, it := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO response_items (response_set_id, question_id, response)
			VALUES ($1, $2, $3)
		`, set.ID, it.QuestionID, it.Response); err != nil {
			return nil, fmt.Errorf("insert response item %d: %w", it.QuestionID, err)
		}
		set.QuestionIDs = append(set.QuestionIDs, it.QuestionID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"response_set":  set.ID,
		"questionnaire": set.QuestionnaireID,
		"user_id":       set.UserID,
		"answers":       len(items),
	}).Info("responses submitted")
	return &set, nil
}

func (d Detail) hasQuestion(id int64) bool {
	for _, q := range d.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

func (s *Service) canonicalAnswer(q Question, raw json.RawMessage) (string, error) {
	var v answer.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: question %d: %v", ErrInvalidResponse, q.ID, err)
	}

	switch q.Type {
	case answer.MultiSelect:
		if !v.IsMulti() {
			// older clients send the already-encoded string
			v = answer.Selection(s.codec.Decode(v.String())...)
		}
		if err := checkSelection(q, v.Selected()); err != nil {
			return "", err
		}
		return s.codec.Encode(v), nil
	default:
		if v.IsMulti() {
			return "", fmt.Errorf("%w: question %d expects text", ErrInvalidResponse, q.ID)
		}
		if v.Blank() {
			return "", fmt.Errorf("%w: question %d requires an answer", ErrInvalidResponse, q.ID)
		}
		return v.String(), nil
	}
}

func checkSelection(q Question, selected []string) error {
	allowed := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		allowed[o] = true
	}
	seen := make(map[string]bool, len(selected))
	for _, s := range selected {
		if !allowed[s] {
			return fmt.Errorf("%w: question %d has no option %q", ErrInvalidResponse, q.ID, strings.TrimSpace(s))
		}
		if seen[s] {
			return fmt.Errorf("%w: question %d option %q selected twice", ErrInvalidResponse, q.ID, s)
		}
		seen[s] = true
	}
	return nil
}
