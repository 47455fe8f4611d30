package review

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"medq/internal/admin"
	"medq/internal/answer"
	"medq/internal/client"
	"medq/internal/client/clienttest"
	"medq/internal/questionnaire"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminReview(t *testing.T, backend *clienttest.Backend) *Review {
	t.Helper()
	tokens := &client.MemoryTokenStore{}
	require.NoError(t, tokens.Save(backend.Token("admin")))
	logger, _ := logtest.NewNullLogger()
	return New(client.New(backend.URL(), tokens), logger)
}

func usernames(users []admin.UserSummary) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}

func TestFilterUsers(t *testing.T) {
	backend := clienttest.NewBackend(t)
	rv := adminReview(t, backend)
	require.NoError(t, rv.LoadUsers(context.Background()))

	// no request may reach the backend while filtering
	backend.Fail(http.MethodGet, "/api/admin/users", http.StatusInternalServerError)

	assert.Equal(t, []string{"john", "jordan"}, usernames(rv.Filter("jo")))
	assert.Equal(t, []string{"john", "jordan"}, usernames(rv.Filter("JO")))
	assert.Equal(t, []string{"mary"}, usernames(rv.Filter("ar")))
	assert.Equal(t, []string{"john", "jordan", "mary"}, usernames(rv.Filter("")))
	assert.Empty(t, rv.Filter("zz"))
}

func TestLoadUsersCountsCompletion(t *testing.T) {
	backend := clienttest.NewBackend(t)
	backend.Record(1, 2, map[int64]string{1: `["Longevity benefits"]`, 2: "ok", 3: "80kg"})
	backend.Record(3, 2, map[int64]string{1: `["Longevity benefits"]`, 2: "ok"})
	rv := adminReview(t, backend)

	require.NoError(t, rv.LoadUsers(context.Background()))
	counts := map[string]int{}
	for _, u := range rv.Users() {
		counts[u.Username] = u.CompletedQuestionnaires
	}
	assert.Equal(t, map[string]int{"john": 1, "jordan": 0, "mary": 0}, counts)
}

func TestLoadUsersFailure(t *testing.T) {
	backend := clienttest.NewBackend(t)
	backend.Fail(http.MethodGet, "/api/admin/users", http.StatusBadGateway)
	rv := adminReview(t, backend)

	err := rv.LoadUsers(context.Background())
	fail, ok := client.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, client.LoadFailure, fail.Kind)
	assert.Equal(t, "Failed to load users", rv.Err().Message())
}

func TestSelectRendersGroups(t *testing.T) {
	backend := clienttest.NewBackend(t)
	backend.Record(1, 1, map[int64]string{
		1: `["Improve blood pressure","Longevity benefits"]`,
		2: "Select all, nothing else",
	})
	backend.Record(1, 3, map[int64]string{5: `["Not sure, I just need to lose weight"]`})
	rv := adminReview(t, backend)

	require.NoError(t, rv.Select(context.Background(), 1))
	groups := rv.Groups()
	require.Len(t, groups, 2)

	assert.Equal(t, "semaglutide", groups[0].QuestionnaireName)
	assert.Equal(t, []string{"Improve blood pressure", "Longevity benefits"}, groups[0].Pairs[0].Answers)
	assert.Equal(t, "Improve blood pressure, Longevity benefits", groups[0].Pairs[0].Display)
	assert.Equal(t, []string{"Select all, nothing else"}, groups[0].Pairs[1].Answers)

	assert.Equal(t, "metformin", groups[1].QuestionnaireName)
	assert.Equal(t, answer.MultiSelect, groups[1].Pairs[0].Type)
	assert.Equal(t, []string{"Not sure, I just need to lose weight"}, groups[1].Pairs[0].Answers)
}

func TestSelectFailure(t *testing.T) {
	backend := clienttest.NewBackend(t)
	backend.Fail(http.MethodGet, "/api/admin/users/2/responses", http.StatusInternalServerError)
	rv := adminReview(t, backend)

	err := rv.Select(context.Background(), 2)
	fail, ok := client.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, "Failed to load user responses", fail.Message())
	assert.Empty(t, rv.Groups())
}

// slowAPI holds responses for user 1 until released, ignoring cancellation.
type slowAPI struct {
	release chan struct{}
	started chan struct{}
}

func (s *slowAPI) AdminUsers(ctx context.Context) ([]admin.UserSummary, error) {
	return nil, nil
}

func (s *slowAPI) AdminUserResponses(ctx context.Context, userID int64) ([]admin.QuestionnaireResponses, error) {
	if userID == 1 {
		close(s.started)
		<-s.release
	}
	return []admin.QuestionnaireResponses{{
		QuestionnaireID:   userID,
		QuestionnaireName: "for-user",
		Responses: []questionnaire.ResponseItem{
			{QuestionID: 2, Question: "q", QuestionType: answer.FreeText, Response: "user answer"},
		},
	}}, nil
}

func TestSelectDiscardsLateResult(t *testing.T) {
	api := &slowAPI{release: make(chan struct{}), started: make(chan struct{})}
	logger, _ := logtest.NewNullLogger()
	rv := newReview(api, logger)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = rv.Select(context.Background(), 1)
	}()

	select {
	case <-api.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first selection never started")
	}
	require.NoError(t, rv.Select(context.Background(), 2))
	close(api.release)
	wg.Wait()

	assert.ErrorIs(t, firstErr, ErrStale)
	assert.Equal(t, int64(2), rv.Selected())
	groups := rv.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, int64(2), groups[0].QuestionnaireID)
}

// blockingAPI waits for cancellation on user 1.
type blockingAPI struct {
	started chan struct{}
}

func (b *blockingAPI) AdminUsers(ctx context.Context) ([]admin.UserSummary, error) {
	return nil, nil
}

func (b *blockingAPI) AdminUserResponses(ctx context.Context, userID int64) ([]admin.QuestionnaireResponses, error) {
	if userID == 1 {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []admin.QuestionnaireResponses{}, nil
}

func TestSelectCancelsPreviousFetch(t *testing.T) {
	api := &blockingAPI{started: make(chan struct{})}
	logger, _ := logtest.NewNullLogger()
	rv := newReview(api, logger)

	done := make(chan error, 1)
	go func() { done <- rv.Select(context.Background(), 1) }()
	<-api.started

	require.NoError(t, rv.Select(context.Background(), 2))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(5 * time.Second):
		t.Fatal("previous fetch was not cancelled")
	}
	assert.Nil(t, rv.Err())
}

func TestBuildGroupsUsesDeclaredType(t *testing.T) {
	codec := answer.NewCodec(nil)
	groups := buildGroups(codec, []admin.QuestionnaireResponses{{
		QuestionnaireName: "x",
		Responses: []questionnaire.ResponseItem{
			{QuestionID: 1, Question: "Pick any", QuestionType: answer.MultiSelect, Response: `["a","b"]`},
			{QuestionID: 2, Question: "Select all that apply to your history", QuestionType: answer.FreeText, Response: "a, b"},
			{QuestionID: 3, Question: "Empty", QuestionType: answer.FreeText, Response: ""},
		},
	}})
	require.Len(t, groups, 1)
	pairs := groups[0].Pairs
	assert.Equal(t, []string{"a", "b"}, pairs[0].Answers)
	assert.Equal(t, []string{"a, b"}, pairs[1].Answers)
	assert.Equal(t, "-", pairs[2].Display)
}
