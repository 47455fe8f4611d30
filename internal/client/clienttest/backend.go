// Package clienttest provides an in-memory questionnaire backend for client tests.
package clienttest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"medq/internal/admin"
	"medq/internal/answer"
	"medq/internal/auth"
	"medq/internal/questionnaire"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Demo accounts served by every Backend.
const (
	UserPassword  = "password"
	AdminPassword = "admin"
)

type account struct {
	user     auth.User
	password string
}

// Backend serves the /api surface from memory. Failures and hooks can be
// injected per "METHOD /api/path".
type Backend struct {
	t      testing.TB
	server *httptest.Server

	mu       sync.Mutex
	catalog  questionnaire.Catalog
	accounts map[string]account
	tokens   map[string]auth.User
	sets     map[int64][]questionnaire.ResponseSet
	failures map[string]int
	hooks    map[string]func(r *http.Request)
	bodies   [][]byte
	nextSet  int
	clock    time.Time
}

func NewBackend(t testing.TB) *Backend {
	t.Helper()

	catalog, err := questionnaire.DefaultCatalog()
	if err != nil {
		t.Fatalf("fixture catalog: %v", err)
	}
	b := &Backend{
		t:       t,
		catalog: catalog,
		accounts: map[string]account{
			"john":   {user: auth.User{ID: 1, Username: "john", Role: auth.RoleUser}, password: UserPassword},
			"jordan": {user: auth.User{ID: 2, Username: "jordan", Role: auth.RoleUser}, password: UserPassword},
			"mary":   {user: auth.User{ID: 3, Username: "mary", Role: auth.RoleUser}, password: UserPassword},
			"admin":  {user: auth.User{ID: 9, Username: "admin", Role: auth.RoleAdmin}, password: AdminPassword},
		},
		tokens:   make(map[string]auth.User),
		sets:     make(map[int64][]questionnaire.ResponseSet),
		failures: make(map[string]int),
		hooks:    make(map[string]func(r *http.Request)),
		clock:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(b.server.Close)
	return b
}

// URL is the API base URL, including the /api prefix.
func (b *Backend) URL() string { return b.server.URL + "/api" }

// Fail makes every request matching method and path answer with status.
func (b *Backend) Fail(method, path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = status
}

// Heal removes an injected failure.
func (b *Backend) Heal(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, method+" "+path)
}

// Before runs fn ahead of every request matching method and path.
func (b *Backend) Before(method, path string, fn func(r *http.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[method+" "+path] = fn
}

// Token issues a session for username without a login round trip.
func (b *Backend) Token(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[username]
	if !ok {
		b.t.Fatalf("unknown account %q", username)
	}
	token := "tok-" + username
	b.tokens[token] = acc.user
	return token
}

// Record stores a submission as if userID had posted it.
func (b *Backend) Record(userID, questionnaireID int64, items map[int64]string) questionnaire.ResponseSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recordLocked(userID, questionnaireID, items)
}

// SubmitBodies returns the raw bodies posted to the responses endpoint.
func (b *Backend) SubmitBodies() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.bodies))
	copy(out, b.bodies)
	return out
}

func (b *Backend) recordLocked(userID, questionnaireID int64, items map[int64]string) questionnaire.ResponseSet {
	b.nextSet++
	b.clock = b.clock.Add(time.Minute)

	byID := make(map[int64]questionnaire.Question)
	for _, q := range b.catalog.Questions {
		byID[q.ID] = q
	}
	set := questionnaire.ResponseSet{
		ID:              fmt.Sprintf("set-%d", b.nextSet),
		QuestionnaireID: questionnaireID,
		UserID:          userID,
		SubmittedAt:     b.clock,
	}
	for _, q := range b.catalog.QuestionsFor(questionnaireID) {
		raw, ok := items[q.ID]
		if !ok {
			continue
		}
		set.QuestionIDs = append(set.QuestionIDs, q.ID)
		set.Responses = append(set.Responses, questionnaire.ResponseItem{
			QuestionID:   q.ID,
			Question:     byID[q.ID].Text,
			QuestionType: byID[q.ID].Type,
			Response:     raw,
		})
	}
	b.sets[userID] = append([]questionnaire.ResponseSet{set}, b.sets[userID]...)
	return set
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.inject)
	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", b.login)
		api.Group(func(secure chi.Router) {
			secure.Use(b.requireAuth)
			secure.Get("/auth/me", b.me)
			secure.Post("/auth/logout", b.logout)
			secure.Get("/questionnaires", b.list)
			secure.Get("/questionnaires/{id}", b.detail)
			secure.Get("/questionnaires/{id}/user-responses", b.userResponses)
			secure.Post("/questionnaires/{id}/responses", b.submit)
			secure.Get("/admin/users", b.adminOnly(b.adminUsers))
			secure.Get("/admin/users/{id}/responses", b.adminOnly(b.adminResponses))
			secure.Get("/admin/users/{id}/responses.xlsx", b.adminOnly(b.adminExport))
		})
	})
	return r
}

func (b *Backend) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		b.mu.Lock()
		hook := b.hooks[key]
		status := b.failures[key]
		b.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if status != 0 {
			writeError(w, r, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		u, ok := b.tokens[token]
		b.mu.Unlock()
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), &u)))
	})
}

func (b *Backend) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if u, _ := auth.CurrentUser(r.Context()); !u.IsAdmin() {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	b.mu.Lock()
	acc, ok := b.accounts[req.Username]
	b.mu.Unlock()
	if !ok || acc.password != req.Password {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token := b.Token(req.Username)
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": time.Now().Add(time.Hour),
		"user":       acc.user,
	})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r.Context())
	writeJSON(w, r, http.StatusOK, u)
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	delete(b.tokens, token)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) list(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r.Context())
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]questionnaire.Summary, 0, len(b.catalog.Questionnaires))
	for _, qn := range b.catalog.Questionnaires {
		d := questionnaire.BuildDetail(b.catalog, qn)
		out = append(out, questionnaire.Summary{
			Detail:        d,
			QuestionCount: len(d.Questions),
			Completed:     questionnaire.IsComplete(b.catalog.QuestionsFor(qn.ID), b.setsFor(u.ID, qn.ID)),
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (b *Backend) detail(w http.ResponseWriter, r *http.Request) {
	qn, ok := b.questionnaire(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	d := questionnaire.BuildDetail(b.catalog, qn)
	b.mu.Unlock()
	writeJSON(w, r, http.StatusOK, d)
}

func (b *Backend) userResponses(w http.ResponseWriter, r *http.Request) {
	qn, ok := b.questionnaire(w, r)
	if !ok {
		return
	}
	u, _ := auth.CurrentUser(r.Context())
	b.mu.Lock()
	sets := b.setsFor(u.ID, qn.ID)
	b.mu.Unlock()
	writeJSON(w, r, http.StatusOK, sets)
}

func (b *Backend) submit(w http.ResponseWriter, r *http.Request) {
	qn, ok := b.questionnaire(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	var req struct {
		Responses map[int64]answer.Value `json:"responses"`
	}
	if err := json.Unmarshal(data, &req); err != nil || len(req.Responses) == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make(map[int64]string, len(req.Responses))
	for id, v := range req.Responses {
		if v.IsMulti() {
			items[id] = answer.Encode(v)
		} else {
			items[id] = v.String()
		}
	}

	u, _ := auth.CurrentUser(r.Context())
	b.mu.Lock()
	b.bodies = append(b.bodies, data)
	set := b.recordLocked(u.ID, qn.ID, items)
	b.mu.Unlock()
	writeJSON(w, r, http.StatusCreated, map[string]interface{}{"message": "Responses saved", "response_set": set})
}

func (b *Backend) adminUsers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]admin.UserSummary, 0, len(b.accounts))
	for _, acc := range b.accounts {
		if acc.user.IsAdmin() {
			continue
		}
		done := 0
		for _, qn := range b.catalog.Questionnaires {
			if questionnaire.IsComplete(b.catalog.QuestionsFor(qn.ID), b.setsFor(acc.user.ID, qn.ID)) {
				done++
			}
		}
		out = append(out, admin.UserSummary{ID: acc.user.ID, Username: acc.user.Username, CompletedQuestionnaires: done})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, r, http.StatusOK, out)
}

func (b *Backend) adminResponses(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []admin.QuestionnaireResponses{}
	for _, qn := range b.catalog.Questionnaires {
		latest, ok := questionnaire.Latest(b.setsFor(userID, qn.ID))
		if !ok {
			continue
		}
		out = append(out, admin.QuestionnaireResponses{
			QuestionnaireID:   qn.ID,
			QuestionnaireName: qn.Name,
			SubmittedAt:       latest.SubmittedAt,
			Responses:         latest.Responses,
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (b *Backend) adminExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("PK-user-" + chi.URLParam(r, "id")))
}

func (b *Backend) questionnaire(w http.ResponseWriter, r *http.Request) (questionnaire.Questionnaire, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid questionnaire id")
		return questionnaire.Questionnaire{}, false
	}
	b.mu.Lock()
	qn, ok := b.catalog.Questionnaire(id)
	b.mu.Unlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "questionnaire not found")
		return questionnaire.Questionnaire{}, false
	}
	return qn, true
}

func (b *Backend) setsFor(userID, questionnaireID int64) []questionnaire.ResponseSet {
	out := []questionnaire.ResponseSet{}
	for _, s := range b.sets[userID] {
		if s.QuestionnaireID == questionnaireID {
			out = append(out, s)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"message": msg})
}
