// Package session holds the authenticated identity of one client and decides
// where each route may go.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"medq/internal/auth"
	"medq/internal/client"

	"github.com/sirupsen/logrus"
)

// Routes the gate knows about.
const (
	RouteLogin          = "/login"
	RouteQuestionnaires = "/questionnaires"
	RouteAdmin          = "/admin"
)

const (
	msgInvalidCredentials = "Invalid credentials. Please try again."
	msgLoginFailed        = "Login failed"
)

type api interface {
	Login(ctx context.Context, username, password string) (*auth.User, error)
	Me(ctx context.Context) (*auth.User, error)
	Logout(ctx context.Context) error
}

// Session is the client's identity. It is loading from creation until Start
// has resolved the current user.
type Session struct {
	api api
	log logrus.FieldLogger

	mu      sync.RWMutex
	user    *auth.User
	loading bool
	err     *client.Failure
}

func New(c *client.Client, log logrus.FieldLogger) *Session {
	return newSession(c, log)
}

func newSession(a api, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{api: a, log: log, loading: true}
}

// Start resolves the stored token into a user. An unauthenticated client is not
// an error; a failed check is logged and leaves the session signed out.
func (s *Session) Start(ctx context.Context) {
	u, err := s.api.Me(ctx)
	if err != nil && !errors.Is(err, client.ErrUnauthenticated) {
		s.log.WithError(err).Warn("current user check failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.user = u
	}
	s.loading = false
}

// Login authenticates and returns the landing route for the user's role.
func (s *Session) Login(ctx context.Context, username, password string) (string, error) {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()

	u, err := s.api.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		f := client.NewFailure(client.AuthFailure, loginMessage(err), err)
		s.mu.Lock()
		s.err = f
		s.mu.Unlock()
		return "", f
	}

	s.mu.Lock()
	s.user = u
	s.loading = false
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("signed in")
	return landing(u), nil
}

// Logout forgets the user and the stored token and returns the login route.
func (s *Session) Logout(ctx context.Context) string {
	if err := s.api.Logout(ctx); err != nil {
		s.log.WithError(err).Warn("clear session token")
	}
	s.mu.Lock()
	s.user = nil
	s.err = nil
	s.mu.Unlock()
	return RouteLogin
}

// Guard decides what happens when route is requested. It returns the route to
// redirect to (empty to stay) and whether protected content may render.
func (s *Session) Guard(route string) (redirect string, render bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.loading {
		return "", false
	}
	if route == RouteLogin {
		return "", true
	}
	if s.user == nil {
		return RouteLogin, false
	}
	if isAdminRoute(route) && !s.user.IsAdmin() {
		return RouteQuestionnaires, false
	}
	return "", true
}

func (s *Session) User() *auth.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err is the last login failure, cleared by the next attempt.
func (s *Session) Err() *client.Failure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func landing(u *auth.User) string {
	if u.IsAdmin() {
		return RouteAdmin
	}
	return RouteQuestionnaires
}

func isAdminRoute(route string) bool {
	return route == RouteAdmin || strings.HasPrefix(route, RouteAdmin+"/")
}

func loginMessage(err error) string {
	if client.StatusOf(err) == http.StatusUnauthorized {
		return msgInvalidCredentials
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return msgLoginFailed
}
