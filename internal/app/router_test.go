package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestRouterSmokePublicRoutes(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	router := NewRouter(Config{AuthRateLimitPerMin: 60}, nil, logger)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "healthz", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},
		{name: "auth_me_unauthorized", method: http.MethodGet, target: "/api/auth/me", wantStatus: http.StatusUnauthorized},
		{name: "questionnaires_unauthorized", method: http.MethodGet, target: "/api/questionnaires", wantStatus: http.StatusUnauthorized},
		{name: "admin_unauthorized", method: http.MethodGet, target: "/api/admin/users", wantStatus: http.StatusUnauthorized},
		{name: "login_invalid_body", method: http.MethodPost, target: "/api/auth/login", body: "{", wantStatus: http.StatusBadRequest},
		{name: "unknown", method: http.MethodGet, target: "/api/nope", wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("%s %s: got status %d, want %d", tc.method, tc.target, w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRouterLoginRateLimited(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	router := NewRouter(Config{AuthRateLimitPerMin: 1}, nil, logger)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
		req.RemoteAddr = "10.1.1.1:4000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}
	if code := send(); code != http.StatusBadRequest {
		t.Fatalf("first login should reach the handler, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second login should be limited, got %d", code)
	}
}
