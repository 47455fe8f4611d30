package app

import (
	"database/sql"
	"net/http"
	"time"

	"medq/internal/admin"
	"medq/internal/app/apiresp"
	"medq/internal/app/observability"
	"medq/internal/auth"
	"medq/internal/questionnaire"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(cfg Config, db *sql.DB, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}

	collector := observability.NewCollector(db, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	authSvc := auth.NewService(db, auth.ServiceConfig{
		SessionTTL: cfg.SessionTTL,
		Logger:     log.WithField("component", "auth"),
	})
	authHandler := auth.NewHandler(authSvc)

	questionnaireSvc := questionnaire.NewService(db, log.WithField("component", "questionnaire"))
	questionnaireHandler := questionnaire.NewHandler(questionnaireSvc)

	adminSvc := admin.NewService(db, questionnaireSvc, log.WithField("component", "admin"))
	adminHandler := admin.NewHandler(adminSvc)

	loginLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteOK(w, r, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", collector.MetricsHandler())

	r.Route("/api", func(api chi.Router) {
		api.With(RateLimitMiddleware(loginLimiter)).Post("/auth/login", authHandler.Login)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Use(observability.CaptureUser)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Get("/questionnaires", questionnaireHandler.List)
			secure.Get("/questionnaires/{id}", questionnaireHandler.Get)
			secure.Get("/questionnaires/{id}/user-responses", questionnaireHandler.UserResponses)
			secure.Post("/questionnaires/{id}/responses", questionnaireHandler.Submit)

			secure.Group(func(adm chi.Router) {
				adm.Use(authHandler.RequireRoles(auth.RoleAdmin))
				adm.Get("/admin/users", adminHandler.ListUsers)
				adm.Get("/admin/users/{id}/responses", adminHandler.UserResponses)
				adm.Get("/admin/users/{id}/responses.xlsx", adminHandler.ExportUserResponses)
			})
		})
	})

	return r
}
