package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medq/internal/app"
	"medq/internal/auth"
	"medq/internal/db"
	"medq/internal/questionnaire"
)

func main() {
	cfg := app.LoadConfig()
	log := app.NewLogger(cfg.LogLevel, nil)

	ctx := context.Background()
	dbConn, err := db.Open(ctx, cfg.DB, log)
	if err != nil {
		log.WithError(err).Fatal("database error")
	}
	defer dbConn.Close()

	if err := db.Migrate(dbConn, log); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	if cfg.SeedFixtures {
		catalog, err := questionnaire.DefaultCatalog()
		if err != nil {
			log.WithError(err).Fatal("load fixture catalog")
		}
		if err := questionnaire.NewService(dbConn, log).SeedCatalog(ctx, catalog); err != nil {
			log.WithError(err).Fatal("seed fixture catalog")
		}
	}

	authSvc := auth.NewService(dbConn, auth.ServiceConfig{SessionTTL: cfg.SessionTTL, Logger: log})
	if err := authSvc.BootstrapAccounts(ctx, []auth.BootstrapAccount{
		{Username: "john", Password: cfg.BootstrapUserPassword, FullName: "John", Role: auth.RoleUser},
		{Username: "admin", Password: cfg.BootstrapAdminPassword, FullName: "Administrator", Role: auth.RoleAdmin},
	}); err != nil {
		log.WithError(err).Fatal("bootstrap accounts")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(cfg, dbConn, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("medq web listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
}
