package api

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enermarket/backoffice/internal/api/swagger"
	"github.com/enermarket/backoffice/internal/auth"
	"github.com/enermarket/backoffice/internal/config"
	"github.com/enermarket/backoffice/internal/migrate"
	"github.com/enermarket/backoffice/internal/notification"
	"github.com/enermarket/backoffice/internal/storage"
	"github.com/enermarket/backoffice/internal/studies"
)

// NewMux constructs the HTTP mux, wiring storage, the studies engine,
// auth, metrics and health endpoints.
func NewMux(cfg config.Config) (*http.ServeMux, error) {
	ctx := context.Background()

	if cfg.AutoMigrate {
		if err := migrate.Up(ctx, cfg.DBDriver, cfg.DBDSN); err != nil {
			log.Printf("api: auto-migration failed: %v", err)
		}
	}

	st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return nil, err
	}

	var authSvc *auth.Service
	if cfg.AuthEnabled {
		authSvc, err = auth.NewService(st)
		if err != nil {
			return nil, err
		}
		log.Printf("api: auth enabled")
	}

	notifier := notification.NewService(st)
	svc := studies.NewServiceWithNotifier(st, notifier)

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/docs/", http.StripPrefix("/docs/", swagger.Handler()))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			log.Printf("readyz: db ping failed: %v", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	RegisterV2Routes(mux, svc, st, authSvc)
	registerSettingsRoutes(mux, authSvc, notifier)
	if authSvc != nil {
		registerAuthRoutes(mux, authSvc, st)
	}

	return mux, nil
}
