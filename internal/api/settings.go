package api

import (
	"encoding/json"
	"net/http"

	"github.com/enermarket/backoffice/internal/auth"
	"github.com/enermarket/backoffice/internal/notification"
	"github.com/enermarket/backoffice/internal/storage"
)

func registerSettingsRoutes(mux *http.ServeMux, authSvc *auth.Service, notifSvc *notification.Service) {
	withAuth := func(handler http.HandlerFunc) http.Handler {
		if authSvc == nil {
			return handler
		}
		return authSvc.Middleware(handler)
	}
	allowed := func(r *http.Request, act string) bool {
		if authSvc == nil {
			return true
		}
		ok, err := authSvc.Enforce(auth.UserID(r), "settings", act)
		return err == nil && ok
	}

	mux.Handle("/api/v2/settings/email", withAuth(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if !allowed(r, "read") {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			cfg, err := notifSvc.GetConfig(r.Context())
			if err != nil {
				writeEngineError(w, r, err)
				return
			}
			if cfg == nil {
				cfg = &storage.EmailConfig{}
			}
			writeJSON(w, http.StatusOK, cfg)

		case http.MethodPut:
			if !allowed(r, "write") {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			var req storage.EmailConfig
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			if err := notifSvc.SaveConfig(r.Context(), req); err != nil {
				writeEngineError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusOK)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/api/v2/settings/email/test", withAuth(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !allowed(r, "write") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		var req struct {
			Config storage.EmailConfig `json:"config"`
			To     string              `json:"to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := notifSvc.TestConfig(r.Context(), req.Config, req.To); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}
