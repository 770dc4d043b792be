package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/enermarket/backoffice/internal/auth"
	"github.com/enermarket/backoffice/internal/storage"
)

// registerAuthRoutes wires login, user management and API token issuance.
// Only installed when auth is enabled.
func registerAuthRoutes(mux *http.ServeMux, authSvc *auth.Service, st storage.Storage) {
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}

		user, err := authSvc.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		expiresAt, err := auth.ParseExpirationDuration("24h")
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		token, raw, err := authSvc.CreateToken(r.Context(), user.ID, "login", user.Role, expiresAt)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":      raw,
			"expires_at": token.ExpiresAt,
			"user":       user,
		})
	})

	mux.Handle("/api/v2/auth/register", authSvc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// The first registration bootstraps the admin account; after
		// that only users:write may create accounts.
		if !bootstrapping(r.Context(), st) {
			ok, err := authSvc.Enforce(auth.UserID(r), "users", "write")
			if err != nil || !ok {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
			http.Error(w, "invalid body: username and password required", http.StatusBadRequest)
			return
		}
		if bootstrapping(r.Context(), st) {
			req.Role = "admin"
		}
		if req.Role == "" {
			req.Role = "sales"
		}

		user, err := authSvc.Register(r.Context(), req.Username, req.Password, req.Role)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	})))

	mux.Handle("/api/v2/auth/tokens", authSvc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID := auth.UserID(r)
		if userID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req struct {
			Name      string `json:"name"`
			ExpiresIn string `json:"expires_in"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "invalid body: name required", http.StatusBadRequest)
			return
		}

		expiresAt, err := auth.ParseExpirationDuration(req.ExpiresIn)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := st.GetUser(r.Context(), userID)
		if err != nil || user == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		token, raw, err := authSvc.CreateToken(r.Context(), userID, req.Name, user.Role, expiresAt)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"token":      raw,
			"id":         token.ID,
			"expires_at": token.ExpiresAt,
		})
	})))

	mux.Handle("/api/v2/users", authSvc.Middleware(authSvc.RequirePermission("users", "read",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			users, err := st.ListUsers(r.Context())
			if err != nil {
				writeEngineError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, users)
		}))))
}

func bootstrapping(ctx context.Context, st storage.Storage) bool {
	users, err := st.ListUsers(ctx)
	return err == nil && len(users) == 0
}
