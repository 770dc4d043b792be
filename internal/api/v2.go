package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/enermarket/backoffice/internal/auth"
	"github.com/enermarket/backoffice/internal/metrics"
	"github.com/enermarket/backoffice/internal/storage"
	"github.com/enermarket/backoffice/internal/studies"
)

type V2Handler struct {
	svc     *studies.Service
	st      storage.Storage
	authSvc *auth.Service
}

func RegisterV2Routes(mux *http.ServeMux, svc *studies.Service, st storage.Storage, authSvc *auth.Service) {
	h := &V2Handler{svc: svc, st: st, authSvc: authSvc}

	// Wrap with auth middleware when auth is configured.
	withAuth := func(handler http.HandlerFunc) http.Handler {
		if authSvc == nil {
			return handler
		}
		return authSvc.Middleware(handler)
	}

	mux.Handle("/api/v2/saving-studies", withAuth(h.HandleSavingStudies))
	mux.Handle("/api/v2/saving-studies/", withAuth(h.HandleSavingStudy))
	mux.Handle("/api/v2/rates/", withAuth(h.HandleRates))
	mux.Handle("/api/v2/regulated-costs", withAuth(h.HandleRegulatedCosts))
	mux.Handle("/api/v2/regulated-costs/", withAuth(h.HandleRegulatedCost))
}

func (h *V2Handler) allowed(r *http.Request, obj, act string) bool {
	if h.authSvc == nil {
		return true
	}
	ok, err := h.authSvc.Enforce(auth.UserID(r), obj, act)
	return err == nil && ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response failed: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeEngineError maps engine errors onto HTTP statuses: not-found is
// 404, validation is 422, numeric overflow is 500.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, studies.ErrStudyNotFound),
		errors.Is(err, studies.ErrRateTypeNotFound),
		errors.Is(err, studies.ErrRateNotFound),
		errors.Is(err, studies.ErrSuggestedRateNotFound):
		status = http.StatusNotFound
	case studies.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNumericOverflow):
		status = http.StatusInternalServerError
	case errors.Is(err, storage.ErrOverlappingMargin):
		status = http.StatusUnprocessableEntity
	default:
		log.Printf("api: %s %s failed: %v", r.Method, r.URL.Path, err)
		status = http.StatusInternalServerError
		writeJSON(w, status, errorResponse{Error: "internal error"})
		metrics.RequestErrorsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
	metrics.RequestErrorsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
}

func pathParts(r *http.Request, prefix string) []string {
	return strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/")
}

func parseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
