package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/enermarket/backoffice/internal/auth"
	"github.com/enermarket/backoffice/internal/metrics"
	"github.com/enermarket/backoffice/internal/storage"
	"github.com/enermarket/backoffice/internal/studies"
)

// HandleSavingStudies serves POST /api/v2/saving-studies.
func (h *V2Handler) HandleSavingStudies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowed(r, "studies", "write") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var body storage.SavingStudy
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	body.ID = 0
	body.Status = storage.StudyInProgress
	if body.UserID == "" {
		body.UserID = auth.UserID(r)
	}

	study, err := h.st.CreateSavingStudy(r.Context(), body)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, study)
}

// HandleSavingStudy routes /api/v2/saving-studies/{id}[/...]:
//
//	GET    {id}                              study detail
//	DELETE {id}                              soft-delete a study
//	POST   {id}/suggested-rates              generate suggestions
//	GET    {id}/suggested-rates              list suggestions
//	PATCH  {id}/suggested-rates/{srid}       recost one suggestion
//	POST   {id}/finish                       select winner, complete study
func (h *V2Handler) HandleSavingStudy(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/v2/saving-studies/")
	id, ok := parseID(parts[0])
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method == http.MethodDelete {
			h.deleteStudy(w, r, id)
			return
		}
		h.getStudy(w, r, id)
	case len(parts) == 2 && parts[1] == "suggested-rates":
		switch r.Method {
		case http.MethodPost:
			h.generateSuggestions(w, r, id)
		case http.MethodGet:
			h.listSuggestions(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 3 && parts[1] == "suggested-rates":
		srID, ok := parseID(parts[2])
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.recostSuggestion(w, r, id, srID)
	case len(parts) == 2 && parts[1] == "finish":
		h.finishStudy(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *V2Handler) getStudy(w http.ResponseWriter, r *http.Request, id uint) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowed(r, "studies", "read") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	study, err := h.st.GetSavingStudy(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if study == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, study)
}

func (h *V2Handler) deleteStudy(w http.ResponseWriter, r *http.Request, id uint) {
	if !h.allowed(r, "studies", "write") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	study, err := h.st.GetSavingStudy(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if study == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.st.DeleteSavingStudy(r.Context(), id); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *V2Handler) generateSuggestions(w http.ResponseWriter, r *http.Request, id uint) {
	if !h.allowed(r, "studies", "write") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	start := time.Now()
	rows, err := h.svc.GenerateSuggestions(r.Context(), id)
	if err != nil {
		metrics.GenerationErrorsTotal.WithLabelValues(generationErrorReason(err)).Inc()
		writeEngineError(w, r, err)
		return
	}

	energyType := "unknown"
	if study, err := h.st.GetSavingStudy(r.Context(), id); err == nil && study != nil {
		energyType = study.EnergyType
	}
	metrics.GenerationsTotal.WithLabelValues(energyType).Inc()
	metrics.GenerationDurationSeconds.WithLabelValues(energyType).Observe(time.Since(start).Seconds())
	metrics.SuggestedRatesProduced.WithLabelValues(energyType).Add(float64(len(rows)))

	writeJSON(w, http.StatusOK, rows)
}

func (h *V2Handler) listSuggestions(w http.ResponseWriter, r *http.Request, id uint) {
	if !h.allowed(r, "studies", "read") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	rows, err := h.svc.ListSuggestions(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if rows == nil {
		rows = []storage.SuggestedRate{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *V2Handler) recostSuggestion(w http.ResponseWriter, r *http.Request, id, srID uint) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowed(r, "studies", "write") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var body struct {
		AppliedProfitMargin *float64 `json:"applied_profit_margin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AppliedProfitMargin == nil {
		http.Error(w, "invalid body: applied_profit_margin required", http.StatusBadRequest)
		return
	}

	sr, err := h.svc.Recost(r.Context(), id, srID, *body.AppliedProfitMargin)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

func (h *V2Handler) finishStudy(w http.ResponseWriter, r *http.Request, id uint) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowed(r, "studies", "write") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var body struct {
		SuggestedRateID uint `json:"suggested_rate_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SuggestedRateID == 0 {
		http.Error(w, "invalid body: suggested_rate_id required", http.StatusBadRequest)
		return
	}

	study, selected, err := h.svc.FinishStudy(r.Context(), id, body.SuggestedRateID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"saving_study":   study,
		"suggested_rate": selected,
	})
}

func generationErrorReason(err error) string {
	switch {
	case errors.Is(err, studies.ErrStudyNotFound), errors.Is(err, studies.ErrRateTypeNotFound):
		return "not_found"
	case studies.IsValidation(err):
		return "validation"
	case errors.Is(err, storage.ErrNumericOverflow):
		return "numeric_overflow"
	}
	return "internal"
}
