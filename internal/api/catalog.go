package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/enermarket/backoffice/internal/pricesheet"
	"github.com/enermarket/backoffice/internal/storage"
)

// HandleRates routes /api/v2/rates/{...}:
//
//	POST   import          import a marketer price-sheet PDF
//	POST   {id}/margins    attach a profit-margin band to a rate
func (h *V2Handler) HandleRates(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/v2/rates/")

	if len(parts) == 1 && parts[0] == "import" {
		h.importPriceSheet(w, r)
		return
	}

	id, ok := parseID(parts[0])
	if !ok {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 && parts[1] == "margins" {
		h.createMargin(w, r, id)
		return
	}
	http.NotFound(w, r)
}

func (h *V2Handler) createMargin(w http.ResponseWriter, r *http.Request, rateID uint) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowed(r, "rates", "write") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var body storage.Margin
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	body.ID = 0
	body.RateID = rateID

	m, err := h.st.CreateMargin(r.Context(), body)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// importPriceSheet accepts a multipart PDF upload, parses the tariffs it
// lists, and refreshes the prices of catalog rates with matching names.
// Tariffs without a matching rate are reported as skipped.
func (h *V2Handler) importPriceSheet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowed(r, "rates", "write") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// The PDF reader needs a seekable file on disk.
	tmp, err := os.CreateTemp("", "pricesheet-*.pdf")
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeEngineError(w, r, err)
		return
	}
	tmp.Close()

	parsed, err := pricesheet.ParsePDF(tmp.Name())
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	imported, skipped := 0, []string{}
	for _, p := range parsed {
		rate, err := h.st.GetRateByName(r.Context(), p.Name)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		if rate == nil {
			skipped = append(skipped, p.Name)
			continue
		}
		applyParsedPrices(rate, p)
		if err := h.st.UpsertRate(r.Context(), *rate); err != nil {
			writeEngineError(w, r, err)
			return
		}
		imported++
	}

	log.Printf("api: price sheet import: %d updated, %d skipped", imported, len(skipped))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": imported,
		"skipped":  skipped,
	})
}

func applyParsedPrices(rate *storage.Rate, p pricesheet.ParsedRate) {
	energy := []**float64{
		&rate.EnergyPrice1, &rate.EnergyPrice2, &rate.EnergyPrice3,
		&rate.EnergyPrice4, &rate.EnergyPrice5, &rate.EnergyPrice6,
	}
	power := []**float64{
		&rate.PowerPrice1, &rate.PowerPrice2, &rate.PowerPrice3,
		&rate.PowerPrice4, &rate.PowerPrice5, &rate.PowerPrice6,
	}
	for i := 0; i < 6; i++ {
		if p.EnergyPrices[i] != nil {
			*energy[i] = p.EnergyPrices[i]
		}
		if p.PowerPrices[i] != nil {
			*power[i] = p.PowerPrices[i]
		}
	}
	if p.FixedTermPrice != nil {
		rate.FixedTermPrice = p.FixedTermPrice
	}
}

// HandleRegulatedCosts serves GET /api/v2/regulated-costs.
func (h *V2Handler) HandleRegulatedCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowed(r, "rates", "read") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	costs, err := h.st.ListEnergyCosts(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, costs)
}

// HandleRegulatedCost serves GET and PUT on /api/v2/regulated-costs/{code}.
func (h *V2Handler) HandleRegulatedCost(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/v2/regulated-costs/")
	if len(parts) != 1 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	code := parts[0]

	switch r.Method {
	case http.MethodGet:
		if !h.allowed(r, "rates", "read") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		cost, err := h.st.GetEnergyCostByCode(r.Context(), code)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		if cost == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, cost)

	case http.MethodPut:
		if !h.allowed(r, "rates", "write") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		var body storage.EnergyCost
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		body.Code = code
		if err := h.st.UpsertEnergyCost(r.Context(), body); err != nil {
			writeEngineError(w, r, err)
			return
		}
		cost, err := h.st.GetEnergyCostByCode(r.Context(), code)
		if err != nil || cost == nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cost)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
