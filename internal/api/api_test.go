package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enermarket/backoffice/internal/storage"
	"github.com/enermarket/backoffice/internal/studies"
)

func fp(v float64) *float64 { return &v }

// newTestServer seeds a one-candidate electricity catalog and serves the
// v2 routes over it with auth disabled.
func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryStorage, storage.Rate) {
	t.Helper()
	store := storage.NewMemory()

	mk := store.SeedMarketer(storage.Marketer{Name: "Iberluz", IsActive: true})
	rt := store.SeedRateType(storage.RateType{Name: "2.0TD", EnergyType: storage.EnergyElectricity, Enable: true})
	rate := store.SeedRate(storage.Rate{
		Name:        "Iberluz Estable 2.0",
		MarketerID:  mk.ID,
		RateTypeID:  rt.ID,
		PriceType:   storage.PriceFixedFixed,
		ClientTypes: "company,particular",
		IsActive:    true,

		EnergyPrice1: fp(0.133), EnergyPrice2: fp(0.105), EnergyPrice3: fp(0.092),
		EnergyPrice4: fp(0.084), EnergyPrice5: fp(0.071), EnergyPrice6: fp(0.063),
		PowerPrice1: fp(0.30), PowerPrice2: fp(0.11),

		MinPower: fp(10), MaxPower: fp(50),
		Margins: []storage.Margin{{
			Type:           storage.MarginConsumeRange,
			MinConsumption: fp(500), MaxConsumption: fp(30000),
			MinMargin: 7, MaxMargin: 7,
		}},
	})

	mux := http.NewServeMux()
	RegisterV2Routes(mux, studies.NewService(store), store, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store, rate
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStudyLifecycleOverHTTP(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rt, err := store.GetRateByName(context.Background(), "Iberluz Estable 2.0")
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/v2/saving-studies", map[string]interface{}{
		"client_name":          "Acme SL",
		"energy_type":          storage.EnergyElectricity,
		"client_type":          "company",
		"current_rate_type_id": rt.RateTypeID,
		"analyzed_days":        365,
		"annual_consumption":   14891,
		"consumption_p1":       2124, "consumption_p2": 2682, "consumption_p3": 1807,
		"consumption_p4": 2016, "consumption_p5": 810, "consumption_p6": 5452,
		"power_1": 15.01, "power_2": 15.01,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var study storage.SavingStudy
	decode(t, resp, &study)
	assert.Equal(t, storage.StudyInProgress, study.Status)
	require.NotZero(t, study.ID)

	base := fmt.Sprintf("%s/api/v2/saving-studies/%d", srv.URL, study.ID)

	resp = postJSON(t, base+"/suggested-rates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var generated []storage.SuggestedRate
	decode(t, resp, &generated)
	require.Len(t, generated, 1)
	assert.InDelta(t, 3546.92, generated[0].FinalCost, 0.01)

	resp, err = http.Get(base + "/suggested-rates")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []storage.SuggestedRate
	decode(t, resp, &listed)
	assert.Len(t, listed, 1)

	resp = postJSON(t, base+"/finish", map[string]interface{}{
		"suggested_rate_id": generated[0].ID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var finished struct {
		SavingStudy   storage.SavingStudy   `json:"saving_study"`
		SuggestedRate storage.SuggestedRate `json:"suggested_rate"`
	}
	decode(t, resp, &finished)
	assert.Equal(t, storage.StudyCompleted, finished.SavingStudy.Status)
	assert.True(t, finished.SuggestedRate.IsSelected)
}

func TestGenerateUnknownStudyIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v2/saving-studies/9999/suggested-rates", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecostValidation(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	study, err := store.CreateSavingStudy(ctx, storage.SavingStudy{
		EnergyType: storage.EnergyElectricity,
		ClientType: "company",
		Status:     storage.StudyInProgress,
	})
	require.NoError(t, err)
	rows, err := store.ReplaceSuggestedRates(ctx, study.ID, []storage.SuggestedRate{{RateName: "x"}})
	require.NoError(t, err)

	url := fmt.Sprintf("%s/api/v2/saving-studies/%d/suggested-rates/%d", srv.URL, study.ID, rows[0].ID)

	// PATCH without the margin field is a 400 before the engine runs.
	req, err := http.NewRequest(http.MethodPatch, url, bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateMarginOverlapRejected(t *testing.T) {
	srv, _, rate := newTestServer(t)

	url := fmt.Sprintf("%s/api/v2/rates/%d/margins", srv.URL, rate.ID)
	resp := postJSON(t, url, storage.Margin{
		Type:           storage.MarginConsumeRange,
		MinConsumption: fp(1000), MaxConsumption: fp(2000),
		MinMargin: 3, MaxMargin: 5,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// An adjacent band above the seeded [500,30000] one is accepted.
	resp = postJSON(t, url, storage.Margin{
		Type:           storage.MarginConsumeRange,
		MinConsumption: fp(30001), MaxConsumption: fp(60000),
		MinMargin: 3, MaxMargin: 5,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRegulatedCostRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v2/regulated-costs/"+storage.CostCodeVAT,
		bytes.NewReader([]byte(`{"name":"IVA","amount":0.21}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cost storage.EnergyCost
	decode(t, resp, &cost)
	assert.Equal(t, storage.CostCodeVAT, cost.Code)
	assert.Equal(t, 0.21, cost.Amount)

	resp, err = http.Get(srv.URL + "/api/v2/regulated-costs")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var costs []storage.EnergyCost
	decode(t, resp, &costs)
	require.Len(t, costs, 1)
	assert.Equal(t, "IVA", costs[0].Name)
}
