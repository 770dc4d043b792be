package studies

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enermarket/backoffice/internal/storage"
)

// seedElectricityFixture builds the reference scenario: a 2.0TD study at
// 14891 kWh/year with 15.01 kW contracted, and one fixed_fixed candidate
// carrying a [500,30000] margin band at 7. With no regulated taxes and no
// commission seeded the candidate lands at ~3546.92 EUR.
func seedElectricityFixture(t *testing.T) (*storage.MemoryStorage, *storage.SavingStudy, storage.Rate) {
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

	study, err := store.CreateSavingStudy(context.Background(), storage.SavingStudy{
		ClientName:        "Acme SL",
		EnergyType:        storage.EnergyElectricity,
		ClientType:        "company",
		CurrentRateTypeID: &rt.ID,
		AnalyzedDays:      365,
		AnnualConsumption: 14891,
		ConsumptionP1:     fp(2124), ConsumptionP2: fp(2682), ConsumptionP3: fp(1807),
		ConsumptionP4: fp(2016), ConsumptionP5: fp(810), ConsumptionP6: fp(5452),
		Power1: fp(15.01), Power2: fp(15.01),
	})
	require.NoError(t, err)
	return store, study, rate
}

func TestGenerateSuggestionsEndToEnd(t *testing.T) {
	store, study, _ := seedElectricityFixture(t)
	svc := NewService(store)

	got, err := svc.GenerateSuggestions(context.Background(), study.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	sr := got[0]
	assert.Equal(t, "Iberluz Estable 2.0", sr.RateName)
	assert.Equal(t, "Iberluz", sr.MarketerName)
	assert.Equal(t, storage.MarginConsumeRange, sr.ProfitMarginType)
	assert.Equal(t, 7.0, sr.AppliedProfitMargin)
	assert.Equal(t, 0.0, sr.TheoreticalCommission)
	assert.Equal(t, 0.0, sr.TotalCommission)

	assert.InDelta(t, 1300.676, sr.EnergyCost, 0.01)
	assert.InDelta(t, 2246.25, sr.PowerCost, 0.01)
	assert.Equal(t, 0.0, sr.RegulatedTax1)
	assert.Equal(t, 0.0, sr.VATCost)
	assert.InDelta(t, 3546.92, sr.FinalCost, 0.01)

	assert.False(t, sr.IsSelected)
	assert.Nil(t, sr.SavingAbsolute)
}

func TestGenerateSuggestionsIdempotent(t *testing.T) {
	store, study, _ := seedElectricityFixture(t)
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.GenerateSuggestions(ctx, study.ID)
	require.NoError(t, err)
	second, err := svc.GenerateSuggestions(ctx, study.ID)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	assert.Equal(t, first[0].FinalCost, second[0].FinalCost)
	assert.Equal(t, first[0].AppliedProfitMargin, second[0].AppliedProfitMargin)

	// Prior rows were replaced, not appended.
	all, err := store.ListSuggestedRates(ctx, study.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGenerateSuggestionsValidation(t *testing.T) {
	store, study, _ := seedElectricityFixture(t)
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.GenerateSuggestions(ctx, 9999)
	assert.ErrorIs(t, err, ErrStudyNotFound)

	noType := *study
	noType.CurrentRateTypeID = nil
	require.NoError(t, store.UpdateSavingStudy(ctx, noType))
	_, err = svc.GenerateSuggestions(ctx, study.ID)
	assert.True(t, IsValidation(err), "missing rate type: got %v", err)

	missing := uint(4242)
	noType.CurrentRateTypeID = &missing
	require.NoError(t, store.UpdateSavingStudy(ctx, noType))
	_, err = svc.GenerateSuggestions(ctx, study.ID)
	assert.ErrorIs(t, err, ErrRateTypeNotFound)

	noPower := *study
	noPower.Power2 = nil
	require.NoError(t, store.UpdateSavingStudy(ctx, noPower))
	_, err = svc.GenerateSuggestions(ctx, study.ID)
	assert.True(t, IsValidation(err), "missing power_2: got %v", err)

	compare := *study
	compare.IsCompareConditions = true
	require.NoError(t, store.UpdateSavingStudy(ctx, compare))
	_, err = svc.GenerateSuggestions(ctx, study.ID)
	assert.True(t, IsValidation(err), "compare without energy_price_1: got %v", err)
}

func TestGenerateComputesSavings(t *testing.T) {
	store, study, _ := seedElectricityFixture(t)
	svc := NewService(store)
	ctx := context.Background()

	compare := *study
	compare.IsCompareConditions = true
	compare.EnergyPrice1 = fp(0.160)
	compare.EnergyPrice2 = fp(0.130)
	compare.EnergyPrice3 = fp(0.110)
	compare.EnergyPrice4 = fp(0.100)
	compare.EnergyPrice5 = fp(0.090)
	compare.EnergyPrice6 = fp(0.080)
	compare.PowerPrice1 = fp(0.35)
	compare.PowerPrice2 = fp(0.13)
	require.NoError(t, store.UpdateSavingStudy(ctx, compare))

	got, err := svc.GenerateSuggestions(ctx, study.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	sr := got[0]
	assert.Greater(t, sr.CurrentCost, sr.FinalCost, "current supply should cost more")
	require.NotNil(t, sr.SavingAbsolute)
	require.NotNil(t, sr.SavingRelative)
	assert.InDelta(t, sr.CurrentCost-sr.FinalCost, *sr.SavingAbsolute, 1e-9)
	assert.InDelta(t, *sr.SavingAbsolute/sr.CurrentCost*100, *sr.SavingRelative, 1e-9)
}

func TestFinishStudyKeepsExactlyOneSelected(t *testing.T) {
	store, study, rate := seedElectricityFixture(t)
	svc := NewService(store)
	ctx := context.Background()

	second := rate
	second.ID = 0
	second.Name = "Iberluz Flexible 2.0"
	second.EnergyPrice1 = fp(0.140)
	second.Margins = []storage.Margin{{
		Type:           storage.MarginConsumeRange,
		MinConsumption: fp(500), MaxConsumption: fp(30000),
		MinMargin: 5, MaxMargin: 9,
	}}
	store.SeedRate(second)

	got, err := svc.GenerateSuggestions(ctx, study.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	finished, selected, err := svc.FinishStudy(ctx, study.ID, got[0].ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StudyCompleted, finished.Status)
	assert.True(t, selected.IsSelected)
	assert.Equal(t, got[0].ID, selected.ID)

	remaining, err := store.ListSuggestedRates(ctx, study.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].IsSelected)
}

func TestFinishStudyUnknownSuggestion(t *testing.T) {
	store, study, _ := seedElectricityFixture(t)
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.GenerateSuggestions(ctx, study.ID)
	require.NoError(t, err)

	_, _, err = svc.FinishStudy(ctx, study.ID, 9999)
	assert.ErrorIs(t, err, ErrSuggestedRateNotFound)

	_, _, err = svc.FinishStudy(ctx, 9999, 1)
	assert.ErrorIs(t, err, ErrStudyNotFound)
}

func TestRecostFixedBase(t *testing.T) {
	store := storage.NewMemory()
	mk := store.SeedMarketer(storage.Marketer{Name: "GasNatura", IsActive: true})
	rt := store.SeedRateType(storage.RateType{Name: "Indexada", EnergyType: storage.EnergyElectricity, Enable: true})
	rate := store.SeedRate(storage.Rate{
		Name:        "GasNatura Base",
		MarketerID:  mk.ID,
		RateTypeID:  rt.ID,
		PriceType:   storage.PriceFixedBase,
		ClientTypes: "company",
		IsActive:    true,

		EnergyPrice1: fp(0.10),
		Margins: []storage.Margin{{
			Type:      storage.MarginRateType,
			MinMargin: 0.01, MaxMargin: 0.05,
		}},
	})
	store.SeedCommission(storage.Commission{Name: "base 10%", PercentageCommission: fp(10)}, rate.ID)

	ctx := context.Background()
	study, err := store.CreateSavingStudy(ctx, storage.SavingStudy{
		EnergyType:        storage.EnergyElectricity,
		ClientType:        "company",
		CurrentRateTypeID: &rt.ID,
		AnalyzedDays:      365,
		AnnualConsumption: 10000,
		ConsumptionP1:     fp(10000),
		Power1:            fp(10), Power2: fp(10),
	})
	require.NoError(t, err)

	svc := NewService(store)
	got, err := svc.GenerateSuggestions(ctx, study.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.01, got[0].AppliedProfitMargin)
	assert.InDelta(t, (0.10+0.01)*10000, got[0].EnergyCost, 1e-9)
	assert.InDelta(t, 10000*0.01*10/100, got[0].TheoreticalCommission, 1e-9)

	// Out-of-band margin is rejected before any recompute.
	_, err = svc.Recost(ctx, study.ID, got[0].ID, 0.2)
	assert.True(t, IsValidation(err), "got %v", err)

	sr, err := svc.Recost(ctx, study.ID, got[0].ID, 0.03)
	require.NoError(t, err)
	assert.Equal(t, 0.03, sr.AppliedProfitMargin)
	assert.InDelta(t, (0.10+0.03)*10000, sr.EnergyCost, 1e-9)
	assert.InDelta(t, 10000*0.03*10/100, sr.TheoreticalCommission, 1e-9)
	assert.InDelta(t, sr.TotalCost+sr.TheoreticalCommission, sr.FinalCost, 1e-9)

	stored, err := store.GetSuggestedRate(ctx, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, sr.FinalCost, stored.FinalCost)
}

func TestRecostVanishedRate(t *testing.T) {
	store, study, _ := seedElectricityFixture(t)
	svc := NewService(store)
	ctx := context.Background()

	rows, err := store.ReplaceSuggestedRates(ctx, study.ID, []storage.SuggestedRate{
		{RateName: "no longer in catalog"},
	})
	require.NoError(t, err)

	_, err = svc.Recost(ctx, study.ID, rows[0].ID, 0)
	assert.ErrorIs(t, err, ErrRateNotFound)
}

func TestGenerateOverflowAbortsBatch(t *testing.T) {
	store, study, rate := seedElectricityFixture(t)
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.GenerateSuggestions(ctx, study.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	huge := rate
	huge.ID = 0
	huge.Name = "Iberluz Rota"
	huge.Margins = nil
	huge.EnergyPrice1 = fp(1e9)
	store.SeedRate(huge)

	_, err = svc.GenerateSuggestions(ctx, study.ID)
	require.ErrorIs(t, err, storage.ErrNumericOverflow)

	// The failed batch left the previous suggestion set intact.
	remaining, err := store.ListSuggestedRates(ctx, study.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, first[0].ID, remaining[0].ID)
}
