package studies

import (
	"testing"

	"github.com/enermarket/backoffice/internal/storage"
)

func activeMarketer() *storage.Marketer {
	return &storage.Marketer{ID: 1, Name: "Iberluz", IsActive: true}
}

func electricityRateType(id uint) *storage.RateType {
	return &storage.RateType{ID: id, Name: "2.0TD", EnergyType: storage.EnergyElectricity, Enable: true}
}

func baseRate(rt *storage.RateType) storage.Rate {
	return storage.Rate{
		ID:          10,
		Name:        "Iberluz Estable",
		RateTypeID:  rt.ID,
		PriceType:   storage.PriceFixedFixed,
		ClientTypes: "company,particular",
		IsActive:    true,
		Marketer:    activeMarketer(),
		RateType:    rt,
	}
}

func TestRequiredPowerPrefersPeriodSix(t *testing.T) {
	s := &storage.SavingStudy{Power2: fp(10), Power6: fp(40)}
	if got := RequiredPower(s); got != 40 {
		t.Errorf("RequiredPower = %v, want 40", got)
	}
	s.Power6 = nil
	if got := RequiredPower(s); got != 10 {
		t.Errorf("RequiredPower = %v, want 10", got)
	}
	if got := RequiredPower(&storage.SavingStudy{}); got != 0 {
		t.Errorf("RequiredPower = %v, want 0", got)
	}
}

func TestCandidateExcludedByClientSegment(t *testing.T) {
	rt := electricityRateType(1)
	rtID := rt.ID
	study := &storage.SavingStudy{
		EnergyType:        storage.EnergyElectricity,
		ClientType:        "company",
		CurrentRateTypeID: &rtID,
		Power2:            fp(10),
	}

	r := baseRate(rt)
	r.ClientTypes = "particular"
	if got := SelectCandidates([]storage.Rate{r}, study); len(got) != 0 {
		t.Errorf("particular-only rate offered to a company study")
	}

	r.ClientTypes = "company"
	if got := SelectCandidates([]storage.Rate{r}, study); len(got) != 1 {
		t.Errorf("company rate not offered to a company study")
	}
}

func TestCandidatePowerRangeForFixedFixed(t *testing.T) {
	rt := electricityRateType(1)
	rtID := rt.ID
	study := &storage.SavingStudy{
		EnergyType:        storage.EnergyElectricity,
		ClientType:        "company",
		CurrentRateTypeID: &rtID,
		Power2:            fp(15.01),
	}

	r := baseRate(rt)
	r.MinPower, r.MaxPower = fp(10), fp(50)
	if got := SelectCandidates([]storage.Rate{r}, study); len(got) != 1 {
		t.Fatalf("rate with containing power range excluded")
	}

	r.MaxPower = fp(15)
	if got := SelectCandidates([]storage.Rate{r}, study); len(got) != 0 {
		t.Errorf("rate with power above max_power offered")
	}
}

func TestFixedBaseSkipsPowerRange(t *testing.T) {
	rt := electricityRateType(1)
	rtID := rt.ID
	study := &storage.SavingStudy{
		EnergyType:        storage.EnergyElectricity,
		ClientType:        "company",
		CurrentRateTypeID: &rtID,
		Power2:            fp(100),
	}

	r := baseRate(rt)
	r.PriceType = storage.PriceFixedBase
	r.MinPower, r.MaxPower = fp(0), fp(10)
	if got := SelectCandidates([]storage.Rate{r}, study); len(got) != 1 {
		t.Errorf("fixed_base rate filtered by power range")
	}
}

func TestGasCandidateRequiresConsumptionContainment(t *testing.T) {
	rt := &storage.RateType{ID: 2, Name: "RL.1", EnergyType: storage.EnergyGas, Enable: true}
	rtID := rt.ID
	r := baseRate(rt)
	r.RateTypeID = rt.ID
	r.RateType = rt
	r.MinConsumption, r.MaxConsumption = fp(100), fp(10000)

	study := &storage.SavingStudy{
		EnergyType:        storage.EnergyGas,
		ClientType:        "company",
		CurrentRateTypeID: &rtID,
		AnnualConsumption: 10,
	}
	if got := SelectCandidates([]storage.Rate{r}, study); len(got) != 0 {
		t.Errorf("gas rate offered below its consumption range")
	}

	study.AnnualConsumption = 1000
	if got := SelectCandidates([]storage.Rate{r}, study); len(got) != 1 {
		t.Errorf("gas rate excluded inside its consumption range")
	}
}

func TestCandidateExcludedByCatalogState(t *testing.T) {
	rt := electricityRateType(1)
	rtID := rt.ID
	study := &storage.SavingStudy{
		EnergyType:        storage.EnergyElectricity,
		ClientType:        "company",
		CurrentRateTypeID: &rtID,
		Power2:            fp(10),
	}

	inactive := baseRate(rt)
	inactive.IsActive = false

	disabledType := baseRate(rt)
	disabledType.RateType = &storage.RateType{ID: 1, EnergyType: storage.EnergyElectricity, Enable: false}

	inactiveMarketer := baseRate(rt)
	inactiveMarketer.Marketer = &storage.Marketer{ID: 1, IsActive: false}

	otherType := baseRate(rt)
	otherType.RateTypeID = 99

	wrongEnergy := baseRate(rt)
	wrongEnergy.RateType = &storage.RateType{ID: 1, EnergyType: storage.EnergyGas, Enable: true}

	got := SelectCandidates([]storage.Rate{inactive, disabledType, inactiveMarketer, otherType, wrongEnergy}, study)
	if len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}
}
