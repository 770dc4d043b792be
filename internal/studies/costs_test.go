package studies

import (
	"math"
	"testing"

	"github.com/enermarket/backoffice/internal/storage"
)

func fp(v float64) *float64 { return &v }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestEnergyCostGapStopsSummation(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:    storage.EnergyElectricity,
		ConsumptionP1: fp(1), ConsumptionP2: fp(1), ConsumptionP3: nil,
		ConsumptionP4: fp(0), ConsumptionP5: fp(0), ConsumptionP6: fp(0),
	}
	p := PriceProfile{
		PriceType:    storage.PriceFixedFixed,
		EnergyPrices: [6]*float64{fp(1), fp(1), nil, fp(0), fp(0), fp(0)},
	}

	got := electricityCost{}.Compute(p, study, 0, false)
	if !almostEqual(got.Energy, 2.0) {
		t.Errorf("energy cost = %v, want 2.0", got.Energy)
	}
}

func TestEnergyCostStopsOnMissingConsumption(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:    storage.EnergyElectricity,
		ConsumptionP1: fp(1), ConsumptionP2: nil, ConsumptionP3: fp(1),
	}
	p := PriceProfile{
		PriceType:    storage.PriceFixedFixed,
		EnergyPrices: [6]*float64{fp(1), fp(1), fp(1), nil, nil, nil},
	}

	got := electricityCost{}.Compute(p, study, 0, false)
	if !almostEqual(got.Energy, 1.0) {
		t.Errorf("energy cost = %v, want 1.0 (period 3 unreachable)", got.Energy)
	}
}

func TestFixedBaseMarginAddedToUnitPrice(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:    storage.EnergyElectricity,
		ConsumptionP1: fp(100),
	}
	p := PriceProfile{
		PriceType:    storage.PriceFixedBase,
		EnergyPrices: [6]*float64{fp(1.0), nil, nil, nil, nil, nil},
	}

	got := electricityCost{}.Compute(p, study, 0.1, false)
	if !almostEqual(got.Energy, 110.0) {
		t.Errorf("energy cost = %v, want 110.0", got.Energy)
	}

	// fixed_fixed ignores the applied margin entirely.
	p.PriceType = storage.PriceFixedFixed
	got = electricityCost{}.Compute(p, study, 0.1, false)
	if !almostEqual(got.Energy, 100.0) {
		t.Errorf("fixed_fixed energy cost = %v, want 100.0", got.Energy)
	}
}

func TestPowerCostScalesByAnalyzedDays(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:   storage.EnergyElectricity,
		AnalyzedDays: 365,
		Power1:       fp(1), Power2: fp(1), Power3: fp(1),
		Power4: fp(1), Power5: fp(1), Power6: fp(1),
	}
	p := PriceProfile{
		PriceType:   storage.PriceFixedFixed,
		PowerPrices: [6]*float64{fp(1), fp(2), fp(3), fp(4), fp(5), fp(6)},
	}

	got := electricityCost{}.Compute(p, study, 0, false)
	if !almostEqual(got.Power, 7665) {
		t.Errorf("power cost = %v, want 7665", got.Power)
	}
}

func TestElectricityTaxCascade(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:    storage.EnergyElectricity,
		AnalyzedDays:  1,
		ConsumptionP1: fp(1000),
		Power1:        fp(10),
	}
	p := PriceProfile{
		PriceType:    storage.PriceFixedFixed,
		EnergyPrices: [6]*float64{fp(0.1), nil, nil, nil, nil, nil},
		PowerPrices:  [6]*float64{fp(1), nil, nil, nil, nil, nil},
	}
	taxes := TaxRates{Electricity: 0.0511, VAT: 0.21}

	got := electricityCost{taxes: taxes}.Compute(p, study, 0, false)

	base := 100.0 + 10.0 // energy + power
	wantTax := 0.0511 * base
	wantVAT := 0.21 * (base + wantTax)
	if !almostEqual(got.Tax1, wantTax) {
		t.Errorf("electricity tax = %v, want %v", got.Tax1, wantTax)
	}
	if !almostEqual(got.VAT, wantVAT) {
		t.Errorf("vat = %v, want %v (taxes on tax)", got.VAT, wantVAT)
	}
	if !almostEqual(got.Total, base+wantTax+wantVAT) {
		t.Errorf("total = %v, want %v", got.Total, base+wantTax+wantVAT)
	}
}

func TestGasCost(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:    storage.EnergyGas,
		AnalyzedDays:  365,
		ConsumptionP1: fp(5000),
	}
	p := PriceProfile{
		PriceType:      storage.PriceFixedFixed,
		EnergyPrices:   [6]*float64{fp(0.06), nil, nil, nil, nil, nil},
		FixedTermPrice: fp(0.05),
	}
	taxes := TaxRates{VAT: 0.21, Hydrocarbon: 0.00234}

	got := gasCost{taxes: taxes}.Compute(p, study, 0, false)

	if !almostEqual(got.Energy, 300) {
		t.Errorf("energy = %v, want 300", got.Energy)
	}
	if !almostEqual(got.Fixed, 18.25) {
		t.Errorf("fixed = %v, want 18.25", got.Fixed)
	}
	wantTax := 0.00234 * 5000
	if !almostEqual(got.Tax1, wantTax) {
		t.Errorf("hydrocarbon tax = %v, want %v", got.Tax1, wantTax)
	}
	wantVAT := 0.21 * (300 + 18.25 + wantTax)
	if !almostEqual(got.VAT, wantVAT) {
		t.Errorf("vat = %v, want %v", got.VAT, wantVAT)
	}
}

func TestGasIgnoresLaterPeriods(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:    storage.EnergyGas,
		ConsumptionP1: fp(100), ConsumptionP2: fp(999),
	}
	p := PriceProfile{
		PriceType:    storage.PriceFixedFixed,
		EnergyPrices: [6]*float64{fp(1), fp(1), nil, nil, nil, nil},
	}

	got := gasCost{}.Compute(p, study, 0, false)
	if !almostEqual(got.Energy, 100) {
		t.Errorf("energy = %v, want 100 (period 1 only)", got.Energy)
	}
}

func TestOtherChargesForCandidate(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:    storage.EnergyElectricity,
		ClientType:    "company",
		AnalyzedDays:  365,
		ConsumptionP1: fp(600), ConsumptionP2: fp(400),
		Power2: fp(15),
	}
	charges := []storage.OtherCost{
		{Type: storage.ChargeEurMonth, Quantity: 2, Mandatory: true, IsActive: true, ClientTypes: "company"},
		{Type: storage.ChargeEurKWh, Quantity: 0.01, Mandatory: true, IsActive: true, ClientTypes: "company"},
		{Type: storage.ChargePercentage, Quantity: 0.05, Mandatory: true, IsActive: true, ClientTypes: "company"},
		// None of these may contribute.
		{Type: storage.ChargeEurMonth, Quantity: 100, Mandatory: false, IsActive: true, ClientTypes: "company"},
		{Type: storage.ChargeEurMonth, Quantity: 100, Mandatory: true, IsActive: false, ClientTypes: "company"},
		{Type: storage.ChargeEurMonth, Quantity: 100, Mandatory: true, IsActive: true, ClientTypes: "particular"},
		{Type: storage.ChargeEurMonth, Quantity: 100, Mandatory: true, IsActive: true, ClientTypes: "company", MinPower: fp(20)},
	}

	got := otherChargesCost(PriceProfile{}, study, charges, 800, 200, false)

	want := 365/daysPerMonth*2 + 1000*0.01 + (800+200)*0.05
	if !almostEqual(got, want) {
		t.Errorf("other charges = %v, want %v", got, want)
	}
}

func TestOtherChargesForCurrentSupply(t *testing.T) {
	study := &storage.SavingStudy{
		EnergyType:   storage.EnergyElectricity,
		AnalyzedDays: 365,
		ConsumptionP1: fp(500), ConsumptionP2: fp(500),
	}
	p := PriceProfile{
		EurMonthCharge:   fp(3),
		KWhCharge:        fp(0.02),
		PercentageCharge: fp(0.1),
	}

	got := otherChargesCost(p, study, nil, 700, 300, true)

	want := 365/daysPerMonth*3 + 1000*0.02 + 1000*0.1
	if !almostEqual(got, want) {
		t.Errorf("current charges = %v, want %v", got, want)
	}
}

func TestTotalConsumptionIgnoresGaps(t *testing.T) {
	study := &storage.SavingStudy{
		ConsumptionP1: fp(100), ConsumptionP2: nil, ConsumptionP3: fp(50),
	}
	if got := totalConsumption(study); !almostEqual(got, 150) {
		t.Errorf("total consumption = %v, want 150", got)
	}
}
