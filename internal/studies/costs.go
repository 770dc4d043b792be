package studies

import (
	"context"

	"github.com/enermarket/backoffice/internal/storage"
)

// daysPerMonth converts an analyzed period in days to months for the
// eur/month surcharge formula.
const daysPerMonth = 30.4167

// TaxRates are the regulated cost constants a calculation run needs.
// Rates are multiplicative (0.21 for 21% VAT); the hydrocarbon tax is an
// absolute EUR/kWh rate. A missing catalog row means a rate of zero.
type TaxRates struct {
	VAT         float64
	Hydrocarbon float64
	Electricity float64
}

// LoadTaxRates reads the regulated cost catalog once per generation run.
func LoadTaxRates(ctx context.Context, st storage.Storage) (TaxRates, error) {
	var rates TaxRates
	for _, entry := range []struct {
		code string
		dst  *float64
	}{
		{storage.CostCodeVAT, &rates.VAT},
		{storage.CostCodeHydrocarbon, &rates.Hydrocarbon},
		{storage.CostCodeElectricity, &rates.Electricity},
	} {
		c, err := st.GetEnergyCostByCode(ctx, entry.code)
		if err != nil {
			return TaxRates{}, err
		}
		if c != nil {
			*entry.dst = c.Amount
		}
	}
	return rates, nil
}

// PriceProfile is the price side of a cost computation: either a candidate
// rate's prices or the study's own current-supply prices.
type PriceProfile struct {
	PriceType      string
	EnergyPrices   [6]*float64
	PowerPrices    [6]*float64
	FixedTermPrice *float64

	// Current-supply surcharges, used when useCurrentCharges is set.
	EurMonthCharge   *float64
	KWhCharge        *float64
	PercentageCharge *float64
}

// RateProfile builds the profile for a candidate rate.
func RateProfile(r storage.Rate) PriceProfile {
	return PriceProfile{
		PriceType:      r.PriceType,
		EnergyPrices:   [6]*float64{r.EnergyPrice1, r.EnergyPrice2, r.EnergyPrice3, r.EnergyPrice4, r.EnergyPrice5, r.EnergyPrice6},
		PowerPrices:    [6]*float64{r.PowerPrice1, r.PowerPrice2, r.PowerPrice3, r.PowerPrice4, r.PowerPrice5, r.PowerPrice6},
		FixedTermPrice: r.FixedTermPrice,
	}
}

// CurrentProfile builds the profile for the study's current supply.
func CurrentProfile(s storage.SavingStudy) PriceProfile {
	return PriceProfile{
		PriceType:        storage.PriceFixedFixed,
		EnergyPrices:     [6]*float64{s.EnergyPrice1, s.EnergyPrice2, s.EnergyPrice3, s.EnergyPrice4, s.EnergyPrice5, s.EnergyPrice6},
		PowerPrices:      [6]*float64{s.PowerPrice1, s.PowerPrice2, s.PowerPrice3, s.PowerPrice4, s.PowerPrice5, s.PowerPrice6},
		FixedTermPrice:   s.FixedPrice,
		EurMonthCharge:   s.OtherCostEurMonth,
		KWhCharge:        s.OtherCostKWh,
		PercentageCharge: s.OtherCostPercentage,
	}
}

// CostBreakdown is one computed annual cost. Electricity populates Power,
// gas populates Fixed; Tax1 is the electricity or hydrocarbon tax, Tax2
// is reserved.
type CostBreakdown struct {
	Energy float64
	Power  float64
	Fixed  float64
	Other  float64
	Tax1   float64
	Tax2   float64
	VAT    float64
	Total  float64
}

// costCalculator computes a cost breakdown for one price profile against
// one study. There are exactly two implementations, one per energy type.
type costCalculator interface {
	Compute(p PriceProfile, study *storage.SavingStudy, appliedMargin float64, useCurrentCharges bool) CostBreakdown
}

// calculatorFor selects the calculator for the study's energy type.
// charges are the surcharges attached to the candidate rate; pass nil
// when computing the study's current cost.
func calculatorFor(energyType string, taxes TaxRates, charges []storage.OtherCost) costCalculator {
	if energyType == storage.EnergyGas {
		return gasCost{taxes: taxes, charges: charges}
	}
	return electricityCost{taxes: taxes, charges: charges}
}

type electricityCost struct {
	taxes   TaxRates
	charges []storage.OtherCost
}

func (e electricityCost) Compute(p PriceProfile, study *storage.SavingStudy, appliedMargin float64, useCurrentCharges bool) CostBreakdown {
	consumptions := [6]*float64{
		study.ConsumptionP1, study.ConsumptionP2, study.ConsumptionP3,
		study.ConsumptionP4, study.ConsumptionP5, study.ConsumptionP6,
	}
	powers := [6]*float64{
		study.Power1, study.Power2, study.Power3,
		study.Power4, study.Power5, study.Power6,
	}

	margin := 0.0
	if p.PriceType == storage.PriceFixedBase {
		margin = appliedMargin
	}

	// Periods are processed in order; the first absent price or
	// consumption ends the summation, later periods are not resumed.
	energy := 0.0
	for i := 0; i < 6; i++ {
		if p.EnergyPrices[i] == nil || consumptions[i] == nil {
			break
		}
		energy += (*p.EnergyPrices[i] + margin) * *consumptions[i]
	}

	power := 0.0
	for i := 0; i < 6; i++ {
		if p.PowerPrices[i] == nil || powers[i] == nil {
			break
		}
		power += *p.PowerPrices[i] * *powers[i]
	}
	power *= study.AnalyzedDays

	other := otherChargesCost(p, study, e.charges, energy, power, useCurrentCharges)

	tax := e.taxes.Electricity * (energy + power + other)
	vat := e.taxes.VAT * (energy + power + other + tax)

	return CostBreakdown{
		Energy: energy,
		Power:  power,
		Other:  other,
		Tax1:   tax,
		VAT:    vat,
		Total:  energy + power + other + tax + vat,
	}
}

type gasCost struct {
	taxes   TaxRates
	charges []storage.OtherCost
}

func (g gasCost) Compute(p PriceProfile, study *storage.SavingStudy, appliedMargin float64, useCurrentCharges bool) CostBreakdown {
	margin := 0.0
	if p.PriceType == storage.PriceFixedBase {
		margin = appliedMargin
	}

	// Gas only ever uses period 1.
	energy := 0.0
	if p.EnergyPrices[0] != nil && study.ConsumptionP1 != nil {
		energy = (*p.EnergyPrices[0] + margin) * *study.ConsumptionP1
	}

	fixed := 0.0
	if p.FixedTermPrice != nil {
		fixed = *p.FixedTermPrice * study.AnalyzedDays
	}

	other := otherChargesCost(p, study, g.charges, energy, fixed, useCurrentCharges)

	tax := 0.0
	if study.ConsumptionP1 != nil {
		tax = g.taxes.Hydrocarbon * *study.ConsumptionP1
	}
	vat := g.taxes.VAT * (energy + fixed + other + tax)

	return CostBreakdown{
		Energy: energy,
		Fixed:  fixed,
		Other:  other,
		Tax1:   tax,
		VAT:    vat,
		Total:  energy + fixed + other + tax + vat,
	}
}

// otherChargesCost computes the surcharge total. For the current supply it
// maps the study's own three fixed quantities by charge type; for a
// candidate it sums every attached charge that applies to the study. The
// percentage formula's base is energy+power for electricity and
// energy+fixed for gas, so the caller passes the counterpart term.
func otherChargesCost(p PriceProfile, study *storage.SavingStudy, charges []storage.OtherCost, energy, counterpart float64, useCurrentCharges bool) float64 {
	base := energy + counterpart

	if useCurrentCharges {
		total := 0.0
		if p.EurMonthCharge != nil {
			total += study.AnalyzedDays / daysPerMonth * *p.EurMonthCharge
		}
		if p.KWhCharge != nil {
			total += totalConsumption(study) * *p.KWhCharge
		}
		if p.PercentageCharge != nil {
			total += base * *p.PercentageCharge
		}
		return total
	}

	total := 0.0
	for _, c := range charges {
		if !chargeApplies(c, study) {
			continue
		}
		switch c.Type {
		case storage.ChargeEurMonth:
			total += study.AnalyzedDays / daysPerMonth * c.Quantity
		case storage.ChargeEurKWh:
			total += totalConsumption(study) * c.Quantity
		case storage.ChargePercentage:
			total += base * c.Quantity
		}
	}
	return total
}

// chargeApplies filters a candidate's surcharges: only active, mandatory
// charges matching the study's segment and power contribute to cost.
func chargeApplies(c storage.OtherCost, study *storage.SavingStudy) bool {
	if c.DeletedAt.Valid || !c.IsActive || !c.Mandatory {
		return false
	}
	if !c.HasClientType(study.ClientType) {
		return false
	}
	return inRange(RequiredPower(study), c.MinPower, c.MaxPower)
}

// totalConsumption sums every populated consumption period. Unlike the
// energy summation, a gap does not stop it.
func totalConsumption(study *storage.SavingStudy) float64 {
	total := 0.0
	for _, c := range []*float64{
		study.ConsumptionP1, study.ConsumptionP2, study.ConsumptionP3,
		study.ConsumptionP4, study.ConsumptionP5, study.ConsumptionP6,
	} {
		if c != nil {
			total += *c
		}
	}
	return total
}
