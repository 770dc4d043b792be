package studies

import (
	"github.com/enermarket/backoffice/internal/storage"
)

// RequiredPower is the study's contracted power used for range checks:
// period 6 when set, else period 2, else zero.
func RequiredPower(study *storage.SavingStudy) float64 {
	if study.Power6 != nil {
		return *study.Power6
	}
	if study.Power2 != nil {
		return *study.Power2
	}
	return 0
}

// SelectCandidates filters the catalog rows down to the rates a study may
// be offered. An empty result means "no suggestions", not an error.
func SelectCandidates(rates []storage.Rate, study *storage.SavingStudy) []storage.Rate {
	var out []storage.Rate
	for _, r := range rates {
		if eligible(r, study) {
			out = append(out, r)
		}
	}
	return out
}

func eligible(r storage.Rate, study *storage.SavingStudy) bool {
	if r.DeletedAt.Valid || !r.IsActive {
		return false
	}
	if r.RateType == nil || r.RateType.DeletedAt.Valid || !r.RateType.Enable {
		return false
	}
	if study.CurrentRateTypeID == nil || r.RateTypeID != *study.CurrentRateTypeID {
		return false
	}
	if r.RateType.EnergyType != study.EnergyType {
		return false
	}
	if r.Marketer == nil || r.Marketer.DeletedAt.Valid || !r.Marketer.IsActive {
		return false
	}
	if !r.HasClientType(study.ClientType) {
		return false
	}

	switch {
	case study.EnergyType == storage.EnergyElectricity && r.PriceType == storage.PriceFixedFixed:
		return inRange(RequiredPower(study), r.MinPower, r.MaxPower)
	case study.EnergyType == storage.EnergyElectricity && r.PriceType == storage.PriceFixedBase:
		return true
	case study.EnergyType == storage.EnergyGas:
		return inRange(study.AnnualConsumption, r.MinConsumption, r.MaxConsumption)
	}
	return false
}

// inRange checks lo <= v <= hi with nil bounds open towards 0 and +inf.
func inRange(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return v >= 0
}
