package studies

import (
	"context"
	"fmt"
	"log"

	"github.com/enermarket/backoffice/internal/storage"
)

// Notifier receives study lifecycle events. Delivery is best-effort; the
// engine never fails a request on a notification error.
type Notifier interface {
	StudyCompleted(ctx context.Context, study *storage.SavingStudy, selected *storage.SuggestedRate)
}

// Service runs the saving-study engine: candidate selection, cost and
// commission computation and suggestion persistence.
type Service struct {
	store    storage.Storage
	notifier Notifier // may be nil
}

// NewService returns a Service without notifications.
func NewService(st storage.Storage) *Service {
	return &Service{store: st}
}

// NewServiceWithNotifier returns a Service that reports completed studies.
func NewServiceWithNotifier(st storage.Storage, n Notifier) *Service {
	return &Service{store: st, notifier: n}
}

// GenerateSuggestions recomputes the suggestion set for a study. Existing
// suggestions are replaced in one transaction; re-running with unchanged
// inputs yields the same set.
func (s *Service) GenerateSuggestions(ctx context.Context, studyID uint) ([]storage.SuggestedRate, error) {
	study, err := s.store.GetSavingStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, ErrStudyNotFound
	}

	if study.CurrentRateTypeID == nil {
		return nil, &ValidationError{Field: "current_rate_type_id", Reason: "a rate type must be chosen before generating suggestions"}
	}
	rt, err := s.store.GetRateType(ctx, *study.CurrentRateTypeID)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, ErrRateTypeNotFound
	}
	if study.EnergyType == storage.EnergyElectricity && (study.Power1 == nil || study.Power2 == nil) {
		return nil, &ValidationError{Field: "power", Reason: "electricity studies require power_1 and power_2"}
	}
	if study.IsCompareConditions && study.EnergyPrice1 == nil {
		return nil, &ValidationError{Field: "energy_price_1", Reason: "comparing current conditions requires the current energy price"}
	}

	taxes, err := LoadTaxRates(ctx, s.store)
	if err != nil {
		return nil, err
	}

	currentCost := 0.0
	if study.IsCompareConditions {
		calc := calculatorFor(study.EnergyType, taxes, nil)
		currentCost = calc.Compute(CurrentProfile(*study), study, 0, true).Total
	}

	rates, err := s.store.ListRatesForType(ctx, *study.CurrentRateTypeID)
	if err != nil {
		return nil, err
	}
	candidates := SelectCandidates(rates, study)

	rows := make([]storage.SuggestedRate, 0, len(candidates))
	for _, rate := range candidates {
		row, err := s.buildSuggestion(ctx, study, rate, taxes, currentCost)
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", rate.Name, err)
		}
		rows = append(rows, row)
	}

	return s.store.ReplaceSuggestedRates(ctx, studyID, rows)
}

func (s *Service) buildSuggestion(ctx context.Context, study *storage.SavingStudy, rate storage.Rate, taxes TaxRates, currentCost float64) (storage.SuggestedRate, error) {
	commissions, err := s.store.ListCommissionsForRate(ctx, rate.ID)
	if err != nil {
		return storage.SuggestedRate{}, err
	}
	charges, err := s.store.ListOtherCostsForRate(ctx, rate.ID)
	if err != nil {
		return storage.SuggestedRate{}, err
	}

	margin := ResolveMargin(rate.Margins, study)
	applied := AppliedMargin(margin)

	commission := s.commissionFor(rate, commissions, study, applied)
	cost := calculatorFor(study.EnergyType, taxes, charges).
		Compute(RateProfile(rate), study, applied, false)
	finalCost := cost.Total + commission

	// Extra fees sum over every attached charge, eligible or not.
	otherFees := 0.0
	for _, c := range charges {
		if c.ExtraFee != nil {
			otherFees += *c.ExtraFee
		}
	}

	row := storage.SuggestedRate{
		SavingStudyID: study.ID,
		RateName:      rate.Name,

		Permanency:          rate.Permanency,
		Length:              rate.Length,
		CompensationSurplus: rate.CompensationSurplus,

		AppliedProfitMargin: applied,

		EnergyPrice1: rate.EnergyPrice1,
		EnergyPrice2: rate.EnergyPrice2,
		EnergyPrice3: rate.EnergyPrice3,
		EnergyPrice4: rate.EnergyPrice4,
		EnergyPrice5: rate.EnergyPrice5,
		EnergyPrice6: rate.EnergyPrice6,

		PowerPrice1: rate.PowerPrice1,
		PowerPrice2: rate.PowerPrice2,
		PowerPrice3: rate.PowerPrice3,
		PowerPrice4: rate.PowerPrice4,
		PowerPrice5: rate.PowerPrice5,
		PowerPrice6: rate.PowerPrice6,

		FixedTermPrice: rate.FixedTermPrice,

		EnergyCost:     cost.Energy,
		PowerCost:      cost.Power,
		FixedCost:      cost.Fixed,
		OtherCostsCost: cost.Other,
		RegulatedTax1:  cost.Tax1,
		RegulatedTax2:  cost.Tax2,
		VATCost:        cost.VAT,
		TotalCost:      cost.Total,
		FinalCost:      finalCost,

		TheoreticalCommission: commission,
		OtherCostsCommission:  otherFees,
		TotalCommission:       commission + otherFees,

		CurrentCost: currentCost,
	}

	if rate.Marketer != nil {
		row.MarketerName = rate.Marketer.Name
	}
	if rate.IsFullRenewable != nil {
		row.IsFullRenewable = *rate.IsFullRenewable
	}
	if margin != nil {
		row.ProfitMarginType = margin.Type
		row.MinProfitMargin = margin.MinMargin
		row.MaxProfitMargin = margin.MaxMargin
	}

	if study.IsCompareConditions && currentCost != 0 {
		abs := currentCost - finalCost
		rel := abs / currentCost * 100
		row.SavingAbsolute = &abs
		row.SavingRelative = &rel
	}

	return row, nil
}

func (s *Service) commissionFor(rate storage.Rate, commissions []storage.Commission, study *storage.SavingStudy, applied float64) float64 {
	if rate.PriceType == storage.PriceFixedBase {
		return PercentageCommission(commissions, study.AnnualConsumption, applied)
	}
	return BandedCommission(commissions, study.AnnualConsumption, RequiredPower(study))
}

// FinishStudy selects one suggestion as the winner, deletes its siblings
// and marks the study completed.
func (s *Service) FinishStudy(ctx context.Context, studyID, suggestedRateID uint) (*storage.SavingStudy, *storage.SuggestedRate, error) {
	study, err := s.store.GetSavingStudy(ctx, studyID)
	if err != nil {
		return nil, nil, err
	}
	if study == nil {
		return nil, nil, ErrStudyNotFound
	}

	study, selected, err := s.store.SelectSuggestedRate(ctx, studyID, suggestedRateID)
	if err != nil {
		return nil, nil, err
	}
	if study == nil || selected == nil {
		return nil, nil, ErrSuggestedRateNotFound
	}

	if s.notifier != nil {
		s.notifier.StudyCompleted(ctx, study, selected)
	}
	return study, selected, nil
}

// Recost recomputes one suggestion with a salesperson-chosen margin. The
// margin must stay inside the band recorded on the suggestion, and the
// originating rate (matched by name) must still exist in the catalog.
func (s *Service) Recost(ctx context.Context, studyID, suggestedRateID uint, appliedMargin float64) (*storage.SuggestedRate, error) {
	study, err := s.store.GetSavingStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, ErrStudyNotFound
	}
	sr, err := s.store.GetSuggestedRate(ctx, suggestedRateID)
	if err != nil {
		return nil, err
	}
	if sr == nil || sr.SavingStudyID != studyID {
		return nil, ErrSuggestedRateNotFound
	}
	if appliedMargin < sr.MinProfitMargin || appliedMargin > sr.MaxProfitMargin {
		return nil, &ValidationError{
			Field:  "applied_profit_margin",
			Reason: fmt.Sprintf("must be between %g and %g", sr.MinProfitMargin, sr.MaxProfitMargin),
		}
	}

	rate, err := s.store.GetRateByName(ctx, sr.RateName)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, ErrRateNotFound
	}

	commissions, err := s.store.ListCommissionsForRate(ctx, rate.ID)
	if err != nil {
		return nil, err
	}
	charges, err := s.store.ListOtherCostsForRate(ctx, rate.ID)
	if err != nil {
		return nil, err
	}
	taxes, err := LoadTaxRates(ctx, s.store)
	if err != nil {
		return nil, err
	}

	commission := s.commissionFor(*rate, commissions, study, appliedMargin)
	cost := calculatorFor(study.EnergyType, taxes, charges).
		Compute(RateProfile(*rate), study, appliedMargin, false)
	finalCost := cost.Total + commission

	otherFees := 0.0
	for _, c := range charges {
		if c.ExtraFee != nil {
			otherFees += *c.ExtraFee
		}
	}

	sr.AppliedProfitMargin = appliedMargin
	sr.EnergyCost = cost.Energy
	sr.PowerCost = cost.Power
	sr.FixedCost = cost.Fixed
	sr.OtherCostsCost = cost.Other
	sr.RegulatedTax1 = cost.Tax1
	sr.RegulatedTax2 = cost.Tax2
	sr.VATCost = cost.VAT
	sr.TotalCost = cost.Total
	sr.FinalCost = finalCost
	sr.TheoreticalCommission = commission
	sr.OtherCostsCommission = otherFees
	sr.TotalCommission = commission + otherFees

	sr.SavingAbsolute = nil
	sr.SavingRelative = nil
	if study.IsCompareConditions && sr.CurrentCost != 0 {
		abs := sr.CurrentCost - finalCost
		rel := abs / sr.CurrentCost * 100
		sr.SavingAbsolute = &abs
		sr.SavingRelative = &rel
	}

	if err := s.store.UpdateSuggestedRate(ctx, *sr); err != nil {
		return nil, err
	}
	log.Printf("studies: recosted suggestion %d for study %d margin=%g", sr.ID, studyID, appliedMargin)
	return sr, nil
}

// ListSuggestions returns the current suggestion set, cheapest first.
func (s *Service) ListSuggestions(ctx context.Context, studyID uint) ([]storage.SuggestedRate, error) {
	study, err := s.store.GetSavingStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, ErrStudyNotFound
	}
	return s.store.ListSuggestedRates(ctx, studyID)
}
