package studies

import (
	"github.com/enermarket/backoffice/internal/storage"
)

// PercentageCommission computes the commission for a fixed_base rate:
// a flat percentage of the margin volume (annual consumption times the
// applied margin). A rate with no attached commission earns nothing.
func PercentageCommission(commissions []storage.Commission, annualConsumption, appliedMargin float64) float64 {
	pct := 0.0
	for _, c := range commissions {
		if c.PercentageCommission != nil {
			pct = *c.PercentageCommission
			break
		}
	}
	return annualConsumption * appliedMargin * pct / 100
}

// BandedCommission computes the commission for a fixed_fixed rate: every
// segmented band whose consumption or power range contains the study's
// value contributes its flat amount. Several bands may match at once and
// their contributions sum.
func BandedCommission(commissions []storage.Commission, annualConsumption, requiredPower float64) float64 {
	total := 0.0
	for _, c := range commissions {
		if !c.RateTypeSegmentation || c.Amount == nil {
			continue
		}
		switch c.RangeType {
		case storage.RangeConsumption:
			if inRange(annualConsumption, c.MinConsumption, c.MaxConsumption) {
				total += *c.Amount
			}
		case storage.RangePower:
			if inRange(requiredPower, c.MinPower, c.MaxPower) {
				total += *c.Amount
			}
		}
	}
	return total
}
