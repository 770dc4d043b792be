package studies

import (
	"testing"

	"github.com/enermarket/backoffice/internal/storage"
)

func TestPercentageCommission(t *testing.T) {
	commissions := []storage.Commission{
		{PercentageCommission: fp(10)},
	}
	got := PercentageCommission(commissions, 3500, 0.02)
	if want := 3500 * 0.02 * 10 / 100; !almostEqual(got, want) {
		t.Errorf("commission = %v, want %v", got, want)
	}
}

func TestPercentageCommissionWithoutAttachment(t *testing.T) {
	if got := PercentageCommission(nil, 3500, 0.02); got != 0 {
		t.Errorf("commission = %v, want 0", got)
	}
	banded := []storage.Commission{{Amount: fp(30), RateTypeSegmentation: true}}
	if got := PercentageCommission(banded, 3500, 0.02); got != 0 {
		t.Errorf("banded-only commission = %v, want 0", got)
	}
}

func TestBandedCommissionSumsMatchingBands(t *testing.T) {
	commissions := []storage.Commission{
		{Amount: fp(30), RateTypeSegmentation: true, RangeType: storage.RangeConsumption, MinConsumption: fp(0), MaxConsumption: fp(20000)},
		{Amount: fp(20), RateTypeSegmentation: true, RangeType: storage.RangePower, MinPower: fp(10), MaxPower: fp(20)},
	}
	got := BandedCommission(commissions, 14891, 15.01)
	if !almostEqual(got, 50) {
		t.Errorf("commission = %v, want 50 (both bands match)", got)
	}
}

func TestBandedCommissionSkipsNonMatching(t *testing.T) {
	commissions := []storage.Commission{
		// Not segmented.
		{Amount: fp(30), RangeType: storage.RangeConsumption},
		// No flat amount.
		{RateTypeSegmentation: true, RangeType: storage.RangeConsumption, PercentageCommission: fp(5)},
		// Out of range.
		{Amount: fp(30), RateTypeSegmentation: true, RangeType: storage.RangeConsumption, MinConsumption: fp(20000)},
		{Amount: fp(20), RateTypeSegmentation: true, RangeType: storage.RangePower, MaxPower: fp(10)},
	}
	if got := BandedCommission(commissions, 14891, 15.01); got != 0 {
		t.Errorf("commission = %v, want 0", got)
	}
}
