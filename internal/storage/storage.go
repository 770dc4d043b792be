package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNumericOverflow is returned when a computed suggestion value exceeds
// the precision of its storage column during a bulk insert. The whole
// batch is rolled back.
var ErrNumericOverflow = errors.New("numeric_field_overflow")

// ErrOverlappingMargin is returned when a consume_range margin band would
// overlap another active band on the same rate.
var ErrOverlappingMargin = errors.New("overlapping margin consumption range")

// Storage abstracts persistence for the rate catalog, saving studies and
// the ambient platform records. Lookups return (nil, nil) when the row
// does not exist.
type Storage interface {
	// Rate catalog
	GetRateType(ctx context.Context, id uint) (*RateType, error)
	ListRatesForType(ctx context.Context, rateTypeID uint) ([]Rate, error)
	GetRateByName(ctx context.Context, name string) (*Rate, error)
	UpsertRate(ctx context.Context, r Rate) error
	ListCommissionsForRate(ctx context.Context, rateID uint) ([]Commission, error)
	ListOtherCostsForRate(ctx context.Context, rateID uint) ([]OtherCost, error)
	CreateMargin(ctx context.Context, m Margin) (*Margin, error)
	GetEnergyCostByCode(ctx context.Context, code string) (*EnergyCost, error)
	ListEnergyCosts(ctx context.Context) ([]EnergyCost, error)
	UpsertEnergyCost(ctx context.Context, c EnergyCost) error

	// Saving studies
	GetSavingStudy(ctx context.Context, id uint) (*SavingStudy, error)
	CreateSavingStudy(ctx context.Context, s SavingStudy) (*SavingStudy, error)
	UpdateSavingStudy(ctx context.Context, s SavingStudy) error
	// DeleteSavingStudy soft-deletes a study. Its suggestions stay
	// behind until the cleanup job purges them.
	DeleteSavingStudy(ctx context.Context, id uint) error

	// Suggested rates
	ListSuggestedRates(ctx context.Context, studyID uint) ([]SuggestedRate, error)
	GetSuggestedRate(ctx context.Context, id uint) (*SuggestedRate, error)
	UpdateSuggestedRate(ctx context.Context, sr SuggestedRate) error
	// ReplaceSuggestedRates atomically deletes the study's existing
	// suggestions and inserts the new batch. On ErrNumericOverflow the
	// prior set is left intact.
	ReplaceSuggestedRates(ctx context.Context, studyID uint, rows []SuggestedRate) ([]SuggestedRate, error)
	// SelectSuggestedRate marks one suggestion selected, deletes its
	// siblings and completes the study, all in one transaction. Returns
	// (nil, nil, nil) when either row is missing or mismatched.
	SelectSuggestedRate(ctx context.Context, studyID, suggestedRateID uint) (*SavingStudy, *SuggestedRate, error)
	// PurgeOrphanSuggestedRates removes suggestions whose study has been
	// soft-deleted. Used by the cleanup job.
	PurgeOrphanSuggestedRates(ctx context.Context) (int64, error)

	// Users & tokens
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, user User) error
	ListUsers(ctx context.Context) ([]User, error)
	CreateToken(ctx context.Context, token Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	DeleteToken(ctx context.Context, id string) error
	DeleteExpiredTokens(ctx context.Context) (int64, error)
	UpdateTokenLastUsed(ctx context.Context, id string) error

	// Casbin rules
	LoadCasbinRules(ctx context.Context) ([]CasbinRule, error)
	AddCasbinRule(ctx context.Context, rule CasbinRule) error
	RemoveCasbinRule(ctx context.Context, rule CasbinRule) error

	// Email config
	GetEmailConfig(ctx context.Context) (*EmailConfig, error)
	SaveEmailConfig(ctx context.Context, config EmailConfig) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Scheduled jobs & locking
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	Ping(ctx context.Context) error
	Close() error
}

const maxBand = 1e18

// marginsOverlap reports whether two consume_range bands intersect. Open
// ends extend the band to zero or +inf respectively.
func marginsOverlap(a, b Margin) bool {
	if a.Type != MarginConsumeRange || b.Type != MarginConsumeRange {
		return false
	}
	aMin, aMax := bandBounds(a)
	bMin, bMax := bandBounds(b)
	return aMin <= bMax && bMin <= aMax
}

func bandBounds(m Margin) (float64, float64) {
	lo := 0.0
	hi := maxBand
	if m.MinConsumption != nil {
		lo = *m.MinConsumption
	}
	if m.MaxConsumption != nil {
		hi = *m.MaxConsumption
	}
	return lo, hi
}

// validateMargin checks a band's internal consistency and that it does
// not overlap any of the rate's existing active bands.
func validateMargin(m Margin, existing []Margin) error {
	if m.MinMargin > m.MaxMargin {
		return errors.New("min_margin must not exceed max_margin")
	}
	if m.Type == MarginConsumeRange && m.MinConsumption != nil && m.MaxConsumption != nil &&
		*m.MinConsumption > *m.MaxConsumption {
		return errors.New("min_consumption must not exceed max_consumption")
	}
	for _, other := range existing {
		if other.ID == m.ID {
			continue
		}
		if marginsOverlap(m, other) {
			return ErrOverlappingMargin
		}
	}
	return nil
}
