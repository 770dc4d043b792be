package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

// memoryNumericMax mirrors the numeric(12,2) precision of the suggestion
// columns so the in-memory backend fails the same way Postgres does.
const memoryNumericMax = 1e10

// MemoryStorage is an in-memory Storage implementation, useful for tests
// and simple single-process deployments.
type MemoryStorage struct {
	mu sync.RWMutex

	marketers   map[uint]Marketer
	rateTypes   map[uint]RateType
	rates       map[uint]Rate
	margins     map[uint]Margin
	commissions map[uint]Commission
	otherCosts  map[uint]OtherCost
	// links from rate id to attached commission / other-cost ids
	rateCommissions map[uint][]uint
	rateOtherCosts  map[uint][]uint
	energyCosts     map[string]EnergyCost

	studies        map[uint]SavingStudy
	deletedStudies map[uint]SavingStudy
	suggested      map[uint]SuggestedRate

	users       map[string]User
	tokens      map[string]Token
	settings    map[string]string
	emailConfig *EmailConfig

	nextID uint
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		marketers:       make(map[uint]Marketer),
		rateTypes:       make(map[uint]RateType),
		rates:           make(map[uint]Rate),
		margins:         make(map[uint]Margin),
		commissions:     make(map[uint]Commission),
		otherCosts:      make(map[uint]OtherCost),
		rateCommissions: make(map[uint][]uint),
		rateOtherCosts:  make(map[uint][]uint),
		energyCosts:     make(map[string]EnergyCost),
		studies:         make(map[uint]SavingStudy),
		deletedStudies:  make(map[uint]SavingStudy),
		suggested:       make(map[uint]SuggestedRate),
		users:           make(map[string]User),
		tokens:          make(map[string]Token),
		settings:        make(map[string]string),
	}
}

func (m *MemoryStorage) allocID() uint {
	m.nextID++
	return m.nextID
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

// Seeding helpers for fixtures; ids are assigned when zero.

func (m *MemoryStorage) SeedMarketer(mk Marketer) Marketer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mk.ID == 0 {
		mk.ID = m.allocID()
	}
	m.marketers[mk.ID] = mk
	return mk
}

func (m *MemoryStorage) SeedRateType(rt RateType) RateType {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt.ID == 0 {
		rt.ID = m.allocID()
	}
	m.rateTypes[rt.ID] = rt
	return rt
}

func (m *MemoryStorage) SeedRate(r Rate) Rate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.allocID()
	}
	for i := range r.Margins {
		if r.Margins[i].ID == 0 {
			r.Margins[i].ID = m.allocID()
		}
		r.Margins[i].RateID = r.ID
		m.margins[r.Margins[i].ID] = r.Margins[i]
	}
	m.rates[r.ID] = r
	return r
}

func (m *MemoryStorage) SeedCommission(c Commission, rateIDs ...uint) Commission {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.allocID()
	}
	m.commissions[c.ID] = c
	for _, rid := range rateIDs {
		m.rateCommissions[rid] = append(m.rateCommissions[rid], c.ID)
	}
	return c
}

func (m *MemoryStorage) SeedOtherCost(c OtherCost, rateIDs ...uint) OtherCost {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.allocID()
	}
	m.otherCosts[c.ID] = c
	for _, rid := range rateIDs {
		m.rateOtherCosts[rid] = append(m.rateOtherCosts[rid], c.ID)
	}
	return c
}

// Rate catalog

func (m *MemoryStorage) GetRateType(ctx context.Context, id uint) (*RateType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.rateTypes[id]
	if !ok {
		return nil, nil
	}
	cp := rt
	return &cp, nil
}

func (m *MemoryStorage) ListRatesForType(ctx context.Context, rateTypeID uint) ([]Rate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Rate
	for _, r := range m.rates {
		if r.RateTypeID == rateTypeID {
			out = append(out, m.hydrateLocked(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) GetRateByName(ctx context.Context, name string) (*Rate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rates {
		if r.Name == name {
			cp := m.hydrateLocked(r)
			return &cp, nil
		}
	}
	return nil, nil
}

// hydrateLocked fills in the associations the GORM backend preloads.
func (m *MemoryStorage) hydrateLocked(r Rate) Rate {
	if mk, ok := m.marketers[r.MarketerID]; ok {
		cp := mk
		r.Marketer = &cp
	}
	if rt, ok := m.rateTypes[r.RateTypeID]; ok {
		cp := rt
		r.RateType = &cp
	}
	r.Margins = nil
	var ids []uint
	for id, mg := range m.margins {
		if mg.RateID == r.ID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		r.Margins = append(r.Margins, m.margins[id])
	}
	return r
}

func (m *MemoryStorage) UpsertRate(ctx context.Context, r Rate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.rates {
		if existing.Name == r.Name {
			r.ID = id
			m.rates[id] = r
			return nil
		}
	}
	if r.ID == 0 {
		r.ID = m.allocID()
	}
	m.rates[r.ID] = r
	return nil
}

func (m *MemoryStorage) ListCommissionsForRate(ctx context.Context, rateID uint) ([]Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Commission
	for _, id := range m.rateCommissions[rateID] {
		if c, ok := m.commissions[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStorage) ListOtherCostsForRate(ctx context.Context, rateID uint) ([]OtherCost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []OtherCost
	for _, id := range m.rateOtherCosts[rateID] {
		if c, ok := m.otherCosts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStorage) CreateMargin(ctx context.Context, mg Margin) (*Margin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var existing []Margin
	for _, other := range m.margins {
		if other.RateID == mg.RateID {
			existing = append(existing, other)
		}
	}
	if err := validateMargin(mg, existing); err != nil {
		return nil, err
	}
	if mg.ID == 0 {
		mg.ID = m.allocID()
	}
	m.margins[mg.ID] = mg
	return &mg, nil
}

func (m *MemoryStorage) GetEnergyCostByCode(ctx context.Context, code string) (*EnergyCost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.energyCosts[code]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (m *MemoryStorage) ListEnergyCosts(ctx context.Context) ([]EnergyCost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EnergyCost, 0, len(m.energyCosts))
	for _, c := range m.energyCosts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStorage) UpsertEnergyCost(ctx context.Context, c EnergyCost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.allocID()
	}
	m.energyCosts[c.Code] = c
	return nil
}

// Saving studies

func (m *MemoryStorage) GetSavingStudy(ctx context.Context, id uint) (*SavingStudy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.studies[id]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

func (m *MemoryStorage) CreateSavingStudy(ctx context.Context, s SavingStudy) (*SavingStudy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.allocID()
	}
	if s.Status == "" {
		s.Status = StudyInProgress
	}
	if s.AnalyzedDays == 0 {
		s.AnalyzedDays = 365
	}
	m.studies[s.ID] = s
	return &s, nil
}

func (m *MemoryStorage) UpdateSavingStudy(ctx context.Context, s SavingStudy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.studies[s.ID] = s
	return nil
}

// DeleteSavingStudy soft-deletes a study; its suggestions stay until the
// cleanup job purges them.
func (m *MemoryStorage) DeleteSavingStudy(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.studies[id]; ok {
		s.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
		m.deletedStudies[id] = s
		delete(m.studies, id)
	}
	return nil
}

// Suggested rates

func (m *MemoryStorage) ListSuggestedRates(ctx context.Context, studyID uint) ([]SuggestedRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SuggestedRate
	for _, sr := range m.suggested {
		if sr.SavingStudyID == studyID {
			out = append(out, sr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalCost < out[j].FinalCost })
	return out, nil
}

func (m *MemoryStorage) GetSuggestedRate(ctx context.Context, id uint) (*SuggestedRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sr, ok := m.suggested[id]
	if !ok {
		return nil, nil
	}
	cp := sr
	return &cp, nil
}

func (m *MemoryStorage) UpdateSuggestedRate(ctx context.Context, sr SuggestedRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if overflowsNumeric(sr) {
		return ErrNumericOverflow
	}
	m.suggested[sr.ID] = sr
	return nil
}

func (m *MemoryStorage) ReplaceSuggestedRates(ctx context.Context, studyID uint, rows []SuggestedRate) ([]SuggestedRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Validate the whole batch before touching the existing set so a
	// failed insert leaves the prior suggestions intact.
	for _, sr := range rows {
		if overflowsNumeric(sr) {
			return nil, ErrNumericOverflow
		}
	}
	for id, sr := range m.suggested {
		if sr.SavingStudyID == studyID {
			delete(m.suggested, id)
		}
	}
	for i := range rows {
		if rows[i].ID == 0 {
			rows[i].ID = m.allocID()
		}
		rows[i].SavingStudyID = studyID
		m.suggested[rows[i].ID] = rows[i]
	}
	return rows, nil
}

func overflowsNumeric(sr SuggestedRate) bool {
	for _, v := range []float64{
		sr.EnergyCost, sr.PowerCost, sr.FixedCost, sr.OtherCostsCost,
		sr.RegulatedTax1, sr.RegulatedTax2, sr.VATCost, sr.TotalCost,
		sr.FinalCost, sr.TheoreticalCommission, sr.OtherCostsCommission,
		sr.TotalCommission, sr.CurrentCost,
	} {
		if math.Abs(v) >= memoryNumericMax || math.IsInf(v, 0) || math.IsNaN(v) {
			return true
		}
	}
	return false
}

func (m *MemoryStorage) SelectSuggestedRate(ctx context.Context, studyID, suggestedRateID uint) (*SavingStudy, *SuggestedRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	study, ok := m.studies[studyID]
	if !ok {
		return nil, nil, nil
	}
	sr, ok := m.suggested[suggestedRateID]
	if !ok || sr.SavingStudyID != studyID {
		return nil, nil, nil
	}
	for id, other := range m.suggested {
		if other.SavingStudyID == studyID && id != suggestedRateID {
			delete(m.suggested, id)
		}
	}
	sr.IsSelected = true
	m.suggested[suggestedRateID] = sr
	study.Status = StudyCompleted
	m.studies[studyID] = study
	studyCp, srCp := study, sr
	return &studyCp, &srCp, nil
}

func (m *MemoryStorage) PurgeOrphanSuggestedRates(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sr := range m.suggested {
		if _, deleted := m.deletedStudies[sr.SavingStudyID]; deleted {
			delete(m.suggested, id)
			n++
		}
	}
	return n, nil
}

// Users

func (m *MemoryStorage) CreateUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) UpdateUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStorage) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

// Tokens

func (m *MemoryStorage) CreateToken(ctx context.Context, token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return nil
}

func (m *MemoryStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) DeleteToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *MemoryStorage) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, t := range m.tokens {
		if t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		now := time.Now()
		t.LastUsedAt = &now
		m.tokens[id] = t
	}
	return nil
}

// Casbin rules: the in-memory backend does not persist policies; the
// enforcer starts from the built-in defaults.

func (m *MemoryStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	return nil, nil
}

func (m *MemoryStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	return nil
}

func (m *MemoryStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	return nil
}

// Email config

func (m *MemoryStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.emailConfig == nil {
		return nil, nil
	}
	cfg := *m.emailConfig
	return &cfg, nil
}

func (m *MemoryStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailConfig = &config
	return nil
}

// Settings

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// Scheduled jobs & locking: single instance, locks always succeed.

func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	return nil
}
