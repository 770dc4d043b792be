package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	if driver == "postgres" {
		gormDialector = postgres.Open(dsn)
	} else if driver == "sqlite" {
		gormDialector = sqlite.Open(dsn)
	} else {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormStorage{db: db}, nil
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&Marketer{},
		&RateType{},
		&Rate{},
		&Margin{},
		&Commission{},
		&OtherCost{},
		&EnergyCost{},
		&SavingStudy{},
		&SuggestedRate{},
		&User{},
		&Token{},
		&CasbinRule{},
		&EmailConfig{},
		&Setting{},
		&ScheduledJob{},
	)
}

// Setting is a simple key/value row for runtime configuration.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the last outcome of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}

// isNumericOverflow detects a value that exceeded a numeric column's
// precision: SQLSTATE 22003 on Postgres.
func isNumericOverflow(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22003" {
		return true
	}
	return strings.Contains(err.Error(), "numeric field overflow")
}

// Rate catalog

func (s *GormStorage) GetRateType(ctx context.Context, id uint) (*RateType, error) {
	var rt RateType
	result := s.db.WithContext(ctx).First(&rt, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rt, nil
}

func (s *GormStorage) ListRatesForType(ctx context.Context, rateTypeID uint) ([]Rate, error) {
	var rates []Rate
	result := s.db.WithContext(ctx).
		Preload("Marketer").
		Preload("RateType").
		Preload("Margins").
		Where("rate_type_id = ?", rateTypeID).
		Find(&rates)
	return rates, result.Error
}

func (s *GormStorage) GetRateByName(ctx context.Context, name string) (*Rate, error) {
	var r Rate
	result := s.db.WithContext(ctx).
		Preload("Marketer").
		Preload("RateType").
		Preload("Margins").
		First(&r, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &r, nil
}

func (s *GormStorage) UpsertRate(ctx context.Context, r Rate) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&r).Error
}

func (s *GormStorage) ListCommissionsForRate(ctx context.Context, rateID uint) ([]Commission, error) {
	var cs []Commission
	result := s.db.WithContext(ctx).
		Joins("JOIN commission_rates cr ON cr.commission_id = commissions.id").
		Where("cr.rate_id = ?", rateID).
		Find(&cs)
	return cs, result.Error
}

func (s *GormStorage) ListOtherCostsForRate(ctx context.Context, rateID uint) ([]OtherCost, error) {
	var ocs []OtherCost
	result := s.db.WithContext(ctx).
		Joins("JOIN rate_other_costs roc ON roc.other_cost_id = other_costs.id").
		Where("roc.rate_id = ?", rateID).
		Find(&ocs)
	return ocs, result.Error
}

func (s *GormStorage) CreateMargin(ctx context.Context, m Margin) (*Margin, error) {
	var existing []Margin
	if err := s.db.WithContext(ctx).Where("rate_id = ?", m.RateID).Find(&existing).Error; err != nil {
		return nil, err
	}
	if err := validateMargin(m, existing); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormStorage) GetEnergyCostByCode(ctx context.Context, code string) (*EnergyCost, error) {
	var c EnergyCost
	result := s.db.WithContext(ctx).First(&c, "code = ?", code)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &c, nil
}

func (s *GormStorage) ListEnergyCosts(ctx context.Context) ([]EnergyCost, error) {
	var cs []EnergyCost
	result := s.db.WithContext(ctx).Order("code").Find(&cs)
	return cs, result.Error
}

func (s *GormStorage) UpsertEnergyCost(ctx context.Context, c EnergyCost) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		UpdateAll: true,
	}).Create(&c).Error
}

// Saving studies

func (s *GormStorage) GetSavingStudy(ctx context.Context, id uint) (*SavingStudy, error) {
	var study SavingStudy
	result := s.db.WithContext(ctx).First(&study, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &study, nil
}

func (s *GormStorage) CreateSavingStudy(ctx context.Context, study SavingStudy) (*SavingStudy, error) {
	if study.Status == "" {
		study.Status = StudyInProgress
	}
	if study.AnalyzedDays == 0 {
		study.AnalyzedDays = 365
	}
	if err := s.db.WithContext(ctx).Create(&study).Error; err != nil {
		return nil, err
	}
	return &study, nil
}

func (s *GormStorage) UpdateSavingStudy(ctx context.Context, study SavingStudy) error {
	return s.db.WithContext(ctx).Save(&study).Error
}

func (s *GormStorage) DeleteSavingStudy(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&SavingStudy{}, "id = ?", id).Error
}

// Suggested rates

func (s *GormStorage) ListSuggestedRates(ctx context.Context, studyID uint) ([]SuggestedRate, error) {
	var rows []SuggestedRate
	result := s.db.WithContext(ctx).
		Where("saving_study_id = ?", studyID).
		Order("final_cost").
		Find(&rows)
	return rows, result.Error
}

func (s *GormStorage) GetSuggestedRate(ctx context.Context, id uint) (*SuggestedRate, error) {
	var sr SuggestedRate
	result := s.db.WithContext(ctx).First(&sr, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sr, nil
}

func (s *GormStorage) UpdateSuggestedRate(ctx context.Context, sr SuggestedRate) error {
	err := s.db.WithContext(ctx).Save(&sr).Error
	if err != nil && isNumericOverflow(err) {
		return ErrNumericOverflow
	}
	return err
}

func (s *GormStorage) ReplaceSuggestedRates(ctx context.Context, studyID uint, rows []SuggestedRate) ([]SuggestedRate, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("saving_study_id = ?", studyID).
			Delete(&SuggestedRate{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, 100).Error; err != nil {
			if isNumericOverflow(err) {
				return ErrNumericOverflow
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStorage) SelectSuggestedRate(ctx context.Context, studyID, suggestedRateID uint) (*SavingStudy, *SuggestedRate, error) {
	var study SavingStudy
	var sr SuggestedRate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&study, "id = ?", studyID).Error; err != nil {
			return err
		}
		if err := tx.First(&sr, "id = ? AND saving_study_id = ?", suggestedRateID, studyID).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().
			Where("saving_study_id = ? AND id <> ?", studyID, suggestedRateID).
			Delete(&SuggestedRate{}).Error; err != nil {
			return err
		}
		sr.IsSelected = true
		if err := tx.Save(&sr).Error; err != nil {
			return err
		}
		study.Status = StudyCompleted
		return tx.Save(&study).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return &study, &sr, nil
}

func (s *GormStorage) PurgeOrphanSuggestedRates(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Exec(
		`DELETE FROM suggested_rates WHERE saving_study_id IN
			(SELECT id FROM saving_studies WHERE deleted_at IS NOT NULL)`)
	return result.RowsAffected, result.Error
}

// Users

func (s *GormStorage) CreateUser(ctx context.Context, user User) error {
	return s.db.WithContext(ctx).Create(&user).Error
}

func (s *GormStorage) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	result := s.db.WithContext(ctx).First(&user, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

func (s *GormStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	result := s.db.WithContext(ctx).First(&user, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

func (s *GormStorage) UpdateUser(ctx context.Context, user User) error {
	return s.db.WithContext(ctx).Save(&user).Error
}

func (s *GormStorage) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	result := s.db.WithContext(ctx).Find(&users)
	return users, result.Error
}

// Tokens

func (s *GormStorage) CreateToken(ctx context.Context, token Token) error {
	return s.db.WithContext(ctx).Create(&token).Error
}

func (s *GormStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	var token Token
	result := s.db.WithContext(ctx).First(&token, "token_hash = ?", hash)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &token, nil
}

func (s *GormStorage) DeleteToken(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&Token{}, "id = ?", id).Error
}

func (s *GormStorage) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&Token{})
	return result.RowsAffected, result.Error
}

func (s *GormStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Token{}).Where("id = ?", id).Update("last_used_at", now).Error
}

// Casbin rules

func (s *GormStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	var rules []CasbinRule
	result := s.db.WithContext(ctx).Find(&rules)
	return rules, result.Error
}

func (s *GormStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	return s.db.WithContext(ctx).Create(&rule).Error
}

func (s *GormStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	return s.db.WithContext(ctx).Where(&rule).Delete(&CasbinRule{}).Error
}

// Email config

func (s *GormStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	var config EmailConfig
	result := s.db.WithContext(ctx).First(&config)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &config, nil
}

func (s *GormStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	if config.ID == "" {
		config.ID = "default"
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&config).Error
}

// Settings

func (s *GormStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var setting Setting
	result := s.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStorage) SetSetting(ctx context.Context, key, value string) error {
	setting := Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&setting).Error
}

// Scheduled jobs & locking

func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() == "postgres" {
		var ok bool
		err := s.db.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&ok).Error
		return ok, err
	}
	// SQLite has no advisory locks; single-instance deployments always win.
	return true, nil
}

func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() == "postgres" {
		var ok bool
		err := s.db.WithContext(ctx).Raw("SELECT pg_advisory_unlock(?)", key).Scan(&ok).Error
		return ok, err
	}
	return true, nil
}

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
