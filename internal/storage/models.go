package storage

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Energy types supported by the marketplace.
const (
	EnergyElectricity = "electricity"
	EnergyGas         = "gas"
)

// Price models a rate can be sold under.
const (
	PriceFixedFixed = "fixed_fixed" // fixed unit prices for energy and power
	PriceFixedBase  = "fixed_base"  // base price, per-unit margin added at sale time
)

// Margin types.
const (
	MarginRateType     = "rate_type"
	MarginConsumeRange = "consume_range"
)

// Saving-study lifecycle.
const (
	StudyInProgress = "in_progress"
	StudyCompleted  = "completed"
)

// Other-cost charge types.
const (
	ChargeEurMonth   = "eur/month"
	ChargeEurKWh     = "eur/kwh"
	ChargePercentage = "percentage"
)

// Commission band types for fixed_fixed rates.
const (
	RangeConsumption = "consumption"
	RangePower       = "power"
)

// Regulated cost codes. These rows are protected: only a superadmin may
// rename or delete them.
const (
	CostCodeVAT         = "iva"
	CostCodeReducedVAT  = "iva_reducido"
	CostCodeHydrocarbon = "imp_hidrocarburos"
	CostCodeElectricity = "imp_electricos"
)

// Marketer is an energy retailer whose rates appear in the catalog.
type Marketer struct {
	ID        uint           `json:"id" gorm:"primaryKey;column:id"`
	Name      string         `json:"name" gorm:"unique;column:name"`
	FiscalID  string         `json:"fiscal_id,omitempty" gorm:"column:fiscal_id"`
	IsActive  bool           `json:"is_active" gorm:"column:is_active"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index;column:deleted_at"`
}

// RateType groups rates of one energy type (a tariff family).
type RateType struct {
	ID         uint           `json:"id" gorm:"primaryKey;column:id"`
	Name       string         `json:"name" gorm:"unique;column:name"`
	EnergyType string         `json:"energy_type" gorm:"column:energy_type"`
	Enable     bool           `json:"enable" gorm:"column:enable"`
	MinPower   *float64       `json:"min_power,omitempty" gorm:"column:min_power"`
	MaxPower   *float64       `json:"max_power,omitempty" gorm:"column:max_power"`
	CreatedAt  time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index;column:deleted_at"`
}

// Rate is a sellable tariff belonging to one marketer and one rate type.
//
// Electricity fixed_fixed rates populate the power price/range columns;
// gas rates only ever use energy_price_1 plus the fixed term price and a
// consumption range.
type Rate struct {
	ID         uint   `json:"id" gorm:"primaryKey;column:id"`
	Name       string `json:"name" gorm:"unique;column:name"`
	MarketerID uint   `json:"marketer_id" gorm:"column:marketer_id"`
	RateTypeID uint   `json:"rate_type_id" gorm:"column:rate_type_id"`
	PriceType  string `json:"price_type" gorm:"column:price_type"`

	EnergyPrice1 *float64 `json:"energy_price_1,omitempty" gorm:"column:energy_price_1"`
	EnergyPrice2 *float64 `json:"energy_price_2,omitempty" gorm:"column:energy_price_2"`
	EnergyPrice3 *float64 `json:"energy_price_3,omitempty" gorm:"column:energy_price_3"`
	EnergyPrice4 *float64 `json:"energy_price_4,omitempty" gorm:"column:energy_price_4"`
	EnergyPrice5 *float64 `json:"energy_price_5,omitempty" gorm:"column:energy_price_5"`
	EnergyPrice6 *float64 `json:"energy_price_6,omitempty" gorm:"column:energy_price_6"`

	PowerPrice1 *float64 `json:"power_price_1,omitempty" gorm:"column:power_price_1"`
	PowerPrice2 *float64 `json:"power_price_2,omitempty" gorm:"column:power_price_2"`
	PowerPrice3 *float64 `json:"power_price_3,omitempty" gorm:"column:power_price_3"`
	PowerPrice4 *float64 `json:"power_price_4,omitempty" gorm:"column:power_price_4"`
	PowerPrice5 *float64 `json:"power_price_5,omitempty" gorm:"column:power_price_5"`
	PowerPrice6 *float64 `json:"power_price_6,omitempty" gorm:"column:power_price_6"`

	FixedTermPrice *float64 `json:"fixed_term_price,omitempty" gorm:"column:fixed_term_price"`

	MinPower       *float64 `json:"min_power,omitempty" gorm:"column:min_power"`
	MaxPower       *float64 `json:"max_power,omitempty" gorm:"column:max_power"`
	MinConsumption *float64 `json:"min_consumption,omitempty" gorm:"column:min_consumption"`
	MaxConsumption *float64 `json:"max_consumption,omitempty" gorm:"column:max_consumption"`

	// ClientTypes is a comma-separated list of eligible client segments.
	ClientTypes string `json:"client_types" gorm:"column:client_types"`

	Permanency               bool     `json:"permanency" gorm:"column:permanency"`
	Length                   int      `json:"length" gorm:"column:length"`
	IsFullRenewable          *bool    `json:"is_full_renewable,omitempty" gorm:"column:is_full_renewable"`
	CompensationSurplus      bool     `json:"compensation_surplus" gorm:"column:compensation_surplus"`
	CompensationSurplusValue *float64 `json:"compensation_surplus_value,omitempty" gorm:"column:compensation_surplus_value"`

	IsActive  bool           `json:"is_active" gorm:"column:is_active"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index;column:deleted_at"`

	Marketer *Marketer `json:"marketer,omitempty" gorm:"foreignKey:MarketerID"`
	RateType *RateType `json:"rate_type,omitempty" gorm:"foreignKey:RateTypeID"`
	Margins  []Margin  `json:"margins,omitempty" gorm:"foreignKey:RateID"`
}

// HasClientType reports whether the segment is in the rate's eligible list.
func (r Rate) HasClientType(segment string) bool {
	return containsSegment(r.ClientTypes, segment)
}

// Margin is a profit-margin band attached to one rate. Type rate_type
// margins are unconditional; consume_range margins apply only inside
// [min_consumption, max_consumption], and active bands on the same rate
// must not overlap.
type Margin struct {
	ID             uint           `json:"id" gorm:"primaryKey;column:id"`
	RateID         uint           `json:"rate_id" gorm:"index;column:rate_id"`
	Type           string         `json:"type" gorm:"column:type"`
	MinConsumption *float64       `json:"min_consumption,omitempty" gorm:"column:min_consumption"`
	MaxConsumption *float64       `json:"max_consumption,omitempty" gorm:"column:max_consumption"`
	MinMargin      float64        `json:"min_margin" gorm:"column:min_margin"`
	MaxMargin      float64        `json:"max_margin" gorm:"column:max_margin"`
	CreatedAt      time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index;column:deleted_at"`
}

// Commission is a sales commission definition shared by one or more rates.
// fixed_base rates use PercentageCommission; fixed_fixed rates use banded
// flat amounts keyed by a consumption or power range.
type Commission struct {
	ID                   uint     `json:"id" gorm:"primaryKey;column:id"`
	Name                 string   `json:"name" gorm:"column:name"`
	PercentageCommission *float64 `json:"percentage_commission,omitempty" gorm:"column:percentage_commission"`
	Amount               *float64 `json:"amount,omitempty" gorm:"column:amount"`
	RateTypeSegmentation bool     `json:"rate_type_segmentation" gorm:"column:rate_type_segmentation"`
	RangeType            string   `json:"range_type,omitempty" gorm:"column:range_type"`
	MinConsumption       *float64 `json:"min_consumption,omitempty" gorm:"column:min_consumption"`
	MaxConsumption       *float64 `json:"max_consumption,omitempty" gorm:"column:max_consumption"`
	MinPower             *float64 `json:"min_power,omitempty" gorm:"column:min_power"`
	MaxPower             *float64 `json:"max_power,omitempty" gorm:"column:max_power"`

	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index;column:deleted_at"`

	Rates []Rate `json:"-" gorm:"many2many:commission_rates"`
}

// OtherCost is a surcharge attached to one or more rates. It contributes
// to a candidate's cost only when mandatory, active and matching the
// study's client segment and power.
type OtherCost struct {
	ID          uint     `json:"id" gorm:"primaryKey;column:id"`
	Name        string   `json:"name" gorm:"column:name"`
	Mandatory   bool     `json:"mandatory" gorm:"column:mandatory"`
	ClientTypes string   `json:"client_types" gorm:"column:client_types"`
	MinPower    *float64 `json:"min_power,omitempty" gorm:"column:min_power"`
	MaxPower    *float64 `json:"max_power,omitempty" gorm:"column:max_power"`
	Type        string   `json:"type" gorm:"column:type"`
	Quantity    float64  `json:"quantity" gorm:"column:quantity"`
	ExtraFee    *float64 `json:"extra_fee,omitempty" gorm:"column:extra_fee"`
	IsActive    bool     `json:"is_active" gorm:"column:is_active"`

	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index;column:deleted_at"`

	Rates []Rate `json:"-" gorm:"many2many:rate_other_costs"`
}

// HasClientType reports whether the segment is in the charge's eligible list.
func (c OtherCost) HasClientType(segment string) bool {
	return containsSegment(c.ClientTypes, segment)
}

// EnergyCost is a regulated, system-wide cost constant looked up by a
// stable code. Amount is a multiplicative rate (0.21 for 21% VAT) or an
// absolute EUR/kWh rate for the hydrocarbon tax.
type EnergyCost struct {
	ID          uint      `json:"id" gorm:"primaryKey;column:id"`
	Code        string    `json:"code" gorm:"unique;column:code"`
	Name        string    `json:"name" gorm:"column:name"`
	Amount      float64   `json:"amount" gorm:"column:amount"`
	IsProtected bool      `json:"is_protected" gorm:"column:is_protected"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

/// SavingStudy is a sales inquiry snapshot: the client's consumption and
// power profile, their current prices when conditions are compared, and
// the rate type the comparison runs against.
type SavingStudy struct {
	ID         uint   `json:"id" gorm:"primaryKey;column:id"`
	UserID     string `json:"user_id" gorm:"column:user_id"`
	ClientName string `json:"client_name" gorm:"column:client_name"`
	CUPS       string `json:"cups" gorm:"column:cups"`

	EnergyType string `json:"energy_type" gorm:"column:energy_type"`
	ClientType string `json:"client_type" gorm:"column:client_type"`
	Status     string `json:"status" gorm:"column:status"`

	CurrentRateTypeID *uint `json:"current_rate_type_id,omitempty" gorm:"column:current_rate_type_id"`

	AnalyzedDays      float64 `json:"analyzed_days" gorm:"column:analyzed_days"`
	AnnualConsumption float64 `json:"annual_consumption" gorm:"column:annual_consumption"`

	ConsumptionP1 *float64 `json:"consumption_p1,omitempty" gorm:"column:consumption_p1"`
	ConsumptionP2 *float64 `json:"consumption_p2,omitempty" gorm:"column:consumption_p2"`
	ConsumptionP3 *float64 `json:"consumption_p3,omitempty" gorm:"column:consumption_p3"`
	ConsumptionP4 *float64 `json:"consumption_p4,omitempty" gorm:"column:consumption_p4"`
	ConsumptionP5 *float64 `json:"consumption_p5,omitempty" gorm:"column:consumption_p5"`
	ConsumptionP6 *float64 `json:"consumption_p6,omitempty" gorm:"column:consumption_p6"`

	Power1 *float64 `json:"power_1,omitempty" gorm:"column:power_1"`
	Power2 *float64 `json:"power_2,omitempty" gorm:"column:power_2"`
	Power3 *float64 `json:"power_3,omitempty" gorm:"column:power_3"`
	Power4 *float64 `json:"power_4,omitempty" gorm:"column:power_4"`
	Power5 *float64 `json:"power_5,omitempty" gorm:"column:power_5"`
	Power6 *float64 `json:"power_6,omitempty" gorm:"column:power_6"`

	IsCompareConditions bool `json:"is_compare_conditions" gorm:"column:is_compare_conditions"`
	IsExistingClient    bool `json:"is_existing_client" gorm:"column:is_existing_client"`

	// Current supply prices, used when comparing conditions.
	EnergyPrice1 *float64 `json:"energy_price_1,omitempty" gorm:"column:energy_price_1"`
	EnergyPrice2 *float64 `json:"energy_price_2,omitempty" gorm:"column:energy_price_2"`
	EnergyPrice3 *float64 `json:"energy_price_3,omitempty" gorm:"column:energy_price_3"`
	EnergyPrice4 *float64 `json:"energy_price_4,omitempty" gorm:"column:energy_price_4"`
	EnergyPrice5 *float64 `json:"energy_price_5,omitempty" gorm:"column:energy_price_5"`
	EnergyPrice6 *float64 `json:"energy_price_6,omitempty" gorm:"column:energy_price_6"`

	PowerPrice1 *float64 `json:"power_price_1,omitempty" gorm:"column:power_price_1"`
	PowerPrice2 *float64 `json:"power_price_2,omitempty" gorm:"column:power_price_2"`
	PowerPrice3 *float64 `json:"power_price_3,omitempty" gorm:"column:power_price_3"`
	PowerPrice4 *float64 `json:"power_price_4,omitempty" gorm:"column:power_price_4"`
	PowerPrice5 *float64 `json:"power_price_5,omitempty" gorm:"column:power_price_5"`
	PowerPrice6 *float64 `json:"power_price_6,omitempty" gorm:"column:power_price_6"`

	FixedPrice *float64 `json:"fixed_price,omitempty" gorm:"column:fixed_price"`

	// Current supply surcharges, by charge type.
	OtherCostEurMonth   *float64 `json:"other_cost_eur_month,omitempty" gorm:"column:other_cost_eur_month"`
	OtherCostKWh        *float64 `json:"other_cost_kwh,omitempty" gorm:"column:other_cost_kwh"`
	OtherCostPercentage *float64 `json:"other_cost_percentage,omitempty" gorm:"column:other_cost_percentage"`

	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index;column:deleted_at"`
}

// SuggestedRate is one engine result per (study, candidate rate) pair.
// It snapshots the rate's prices and the computed cost and commission
// components so the suggestion survives later catalog edits.
type SuggestedRate struct {
	ID            uint   `json:"id" gorm:"primaryKey;column:id"`
	SavingStudyID uint   `json:"saving_study_id" gorm:"index;column:saving_study_id"`
	RateName      string `json:"rate_name" gorm:"column:rate_name"`
	MarketerName  string `json:"marketer_name" gorm:"column:marketer_name"`
	IsSelected    bool   `json:"is_selected" gorm:"column:is_selected"`

	Permanency          bool `json:"permanency" gorm:"column:permanency"`
	Length              int  `json:"length" gorm:"column:length"`
	IsFullRenewable     bool `json:"is_full_renewable" gorm:"column:is_full_renewable"`
	CompensationSurplus bool `json:"compensation_surplus" gorm:"column:compensation_surplus"`

	ProfitMarginType    string  `json:"profit_margin_type" gorm:"column:profit_margin_type"`
	MinProfitMargin     float64 `json:"min_profit_margin" gorm:"column:min_profit_margin"`
	MaxProfitMargin     float64 `json:"max_profit_margin" gorm:"column:max_profit_margin"`
	AppliedProfitMargin float64 `json:"applied_profit_margin" gorm:"column:applied_profit_margin"`

	EnergyPrice1 *float64 `json:"energy_price_1,omitempty" gorm:"column:energy_price_1"`
	EnergyPrice2 *float64 `json:"energy_price_2,omitempty" gorm:"column:energy_price_2"`
	EnergyPrice3 *float64 `json:"energy_price_3,omitempty" gorm:"column:energy_price_3"`
	EnergyPrice4 *float64 `json:"energy_price_4,omitempty" gorm:"column:energy_price_4"`
	EnergyPrice5 *float64 `json:"energy_price_5,omitempty" gorm:"column:energy_price_5"`
	EnergyPrice6 *float64 `json:"energy_price_6,omitempty" gorm:"column:energy_price_6"`

	PowerPrice1 *float64 `json:"power_price_1,omitempty" gorm:"column:power_price_1"`
	PowerPrice2 *float64 `json:"power_price_2,omitempty" gorm:"column:power_price_2"`
	PowerPrice3 *float64 `json:"power_price_3,omitempty" gorm:"column:power_price_3"`
	PowerPrice4 *float64 `json:"power_price_4,omitempty" gorm:"column:power_price_4"`
	PowerPrice5 *float64 `json:"power_price_5,omitempty" gorm:"column:power_price_5"`
	PowerPrice6 *float64 `json:"power_price_6,omitempty" gorm:"column:power_price_6"`

	FixedTermPrice *float64 `json:"fixed_term_price,omitempty" gorm:"column:fixed_term_price"`

	EnergyCost     float64 `json:"energy_cost" gorm:"column:energy_cost"`
	PowerCost      float64 `json:"power_cost" gorm:"column:power_cost"`
	FixedCost      float64 `json:"fixed_cost" gorm:"column:fixed_cost"`
	OtherCostsCost float64 `json:"other_costs_cost" gorm:"column:other_costs_cost"`
	RegulatedTax1  float64 `json:"regulated_tax_1" gorm:"column:regulated_tax_1"`
	RegulatedTax2  float64 `json:"regulated_tax_2" gorm:"column:regulated_tax_2"`
	VATCost        float64 `json:"vat_cost" gorm:"column:vat_cost"`
	TotalCost      float64 `json:"total_cost" gorm:"column:total_cost"`
	FinalCost      float64 `json:"final_cost" gorm:"column:final_cost"`

	TheoreticalCommission float64 `json:"theoretical_commission" gorm:"column:theoretical_commission"`
	OtherCostsCommission  float64 `json:"other_costs_commission" gorm:"column:other_costs_commission"`
	TotalCommission       float64 `json:"total_commission" gorm:"column:total_commission"`

	CurrentCost    float64  `json:"current_cost" gorm:"column:current_cost"`
	SavingAbsolute *float64 `json:"saving_absolute,omitempty" gorm:"column:saving_absolute"`
	SavingRelative *float64 `json:"saving_relative,omitempty" gorm:"column:saving_relative"`

	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index;column:deleted_at"`
}

// User represents a registered back-office user.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	Username     string    `json:"username" gorm:"unique;column:username"`
	FirstName    string    `json:"first_name" gorm:"column:first_name"`
	LastName     string    `json:"last_name" gorm:"column:last_name"`
	Email        string    `json:"email" gorm:"column:email"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	Role         string    `json:"role" gorm:"column:role"`
	IsSuperadmin bool      `json:"is_superadmin" gorm:"column:is_superadmin"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Token represents an API access token.
type Token struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	UserID     string     `json:"user_id" gorm:"column:user_id"`
	Name       string     `json:"name" gorm:"column:name"`
	TokenHash  string     `json:"-" gorm:"column:token_hash"`
	Role       string     `json:"role" gorm:"column:role"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
}

// CasbinRule represents a policy rule for RBAC.
type CasbinRule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `json:"ptype" gorm:"column:ptype"`
	V0    string `json:"v0" gorm:"column:v0"`
	V1    string `json:"v1" gorm:"column:v1"`
	V2    string `json:"v2" gorm:"column:v2"`
	V3    string `json:"v3" gorm:"column:v3"`
	V4    string `json:"v4" gorm:"column:v4"`
	V5    string `json:"v5" gorm:"column:v5"`
}

// EmailConfig holds configuration for email notifications.
type EmailConfig struct {
	ID          string    `json:"id" gorm:"primaryKey;column:id"`
	Provider    string    `json:"provider" gorm:"column:provider"` // "smtp", "sendgrid", "gmail", "resend"
	Host        string    `json:"host,omitempty" gorm:"column:host"`
	Port        int       `json:"port,omitempty" gorm:"column:port"`
	Username    string    `json:"username,omitempty" gorm:"column:username"`
	Password    string    `json:"password,omitempty" gorm:"column:password"`
	FromAddress string    `json:"from_address" gorm:"column:from_address"`
	FromName    string    `json:"from_name" gorm:"column:from_name"`
	APIKey      string    `json:"api_key,omitempty" gorm:"column:api_key"`
	Encryption  string    `json:"encryption,omitempty" gorm:"column:encryption"` // "none", "ssl", "tls"
	Enabled     bool      `json:"enabled" gorm:"column:enabled"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func containsSegment(list, segment string) bool {
	if segment == "" {
		return false
	}
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == segment {
			return true
		}
	}
	return false
}
