package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidAccount  = errors.New("invalid_account")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidEmail    = errors.New("invalid_email")
)

// Settings is the company profile of one account, printed on its invoices
// and bills.
type Settings struct {
	AccountID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Name      string       `gorm:"type:text;not null"`
	LogoURL   string       `gorm:"type:text"`
	Currency  string       `gorm:"type:varchar(3);not null"`
	Address   string       `gorm:"type:text"`
	City      string       `gorm:"type:text"`
	State     string       `gorm:"type:text"`
	ZipCode   string       `gorm:"type:text"`
	Country   string       `gorm:"type:text"`
	Phone     string       `gorm:"type:text"`
	Email     string       `gorm:"type:text"`
	Website   string       `gorm:"type:text"`
	GSTIN     string       `gorm:"column:gstin;type:text"`
	PAN       string       `gorm:"column:pan;type:text"`
	Extra     datatypes.JSONMap
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Settings) TableName() string { return "company_settings" }

type UpdateRequest struct {
	Name     string         `json:"name"`
	LogoURL  string         `json:"logo_url"`
	Currency string         `json:"currency"`
	Address  string         `json:"address"`
	City     string         `json:"city"`
	State    string         `json:"state"`
	ZipCode  string         `json:"zip_code"`
	Country  string         `json:"country"`
	Phone    string         `json:"phone"`
	Email    string         `json:"email"`
	Website  string         `json:"website"`
	GSTIN    string         `json:"gstin"`
	PAN      string         `json:"pan"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type Response struct {
	AccountID string         `json:"account_id"`
	Name      string         `json:"name"`
	LogoURL   string         `json:"logo_url,omitempty"`
	Currency  string         `json:"currency"`
	Address   string         `json:"address,omitempty"`
	City      string         `json:"city,omitempty"`
	State     string         `json:"state,omitempty"`
	ZipCode   string         `json:"zip_code,omitempty"`
	Country   string         `json:"country,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Email     string         `json:"email,omitempty"`
	Website   string         `json:"website,omitempty"`
	GSTIN     string         `json:"gstin,omitempty"`
	PAN       string         `json:"pan,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	// Persisted is false when the defaults are returned in place of a row.
	Persisted bool      `json:"persisted"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

type Repository interface {
	// FindByAccount returns nil, nil when the account has no row.
	FindByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Settings, error)
	Upsert(ctx context.Context, db *gorm.DB, settings *Settings) error
	// UpsertCurrency writes only the currency of an existing row, or inserts
	// settings as a new row.
	UpsertCurrency(ctx context.Context, db *gorm.DB, settings *Settings) error
}

type Service interface {
	Get(ctx context.Context) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	SetCurrency(ctx context.Context, currency string) (*Response, error)
	FormatAmount(currency string, amount float64) (string, error)
}
