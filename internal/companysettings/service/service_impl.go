package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/smallbiznis/bizdash/internal/accountcontext"
	"github.com/smallbiznis/bizdash/internal/clock"
	settingsdomain "github.com/smallbiznis/bizdash/internal/companysettings/domain"
	"github.com/smallbiznis/bizdash/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const fallbackCurrency = "USD"

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Clock  clock.Clock
	Repo   settingsdomain.Repository
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	repo            settingsdomain.Repository
	defaultCurrency string
	printer         *message.Printer
}

func NewService(p Params) settingsdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	log := p.Log.Named("companysettings.service")
	defaultCurrency, err := normalizeCurrency(p.Config.DefaultCurrency)
	if err != nil {
		log.Warn("configured default currency is not an ISO 4217 code",
			zap.String("default_currency", p.Config.DefaultCurrency),
			zap.String("using", fallbackCurrency),
		)
		defaultCurrency = fallbackCurrency
	}

	return &Service{
		db:              p.DB,
		log:             log,
		clock:           clk,
		repo:            p.Repo,
		defaultCurrency: defaultCurrency,
		printer:         message.NewPrinter(language.English),
	}
}

// Get returns the settings of the calling account. A missing row, or a row
// that cannot be read, yields the defaults.
func (s *Service) Get(ctx context.Context) (*settingsdomain.Response, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return nil, settingsdomain.ErrInvalidAccount
	}

	item, err := s.repo.FindByAccount(ctx, s.db, accountID)
	if err != nil {
		s.log.Warn("load company settings failed, using defaults",
			zap.String("account_id", accountID.String()),
			zap.String("default_currency", s.defaultCurrency),
			zap.Error(err),
		)
		return s.defaults(accountID.String()), nil
	}
	if item == nil {
		return s.defaults(accountID.String()), nil
	}
	return toResponse(item), nil
}

func (s *Service) Update(ctx context.Context, req settingsdomain.UpdateRequest) (*settingsdomain.Response, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return nil, settingsdomain.ErrInvalidAccount
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, settingsdomain.ErrInvalidName
	}

	code := s.defaultCurrency
	if strings.TrimSpace(req.Currency) != "" {
		parsed, err := normalizeCurrency(req.Currency)
		if err != nil {
			return nil, err
		}
		code = parsed
	}

	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, settingsdomain.ErrInvalidEmail
		}
	}

	now := s.clock.Now()
	item := &settingsdomain.Settings{
		AccountID: accountID,
		Name:      name,
		LogoURL:   strings.TrimSpace(req.LogoURL),
		Currency:  code,
		Address:   strings.TrimSpace(req.Address),
		City:      strings.TrimSpace(req.City),
		State:     strings.TrimSpace(req.State),
		ZipCode:   strings.TrimSpace(req.ZipCode),
		Country:   strings.TrimSpace(req.Country),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     email,
		Website:   strings.TrimSpace(req.Website),
		GSTIN:     strings.ToUpper(strings.TrimSpace(req.GSTIN)),
		PAN:       strings.ToUpper(strings.TrimSpace(req.PAN)),
		Extra:     normalizeMap(req.Extra),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Upsert(ctx, s.db, item); err != nil {
		return nil, fmt.Errorf("save company settings: %w", err)
	}

	s.log.Info("company settings updated",
		zap.String("account_id", accountID.String()),
		zap.String("currency", code),
	)
	return toResponse(item), nil
}

// SetCurrency changes only the currency of the calling account. The other
// settings are left as stored; an account without a row gets one holding
// just the currency.
func (s *Service) SetCurrency(ctx context.Context, raw string) (*settingsdomain.Response, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return nil, settingsdomain.ErrInvalidAccount
	}

	code, err := normalizeCurrency(raw)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	item := &settingsdomain.Settings{
		AccountID: accountID,
		Currency:  code,
		Extra:     datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertCurrency(ctx, s.db, item); err != nil {
		return nil, fmt.Errorf("save company currency: %w", err)
	}

	s.log.Info("company currency updated",
		zap.String("account_id", accountID.String()),
		zap.String("currency", code),
	)

	saved, err := s.repo.FindByAccount(ctx, s.db, accountID)
	if err != nil || saved == nil {
		return toResponse(item), nil
	}
	return toResponse(saved), nil
}

// FormatAmount renders amount in the given ISO 4217 currency with the
// currency's standard number of decimals, e.g. "USD 12.50".
func (s *Service) FormatAmount(code string, amount float64) (string, error) {
	if strings.TrimSpace(code) == "" {
		code = s.defaultCurrency
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", settingsdomain.ErrInvalidCurrency
	}
	scale, _ := currency.Standard.Rounding(unit)
	return s.printer.Sprintf("%s %.*f", unit.String(), scale, amount), nil
}

func (s *Service) defaults(accountID string) *settingsdomain.Response {
	return &settingsdomain.Response{
		AccountID: accountID,
		Currency:  s.defaultCurrency,
	}
}

func normalizeCurrency(raw string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return "", settingsdomain.ErrInvalidCurrency
	}
	return unit.String(), nil
}

func toResponse(item *settingsdomain.Settings) *settingsdomain.Response {
	var extra map[string]any
	if len(item.Extra) > 0 {
		extra = map[string]any(item.Extra)
	}
	return &settingsdomain.Response{
		AccountID: item.AccountID.String(),
		Name:      item.Name,
		LogoURL:   item.LogoURL,
		Currency:  item.Currency,
		Address:   item.Address,
		City:      item.City,
		State:     item.State,
		ZipCode:   item.ZipCode,
		Country:   item.Country,
		Phone:     item.Phone,
		Email:     item.Email,
		Website:   item.Website,
		GSTIN:     item.GSTIN,
		PAN:       item.PAN,
		Extra:     extra,
		Persisted: true,
		UpdatedAt: item.UpdatedAt,
	}
}

func normalizeMap(input map[string]any) datatypes.JSONMap {
	output := datatypes.JSONMap{}
	for key, value := range input {
		if strings.TrimSpace(key) == "" {
			continue
		}
		output[key] = value
	}
	return output
}
