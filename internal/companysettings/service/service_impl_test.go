package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/bizdash/internal/accountcontext"
	"github.com/smallbiznis/bizdash/internal/clock"
	settingsdomain "github.com/smallbiznis/bizdash/internal/companysettings/domain"
	"github.com/smallbiznis/bizdash/internal/companysettings/repository"
	"github.com/smallbiznis/bizdash/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testAccountID snowflake.ID = 2010735548360036353

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&settingsdomain.Settings{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, repo settingsdomain.Repository, defaultCurrency string) (settingsdomain.Service, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(Params{
		DB:     db,
		Log:    zap.New(core),
		Config: config.Config{DefaultCurrency: defaultCurrency},
		Clock:  clock.NewFakeClock(testNow),
		Repo:   repo,
	})
	return svc, logs
}

func accountCtx() context.Context {
	return accountcontext.WithAccountID(context.Background(), testAccountID)
}

type failingRepo struct{}

func (failingRepo) FindByAccount(context.Context, *gorm.DB, snowflake.ID) (*settingsdomain.Settings, error) {
	return nil, errors.New("dial tcp 10.0.0.7:5432: connection refused")
}

func (failingRepo) Upsert(context.Context, *gorm.DB, *settingsdomain.Settings) error {
	return errors.New("dial tcp 10.0.0.7:5432: connection refused")
}

func (failingRepo) UpsertCurrency(context.Context, *gorm.DB, *settingsdomain.Settings) error {
	return errors.New("dial tcp 10.0.0.7:5432: connection refused")
}

func TestGetReturnsDefaultsWhenMissing(t *testing.T) {
	svc, logs := newTestService(t, setupDB(t), repository.Provide(), "INR")

	resp, err := svc.Get(accountCtx())
	require.NoError(t, err)
	assert.Equal(t, "INR", resp.Currency)
	assert.False(t, resp.Persisted)
	assert.Equal(t, testAccountID.String(), resp.AccountID)
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestGetFallsBackOnStoreFailure(t *testing.T) {
	svc, logs := newTestService(t, nil, failingRepo{}, "EUR")

	resp, err := svc.Get(accountCtx())
	require.NoError(t, err)
	assert.Equal(t, "EUR", resp.Currency)
	assert.False(t, resp.Persisted)
	assert.Equal(t, 1, logs.FilterMessage("load company settings failed, using defaults").Len())
}

func TestGetRequiresAccount(t *testing.T) {
	svc, _ := newTestService(t, setupDB(t), repository.Provide(), "USD")

	_, err := svc.Get(context.Background())
	assert.ErrorIs(t, err, settingsdomain.ErrInvalidAccount)
}

func TestUpdateUpsertsSettings(t *testing.T) {
	db := setupDB(t)
	svc, _ := newTestService(t, db, repository.Provide(), "USD")
	ctx := accountCtx()

	resp, err := svc.Update(ctx, settingsdomain.UpdateRequest{
		Name:     "  Acme Traders ",
		Currency: "inr",
		Email:    "billing@acme.test",
		GSTIN:    "29abcde1234f1z5",
		Extra:    map[string]any{"invoice_prefix": "ACM", "": "dropped"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Traders", resp.Name)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, "29ABCDE1234F1Z5", resp.GSTIN)
	assert.Equal(t, map[string]any{"invoice_prefix": "ACM"}, resp.Extra)

	_, err = svc.Update(ctx, settingsdomain.UpdateRequest{Name: "Acme Traders Pvt Ltd", Currency: "EUR"})
	require.NoError(t, err)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.Persisted)
	assert.Equal(t, "Acme Traders Pvt Ltd", got.Name)
	assert.Equal(t, "EUR", got.Currency)

	var count int64
	require.NoError(t, db.Model(&settingsdomain.Settings{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, setupDB(t), repository.Provide(), "USD")
	ctx := accountCtx()

	cases := []struct {
		name string
		req  settingsdomain.UpdateRequest
		want error
	}{
		{"missing name", settingsdomain.UpdateRequest{Currency: "USD"}, settingsdomain.ErrInvalidName},
		{"unknown currency", settingsdomain.UpdateRequest{Name: "Acme", Currency: "ABC"}, settingsdomain.ErrInvalidCurrency},
		{"malformed currency", settingsdomain.UpdateRequest{Name: "Acme", Currency: "dollars"}, settingsdomain.ErrInvalidCurrency},
		{"bad email", settingsdomain.UpdateRequest{Name: "Acme", Email: "not-an-email"}, settingsdomain.ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdateSurfacesStoreFailure(t *testing.T) {
	svc, _ := newTestService(t, nil, failingRepo{}, "USD")

	_, err := svc.Update(accountCtx(), settingsdomain.UpdateRequest{Name: "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save company settings")
}

func TestNewServiceRejectsUnknownDefaultCurrency(t *testing.T) {
	svc, logs := newTestService(t, setupDB(t), repository.Provide(), "ZZZ")

	resp, err := svc.Get(accountCtx())
	require.NoError(t, err)
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, 1, logs.FilterMessage("configured default currency is not an ISO 4217 code").Len())
}

func TestFormatAmount(t *testing.T) {
	svc, _ := newTestService(t, nil, repository.Provide(), "USD")

	got, err := svc.FormatAmount("USD", 12.5)
	require.NoError(t, err)
	assert.Equal(t, "USD 12.50", got)

	got, err = svc.FormatAmount("jpy", 125)
	require.NoError(t, err)
	assert.Equal(t, "JPY 125", got)

	got, err = svc.FormatAmount("", 3)
	require.NoError(t, err)
	assert.Equal(t, "USD 3.00", got)

	_, err = svc.FormatAmount("ABC", 1)
	assert.ErrorIs(t, err, settingsdomain.ErrInvalidCurrency)
}

func TestSetCurrencyKeepsOtherSettings(t *testing.T) {
	db := setupDB(t)
	svc, _ := newTestService(t, db, repository.Provide(), "USD")
	ctx := accountCtx()

	_, err := svc.Update(ctx, settingsdomain.UpdateRequest{Name: "Acme Traders", City: "Pune", Currency: "INR"})
	require.NoError(t, err)

	resp, err := svc.SetCurrency(ctx, " eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", resp.Currency)
	assert.Equal(t, "Acme Traders", resp.Name)
	assert.Equal(t, "Pune", resp.City)
	assert.True(t, resp.Persisted)

	var count int64
	require.NoError(t, db.Model(&settingsdomain.Settings{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetCurrencyCreatesRowWhenMissing(t *testing.T) {
	db := setupDB(t)
	svc, _ := newTestService(t, db, repository.Provide(), "USD")

	resp, err := svc.SetCurrency(accountCtx(), "GBP")
	require.NoError(t, err)
	assert.Equal(t, "GBP", resp.Currency)
	assert.Empty(t, resp.Name)

	got, err := svc.Get(accountCtx())
	require.NoError(t, err)
	assert.Equal(t, "GBP", got.Currency)
	assert.True(t, got.Persisted)
}

func TestSetCurrencyValidates(t *testing.T) {
	svc, _ := newTestService(t, setupDB(t), repository.Provide(), "USD")

	_, err := svc.SetCurrency(accountCtx(), "dollars")
	assert.ErrorIs(t, err, settingsdomain.ErrInvalidCurrency)

	_, err = svc.SetCurrency(context.Background(), "EUR")
	assert.ErrorIs(t, err, settingsdomain.ErrInvalidAccount)

	failing, _ := newTestService(t, nil, failingRepo{}, "USD")
	_, err = failing.SetCurrency(accountCtx(), "EUR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save company currency")
}
