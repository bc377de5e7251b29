package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	settingsdomain "github.com/smallbiznis/bizdash/internal/companysettings/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() settingsdomain.Repository {
	return &repo{}
}

func (r *repo) FindByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*settingsdomain.Settings, error) {
	var settings settingsdomain.Settings
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Take(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, settings *settingsdomain.Settings) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "logo_url", "currency", "address", "city", "state", "zip_code",
			"country", "phone", "email", "website", "gstin", "pan", "extra", "updated_at",
		}),
	}).Create(settings).Error
}

func (r *repo) UpsertCurrency(ctx context.Context, db *gorm.DB, settings *settingsdomain.Settings) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"currency", "updated_at"}),
	}).Create(settings).Error
}
