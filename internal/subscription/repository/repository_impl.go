package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizdash/internal/clock"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db    *gorm.DB
	clock clock.Clock
}

// Provide returns a Store backed by the relational database.
func Provide(db *gorm.DB, clk clock.Clock) subscriptiondomain.Store {
	return &repo{db: db, clock: clk}
}

func (r *repo) LoadPlan(ctx context.Context, accountID snowflake.ID) (plandomain.Plan, error) {
	if accountID == 0 {
		return plandomain.DefaultPlan, subscriptiondomain.ErrInvalidAccount
	}

	var row subscriptiondomain.SubscriptionPlan
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return plandomain.DefaultPlan, subscriptiondomain.ErrNotFound
		}
		return plandomain.DefaultPlan, err
	}

	return plandomain.ParsePlan(row.Plan)
}

func (r *repo) SavePlan(ctx context.Context, accountID snowflake.ID, plan plandomain.Plan, stamp subscriptiondomain.Stamp) error {
	if accountID == 0 {
		return subscriptiondomain.ErrInvalidAccount
	}
	if !plan.Valid() {
		return fmt.Errorf("%w: %d", subscriptiondomain.ErrInvalidPlan, plan)
	}

	row := subscriptiondomain.SubscriptionPlan{
		AccountID: accountID,
		Plan:      plan.String(),
		SessionID: stamp.SessionID,
		Version:   stamp.Version,
		UpdatedAt: r.clock.Now(),
	}
	return r.guardedUpsert(ctx, row.TableName(), &row, []string{"plan", "session_id", "version", "updated_at"})
}

func (r *repo) LoadUsage(ctx context.Context, accountID snowflake.ID) (subscriptiondomain.Usage, error) {
	if accountID == 0 {
		return subscriptiondomain.Usage{}, subscriptiondomain.ErrInvalidAccount
	}

	var row subscriptiondomain.SubscriptionUsage
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return subscriptiondomain.Usage{}, subscriptiondomain.ErrNotFound
		}
		return subscriptiondomain.Usage{}, err
	}

	counters := subscriptiondomain.UsageCounters{Invoices: row.Invoices, Bills: row.Bills}
	if !counters.Valid() {
		return subscriptiondomain.Usage{}, fmt.Errorf("%w: invoices=%d bills=%d", subscriptiondomain.ErrInvalidUsage, row.Invoices, row.Bills)
	}

	return subscriptiondomain.Usage{
		Counters:    counters,
		PeriodStart: row.PeriodStart.UTC(),
	}, nil
}

func (r *repo) SaveUsage(ctx context.Context, accountID snowflake.ID, usage subscriptiondomain.Usage, stamp subscriptiondomain.Stamp) error {
	if accountID == 0 {
		return subscriptiondomain.ErrInvalidAccount
	}
	if !usage.Counters.Valid() {
		return subscriptiondomain.ErrInvalidUsage
	}

	row := subscriptiondomain.SubscriptionUsage{
		AccountID:   accountID,
		Invoices:    usage.Counters.Invoices,
		Bills:       usage.Counters.Bills,
		PeriodStart: usage.PeriodStart.UTC(),
		SessionID:   stamp.SessionID,
		Version:     stamp.Version,
		UpdatedAt:   r.clock.Now(),
	}
	return r.guardedUpsert(ctx, row.TableName(), &row, []string{"invoices", "bills", "period_start", "session_id", "version", "updated_at"})
}

// guardedUpsert inserts row or overwrites the stored one unless the stored
// row belongs to the same session at an equal or newer version.
func (r *repo) guardedUpsert(ctx context.Context, table string, row any, columns []string) error {
	db := r.db.WithContext(ctx)
	if strings.EqualFold(db.Dialector.Name(), "mysql") {
		return r.lockedUpsert(db, table, row, columns)
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: fmt.Sprintf(
				"%[1]s.session_id <> excluded.session_id OR %[1]s.version < excluded.version", table,
			)},
		}},
	}).Create(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrStaleWrite
	}
	return nil
}

// lockedUpsert is the guarded write for dialects whose upsert cannot carry a
// condition.
func (r *repo) lockedUpsert(db *gorm.DB, table string, row any, columns []string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var current struct {
			SessionID string
			Version   int64
		}
		stamp := stampOf(row)

		err := tx.Table(table).
			Select("session_id", "version").
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ?", accountIDOf(row)).
			Take(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(row).Error
		case err != nil:
			return err
		}

		if current.SessionID == stamp.SessionID && current.Version >= stamp.Version {
			return subscriptiondomain.ErrStaleWrite
		}
		return tx.Select(columns).Updates(row).Error
	})
}

func stampOf(row any) subscriptiondomain.Stamp {
	switch v := row.(type) {
	case *subscriptiondomain.SubscriptionPlan:
		return subscriptiondomain.Stamp{SessionID: v.SessionID, Version: v.Version}
	case *subscriptiondomain.SubscriptionUsage:
		return subscriptiondomain.Stamp{SessionID: v.SessionID, Version: v.Version}
	default:
		return subscriptiondomain.Stamp{}
	}
}

func accountIDOf(row any) snowflake.ID {
	switch v := row.(type) {
	case *subscriptiondomain.SubscriptionPlan:
		return v.AccountID
	case *subscriptiondomain.SubscriptionUsage:
		return v.AccountID
	default:
		return 0
	}
}
