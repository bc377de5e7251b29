// Package domain contains persistence models for account plans and usage
// counters, and the store boundary they are loaded from and saved to.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageCounters holds the current-period counters of one account.
type UsageCounters struct {
	Invoices int64 `json:"invoices"`
	Bills    int64 `json:"bills"`
}

// Valid reports whether both counters are non-negative.
func (u UsageCounters) Valid() bool {
	return u.Invoices >= 0 && u.Bills >= 0
}

// Usage is the usage row of an account: its counters and the start of the
// period they accumulate over.
type Usage struct {
	Counters    UsageCounters
	PeriodStart time.Time
}

// Stamp orders the writes issued by one session. Versions increase
// monotonically within a session.
type Stamp struct {
	SessionID string
	Version   int64
}

// SubscriptionPlan stores the active plan of an account.
type SubscriptionPlan struct {
	AccountID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Plan      string       `gorm:"type:text;not null"`
	SessionID string       `gorm:"type:text;not null"`
	Version   int64        `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// SubscriptionUsage stores the usage counters of an account for the current
// period.
type SubscriptionUsage struct {
	AccountID   snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Invoices    int64        `gorm:"not null"`
	Bills       int64        `gorm:"not null"`
	PeriodStart time.Time    `gorm:"not null"`
	SessionID   string       `gorm:"type:text;not null"`
	Version     int64        `gorm:"not null"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (SubscriptionUsage) TableName() string { return "subscription_usages" }
