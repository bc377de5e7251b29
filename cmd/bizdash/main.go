package main

import (
	"github.com/smallbiznis/bizdash/internal/clock"
	"github.com/smallbiznis/bizdash/internal/companysettings"
	"github.com/smallbiznis/bizdash/internal/config"
	"github.com/smallbiznis/bizdash/internal/entitlement"
	"github.com/smallbiznis/bizdash/internal/migration"
	"github.com/smallbiznis/bizdash/internal/observability"
	"github.com/smallbiznis/bizdash/internal/ratelimit"
	"github.com/smallbiznis/bizdash/internal/server"
	"github.com/smallbiznis/bizdash/internal/subscription"
	"github.com/smallbiznis/bizdash/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// Domains
		subscription.Module,
		entitlement.Module,
		companysettings.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}
