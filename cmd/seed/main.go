package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/config"
	"github.com/rayenfassatoui/amen-bank/internal/identity"
	"github.com/rayenfassatoui/amen-bank/internal/infra"
	"github.com/rayenfassatoui/amen-bank/internal/lifecycle"
	"github.com/rayenfassatoui/amen-bank/internal/logging"
	"github.com/rayenfassatoui/amen-bank/internal/request"
	"github.com/rayenfassatoui/amen-bank/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := infra.Migrate(ctx, db, logger); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	agencies := agency.NewService(agency.NewPostgresRepository(db))
	users := identity.NewService(identity.NewPostgresRepository(db), agencies, cfg.BcryptCost)
	auditLog := audit.NewPostgresStore(db)
	engine := lifecycle.NewEngine(lifecycle.Deps{
		Requests:  request.NewPostgresRepository(db),
		AuditLog:  auditLog,
		Agencies:  agencies,
		Passwords: users,
		Logger:    logger,
		Currency:  cfg.Currency,
	})

	if err := seed.Run(ctx, seed.Deps{Agencies: agencies, Users: users, Engine: engine, Logger: logger}); err != nil {
		logger.Error("seed", "error", err)
		os.Exit(1)
	}
	logger.Info("seed complete")
}
