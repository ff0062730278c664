// Command migrate applies or rolls back the database schema.
//
// Usage:
//
//	migrate up
//	migrate down
package main

import (
	"fmt"
	"os"

	"github.com/lothammer/auction-backend/internal/infrastructure/config"
	"github.com/lothammer/auction-backend/internal/infrastructure/database"
	"github.com/lothammer/auction-backend/internal/infrastructure/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: migrate up|down")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	const source = "file://migrations"
	switch os.Args[1] {
	case "up":
		return database.MigrateUp(cfg.Database.URL, source, logger)
	case "down":
		return database.MigrateDown(cfg.Database.URL, source, logger)
	default:
		return fmt.Errorf("unknown command %q; want up or down", os.Args[1])
	}
}
