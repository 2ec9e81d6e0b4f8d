package main

import (
	"log"
	"log/slog"

	"chat-presence/internal/config"
	"chat-presence/internal/database"
	"chat-presence/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.Store.Driver == config.DriverMemory {
		log.Fatal("STORE_DRIVER is memory, nothing to migrate")
	}

	slog.Info("Starting database migration...", "driver", cfg.Store.Driver)

	// Open runs the auto-migration.
	db, err := database.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	defer database.Close(db)

	slog.Info("Database migration completed successfully!")
}
