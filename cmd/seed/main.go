package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"chat-presence/internal/auth"
	"chat-presence/internal/config"
	"chat-presence/internal/database"
	"chat-presence/internal/logger"
	"chat-presence/internal/models"
	"chat-presence/internal/repositories/postgres"
)

var seedUsers = []struct {
	username string
	knownAs  string
}{
	{"admin", "Admin"},
	{"alice", "Alice"},
	{"bob", "Bob"},
	{"carol", "Carol"},
}

// seed creates the development users in the SQL store and prints a bearer
// token for each.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.Store.Driver == config.DriverMemory {
		slog.Info("Memory store selected, set DEV_USERS on the server instead; printing tokens only")
	} else {
		db, err := database.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		defer database.Close(db)

		userRepo := postgres.NewUserRepository(db)
		ctx := context.Background()
		for _, u := range seedUsers {
			user := &models.User{Username: u.username, KnownAs: u.knownAs}
			if err := userRepo.Create(ctx, user); err != nil {
				slog.Warn("User might already exist", "username", u.username, "error", err)
				continue
			}
			slog.Info("Created user", "id", user.ID, "username", u.username)
		}
	}

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpirationTime)
	for _, u := range seedUsers {
		token, err := tokens.Issue(u.username)
		if err != nil {
			log.Fatal("Failed to issue token:", err)
		}
		fmt.Printf("%s\t%s\n", u.username, token)
	}
}
