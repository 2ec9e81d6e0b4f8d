package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-presence/internal/api/middleware"
	"chat-presence/internal/api/routes"
	"chat-presence/internal/auth"
	"chat-presence/internal/config"
	"chat-presence/internal/database"
	"chat-presence/internal/group"
	"chat-presence/internal/logger"
	"chat-presence/internal/models"
	"chat-presence/internal/presence"
	"chat-presence/internal/repositories"
	"chat-presence/internal/repositories/memory"
	"chat-presence/internal/repositories/postgres"
	"chat-presence/internal/services"
	"chat-presence/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	slog.Info("Starting chat presence server", "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	messageStore, userStore, closeStore, err := openStores(cfg.Store)
	if err != nil {
		slog.Error("Failed to open stores", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	tracker := presence.NewTracker(presence.NewRegistry(), slog.Default())

	// Optional redis: presence mirror and rate limiting.
	var limiter middleware.RateLimiter
	mirrorDone := make(chan struct{})
	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	defer stopMirror()
	if cfg.Redis.URL != "" {
		redisClient, err := database.NewRedisConnection(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		redisService := services.NewRedisService(redisClient, cfg.Redis.StatusTTL)
		if err := redisService.Reset(ctx, time.Now().UTC()); err != nil {
			slog.Warn("Failed to reset mirrored presence", "error", err)
		}
		limiter = redisService

		mirror := services.NewPresenceMirror(redisService, 1024, slog.Default())
		tracker.AddPublisher(mirror)
		go func() {
			mirror.Run(mirrorCtx)
			close(mirrorDone)
		}()
	} else {
		close(mirrorDone)
	}

	hub := websocket.NewHub(tracker, group.NewManager(), messageStore, userStore, websocket.Options{
		SendBufferSize: cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, slog.Default())

	router := routes.NewRouter(routes.Dependencies{
		Hub:            hub,
		Users:          userStore,
		Messages:       services.NewMessageService(messageStore, userStore, hub),
		Tokens:         auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpirationTime),
		Limiter:        limiter,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		Logger:         slog.Default(),
	})
	router.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Hijacked WebSocket connections are not closed by Shutdown.
	hub.Close()

	stopMirror()
	select {
	case <-mirrorDone:
	case <-shutdownCtx.Done():
		slog.Warn("Presence mirror did not drain before shutdown timeout")
	}

	slog.Info("Server stopped")
}

func openStores(cfg config.StoreConfig) (repositories.MessageStore, repositories.UserStore, func(), error) {
	if cfg.Driver == config.DriverMemory {
		users := memory.NewUserRepository()
		for _, username := range cfg.DevUsers {
			users.Put(&models.User{Username: models.NormalizeUsername(username)})
		}
		slog.Info("Using in-memory store", "devUsers", len(cfg.DevUsers))
		return memory.NewMessageRepository(), users, func() {}, nil
	}

	db, err := database.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		if err := database.Close(db); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}
	return postgres.NewMessageRepository(db), postgres.NewUserRepository(db), closeDB, nil
}
