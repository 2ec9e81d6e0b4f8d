package routes

import (
	"log/slog"
	"net/http"
	"time"

	"chat-presence/internal/api/handlers"
	"chat-presence/internal/api/middleware"
	"chat-presence/internal/repositories"
	"chat-presence/internal/services"
	"chat-presence/internal/websocket"

	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators the HTTP surface is built from. A nil
// Limiter disables rate limiting; a nil Logger uses slog.Default.
type Dependencies struct {
	Hub            *websocket.Hub
	Users          repositories.UserStore
	Messages       *services.MessageService
	Tokens         middleware.TokenVerifier
	Limiter        middleware.RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Router struct {
	engine          *gin.Engine
	hub             *websocket.Hub
	wsHandler       *handlers.WSHandler
	presenceHandler *handlers.PresenceHandler
	messageHandler  *handlers.MessageHandler
	rateLimitMW     *middleware.RateLimitMiddleware
	authMW          *middleware.AuthMiddleware
}

func NewRouter(deps Dependencies) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi(deps.Logger))

	return &Router{
		engine:          engine,
		hub:             deps.Hub,
		wsHandler:       handlers.NewWSHandler(deps.Hub, deps.Users),
		presenceHandler: handlers.NewPresenceHandler(deps.Hub, deps.Users),
		messageHandler:  handlers.NewMessageHandler(deps.Messages),
		rateLimitMW:     middleware.NewRateLimitMiddleware(deps.Limiter),
		authMW:          middleware.NewAuthMiddleware(deps.Tokens),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": r.hub.ClientCount()})
	})

	api := r.engine.Group("/api/v1")
	api.Use(r.authMW.RequireAuth())
	{
		api.GET("/ws",
			r.rateLimitMW.WebSocketRateLimit(30, time.Minute),
			r.wsHandler.HandleWebSocket,
		)

		presence := api.Group("/presence")
		presence.Use(r.rateLimitMW.RateLimit(100, time.Minute))
		{
			presence.GET("/online", r.presenceHandler.GetOnlineUsers)
			presence.GET("/:username", r.presenceHandler.GetUserPresence)
		}

		messages := api.Group("/messages")
		messages.Use(r.rateLimitMW.RateLimit(200, time.Minute))
		{
			messages.GET("/thread/:username", r.messageHandler.GetMessageThread)
			messages.DELETE("/:id", r.messageHandler.DeleteMessage)
		}
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
