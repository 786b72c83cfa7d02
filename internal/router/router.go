package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bloktest/session-backend/internal/config"
	"github.com/bloktest/session-backend/internal/handler"
	"github.com/bloktest/session-backend/internal/middleware"
	"github.com/bloktest/session-backend/internal/response"
	"github.com/bloktest/session-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth  *handler.AuthHandler
	Quiz  *handler.QuizHandler
	Block *handler.BlockHandler
	WS    *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/register", handlers.Auth.Register)

		// Authenticated profile routes
		auth.POST("/logout", middleware.RequireUserJWT(authService), handlers.Auth.Logout)
		auth.GET("/me",
			middleware.RequireUserJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
			handlers.Auth.Profile,
		)
	}

	// ─── 2. Quiz Group (JWT + Single Device) ───────────────────────────
	quizAPI := router.Group("/api/v1/quiz")
	quizAPI.Use(
		middleware.RequireUserJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		quizAPI.POST("/start", handlers.Quiz.Start)
		quizAPI.POST("/resume", handlers.Quiz.Resume)
		quizAPI.GET("/state", handlers.Quiz.State)
		quizAPI.POST("/answer", handlers.Quiz.Answer)
		quizAPI.POST("/goto", handlers.Quiz.GoTo)
		quizAPI.POST("/next", handlers.Quiz.Next)
		quizAPI.POST("/prev", handlers.Quiz.Prev)
		quizAPI.POST("/finish", handlers.Quiz.Finish)
		quizAPI.POST("/retry", handlers.Quiz.Retry)
		quizAPI.GET("/attempts", handlers.Quiz.Attempts)
	}

	// ─── 3. Blocks Group (JWT + Single Device) ─────────────────────────
	blocksAPI := router.Group("/api/v1/blocks")
	blocksAPI.Use(
		middleware.RequireUserJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		blocksAPI.GET("", handlers.Block.List)
		blocksAPI.GET("/results", handlers.Block.Results)
		blocksAPI.GET("/ratings/:period", handlers.Block.Ratings)
	}

	// ─── 4. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/quiz/stream", handlers.WS.QuizStream)
	}

	return router
}
