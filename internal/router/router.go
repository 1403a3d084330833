package router

import (
	"time"

	"github.com/brototype/portal-backend/internal/config"
	"github.com/brototype/portal-backend/internal/handler"
	"github.com/brototype/portal-backend/internal/middleware"
	"github.com/brototype/portal-backend/internal/response"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Passcode *handler.PasscodeHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// Guards are the access checks shared by the route groups.
type Guards struct {
	Auth  middleware.Authenticator
	Admin middleware.AdminChecker
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	guards Guards,
	handlers *Handlers,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	requireAuth := middleware.RequireAuth(guards.Auth)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(rdb, "auth", cfg.AuthRateLimit, time.Minute, log)

	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware(), middleware.NoStore())
	{
		auth.POST("/student/signup", handlers.Auth.StudentSignup)
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)
		auth.POST("/token/refresh", handlers.Auth.RefreshToken)
		auth.POST("/password/forgot", handlers.Auth.ForgotPassword)
		auth.POST("/password/recover", handlers.Auth.RecoverSession)

		// Authenticated routes
		auth.POST("/logout", requireAuth, handlers.Auth.Logout)
		auth.POST("/password/update", requireAuth, handlers.Auth.UpdatePassword)
		auth.GET("/me", requireAuth, handlers.Auth.Me)
	}

	// ─── 2. Session Socket ─────────────────────────────────────────────
	// Authentication happens inside the socket: a connection may start
	// signed out and log in over the channel.
	ws := router.Group("/ws/v1")
	{
		ws.GET("/session", handlers.WS.SessionSocket)
	}

	// ─── 3. Admin Group (JWT + stored role) ────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(requireAuth, middleware.RequireAdmin(guards.Admin), middleware.NoStore())
	{
		adminAPI.GET("/passcodes", handlers.Passcode.ListPasscodes)
		adminAPI.POST("/passcodes", handlers.Passcode.CreatePasscodes)

		adminAPI.GET("/system/status", handlers.System.Status)
	}

	return router
}
