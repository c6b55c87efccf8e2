// Package routesはroutingを行います。
package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/amultiwary/TaskApp/internal/config"
	"github.com/amultiwary/TaskApp/internal/handlers"
	"github.com/amultiwary/TaskApp/internal/logging"
	"github.com/amultiwary/TaskApp/internal/ratelimit"
	"github.com/amultiwary/TaskApp/internal/repositories"
	"github.com/amultiwary/TaskApp/internal/services"
)

// Dependencies はルーターの構築に必要なものです。
// Limiter が nil の場合はプロセス内の固定ウィンドウを使います。
type Dependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      handlers.Pinger
	Users   repositories.UserRepository
	Tasks   repositories.TaskRepository
	Limiter ratelimit.Limiter
}

// SetupRouter はGinルーターをセットアップし、すべてのエンドポイントを登録します。
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	// X-Forwarded-For は設定したプロキシから来た場合だけ ClientIP に使う
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error("Invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), RequestID(), logging.GinLogger(logger))

	// CORS対策
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// サービス
	hasher := services.NewPasswordHasher(cfg.BcryptCost)
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	userService := services.NewUserService(deps.Users, hasher)
	authService := services.NewAuthService(userService, hasher, jwtService)
	taskService := services.NewTaskService(deps.Tasks)
	statsService := services.NewStatsService(deps.Tasks)

	// ハンドラー
	authHandler := handlers.NewAuthHandler(authService, logger)
	taskHandler := handlers.NewTaskHandler(taskService, statsService, logger)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
	}

	api := r.Group("/api")
	api.GET("/health", handlers.HealthHandler(deps.DB))

	auth := api.Group("/auth")
	{
		limited := ratelimit.Middleware(limiter, logger)
		auth.POST("/register", limited, authHandler.RegisterHandler)
		auth.POST("/login", limited, authHandler.LoginHandler)
		auth.GET("/me", AuthMiddleware(authService), authHandler.MeHandler)
	}

	authorized := api.Group("/tasks")
	authorized.Use(AuthMiddleware(authService))
	{
		authorized.GET("", taskHandler.GetTasksHandler)
		authorized.GET("/stats", taskHandler.GetStatsHandler)
		authorized.GET("/:id", taskHandler.GetTaskByIDHandler)
		authorized.POST("", taskHandler.CreateTaskHandler)
		authorized.PATCH("/:id", taskHandler.UpdateTaskHandler)
		authorized.PATCH("/:id/toggle", taskHandler.ToggleTaskHandler)
		authorized.DELETE("/:id", taskHandler.DeleteTaskHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})
	return r
}
