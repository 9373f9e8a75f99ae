package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/psikotes-backend/internal/config"
	"github.com/stemsi/psikotes-backend/internal/handler"
	"github.com/stemsi/psikotes-backend/internal/middleware"
	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/response"
	"github.com/stemsi/psikotes-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
	Result  *handler.ResultHandler
	Scoring *handler.ScoringHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable candidate rate limiting.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Candidate Group (JWT + rate limit) ─────────────────────────
	candidate := router.Group("/api/v1/candidate")
	candidate.Use(middleware.RequireCandidateJWT(authService), middleware.NoStore())
	if limiter != nil {
		candidate.Use(limiter.Middleware())
	}
	{
		candidate.POST("/exams/:exam_id/attempt", handlers.Attempt.Begin)
		candidate.GET("/attempts/:attempt_id", handlers.Attempt.State)
		candidate.PUT("/attempts/:attempt_id/answers", handlers.Attempt.Autosave)
		candidate.POST("/attempts/:attempt_id/answers/beacon", handlers.Attempt.Beacon)
		candidate.POST("/attempts/:attempt_id/submit", handlers.Attempt.Submit)
	}

	// ─── 2. WebSocket Group (token via query) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateJWT(authService))
	{
		ws.GET("/candidate/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService), middleware.NoStore())
	{
		adminAPI.GET("/exams/:exam_id/attempts",
			middleware.RequirePermission(string(model.PermissionResultsRead)),
			handlers.Result.ListResults,
		)
		adminAPI.GET("/attempts/:attempt_id",
			middleware.RequirePermission(string(model.PermissionResultsRead)),
			handlers.Result.GetResult,
		)
		adminAPI.GET("/exams/:exam_id/monitor",
			middleware.RequirePermission(string(model.PermissionResultsRead)),
			handlers.Monitor.MonitorExamSSE,
		)

		adminAPI.POST("/scoring/pss",
			middleware.RequirePermission(string(model.PermissionScoringRun)),
			handlers.Scoring.ScorePSS,
		)
		adminAPI.POST("/scoring/srq29",
			middleware.RequirePermission(string(model.PermissionScoringRun)),
			handlers.Scoring.ScoreSRQ29,
		)

		adminAPI.GET("/system/metrics",
			middleware.RequireAnyPermission(string(model.PermissionResultsRead), string(model.PermissionScoringRun)),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}
