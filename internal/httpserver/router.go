package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"instapulse/internal/handler"
	"instapulse/internal/service/auth"
	"instapulse/pkg/otel"
	"instapulse/pkg/rbac"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
}

type Handlers struct {
	Auth      *handler.AuthHandler
	Post      *handler.PostHandler
	Analytics *handler.AnalyticsHandler
	Admin     *handler.AdminHandler
}

func NewRouter(h Handlers, authService *auth.Service, db Pinger, log *zap.Logger) *Router {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		TraceMiddleware(),
		otel.GinMiddleware(),
		RequestLogger(log),
		CORSMiddleware(),
	)

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/auth/login", h.Auth.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService))

	authGroup := protected.Group("/auth")
	{
		authGroup.GET("/profile", h.Auth.Profile)
		authGroup.POST("/register", RequirePermission(rbac.PermissionManageAccounts), h.Auth.Register)
		authGroup.GET("/users", RequirePermission(rbac.PermissionManageAccounts), h.Auth.ListUsers)
		authGroup.DELETE("/users/:id", RequirePermission(rbac.PermissionManageAccounts), h.Auth.DeleteUser)
	}

	posts := protected.Group("/posts")
	{
		posts.POST("/submit", RequirePermission(rbac.PermissionSubmitPost), h.Post.Submit)
		posts.GET("/my-posts", RequirePermission(rbac.PermissionReadOwnPosts), h.Post.MyPosts)
		posts.GET("/all", RequirePermission(rbac.PermissionReadAllPosts), h.Post.AllPosts)
		posts.GET("/:id", RequirePermission(rbac.PermissionReadAllPosts), h.Post.GetPost)
		posts.DELETE("/:id", RequirePermission(rbac.PermissionDeleteOwnPost), h.Post.DeletePost)
	}

	analytics := protected.Group("/analytics")
	{
		analytics.POST("/refresh/:postId", RequirePermission(rbac.PermissionRefresh), h.Analytics.RefreshPost)
		analytics.POST("/refresh-all", RequirePermission(rbac.PermissionRefresh), h.Analytics.RefreshAll)
		analytics.GET("/post/:postId", RequirePermission(rbac.PermissionReadAnalytics), h.Analytics.PostAnalytics)
		analytics.GET("/summary", RequirePermission(rbac.PermissionReadAnalytics), h.Analytics.Summary)
		analytics.GET("/user/:userId", RequirePermission(rbac.PermissionReadAnalytics), h.Analytics.UserAnalytics)
	}

	admin := protected.Group("/admin", RequirePermission(rbac.PermissionReplayOutbox))
	{
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}
