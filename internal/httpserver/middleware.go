package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instapulse/internal/handler"
	"instapulse/internal/service/auth"
	"instapulse/internal/util"
	"instapulse/pkg/apperr"
	"instapulse/pkg/logger"
	"instapulse/pkg/metrics"
	"instapulse/pkg/rbac"
	"instapulse/pkg/trace"
)

// TraceMiddleware 读取或生成 X-Trace-ID，写入请求 context 和响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(trace.HeaderName()); id != "" {
			ctx = trace.WithContext(ctx, id)
		}
		ctx, id := trace.Ensure(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName(), id)
		c.Next()
	}
}

// RequestLogger 记录访问日志和请求耗时
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), elapsed)

		logger.WithTrace(c.Request.Context(), log).Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		)
	}
}

// CORSMiddleware 前端与 API 不同源
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", trace.HeaderName()},
		ExposeHeaders:   []string{"Content-Length", trace.HeaderName()},
		MaxAge:          12 * time.Hour,
	})
}

// AuthMiddleware 校验 Bearer token 并把账号身份放进 context
func AuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := authService.Authenticate(util.ExtractToken(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.PublicMessage(err)})
			return
		}
		handler.SetSubject(c, subject)
		c.Next()
	}
}

// RequirePermission 中间件：要求当前账号持有指定权限
func RequirePermission(permission rbac.Permission) gin.HandlerFunc {
	msg := "Insufficient permissions"
	if !rbac.HasPermission(rbac.RoleIntern, permission) {
		msg = "Admin access required"
	}

	return func(c *gin.Context) {
		subject, ok := handler.CurrentSubject(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}
		if err := rbac.CheckPermission(subject, permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
			return
		}
		c.Next()
	}
}
