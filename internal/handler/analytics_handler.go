package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instapulse/internal/service/analytics"
)

type AnalyticsHandler struct {
	analyticsService *analytics.Service
	logger           *zap.Logger
}

func NewAnalyticsHandler(analyticsService *analytics.Service, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService, logger: logger}
}

// RefreshPost handles POST /api/analytics/refresh/:postId
func (h *AnalyticsHandler) RefreshPost(c *gin.Context) {
	id, ok := pathID(c, "postId", "Invalid post ID")
	if !ok {
		return
	}
	snap, err := h.analyticsService.RefreshPost(c.Request.Context(), id)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Analytics updated successfully",
		"analytics": snap,
	})
}

// PostAnalytics handles GET /api/analytics/post/:postId
func (h *AnalyticsHandler) PostAnalytics(c *gin.Context) {
	id, ok := pathID(c, "postId", "Invalid post ID")
	if !ok {
		return
	}
	snap, err := h.analyticsService.PostAnalytics(c.Request.Context(), id)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analytics": snap})
}

// RefreshAll handles POST /api/analytics/refresh-all
// 同步执行，请求在所有帖子刷新完成后才返回
func (h *AnalyticsHandler) RefreshAll(c *gin.Context) {
	res, err := h.analyticsService.RefreshAll(c.Request.Context())
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Summary handles GET /api/analytics/summary
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	report, err := h.analyticsService.Summary(c.Request.Context())
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// UserAnalytics handles GET /api/analytics/user/:userId
func (h *AnalyticsHandler) UserAnalytics(c *gin.Context) {
	id, ok := pathID(c, "userId", "Invalid user ID")
	if !ok {
		return
	}
	report, err := h.analyticsService.AccountSummary(c.Request.Context(), id)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
