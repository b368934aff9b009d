package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instapulse/pkg/apperr"
	"instapulse/pkg/logger"
	"instapulse/pkg/rbac"
)

const subjectKey = "subject"

// SetSubject stores the authenticated account on the request context.
func SetSubject(c *gin.Context, s rbac.Subject) {
	c.Set(subjectKey, s)
}

// CurrentSubject returns the account set by the auth middleware.
func CurrentSubject(c *gin.Context) (rbac.Subject, bool) {
	v, ok := c.Get(subjectKey)
	if !ok {
		return rbac.Subject{}, false
	}
	s, ok := v.(rbac.Subject)
	return s, ok
}

// subject aborts with 401 when no account is attached.
func subject(c *gin.Context) (rbac.Subject, bool) {
	s, ok := CurrentSubject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return rbac.Subject{}, false
	}
	return s, true
}

// WriteError maps err to its HTTP status and writes {"error": msg}.
// Store and internal failures are logged and reported generically.
func WriteError(c *gin.Context, log *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindStore || kind == apperr.KindInternal || kind == apperr.KindUpstream {
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
	c.JSON(kind.HTTPStatus(), gin.H{"error": apperr.PublicMessage(err)})
}

func pathID(c *gin.Context, name, msg string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return 0, false
	}
	return id, true
}
