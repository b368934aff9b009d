package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instapulse/internal/service/auth"
)

type AuthHandler struct {
	authService *auth.Service
	logger      *zap.Logger
}

func NewAuthHandler(authService *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": auth.LoginMessage(err)})
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   res.Token,
		"user":    res.User,
	})
}

// Register handles POST /api/auth/register (admin only)
func (h *AuthHandler) Register(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}

	var req auth.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": auth.RegisterMessage(err)})
		return
	}

	u, err := h.authService.Register(c.Request.Context(), actor, req)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"user":    u,
	})
}

// Profile handles GET /api/auth/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}
	u, err := h.authService.Profile(c.Request.Context(), actor.ID)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// ListUsers handles GET /api/auth/users
func (h *AuthHandler) ListUsers(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}
	users, err := h.authService.ListUsers(c.Request.Context(), actor)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// DeleteUser handles DELETE /api/auth/users/:id
func (h *AuthHandler) DeleteUser(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "Invalid user ID")
	if !ok {
		return
	}
	if err := h.authService.DeleteUser(c.Request.Context(), actor, id); err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
