package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instapulse/internal/service/post"
)

type PostHandler struct {
	postService *post.Service
	logger      *zap.Logger
}

func NewPostHandler(postService *post.Service, logger *zap.Logger) *PostHandler {
	return &PostHandler{postService: postService, logger: logger}
}

// Submit handles POST /api/posts/submit
// 元数据补全异步进行，这里只返回刚保存的帖子
func (h *PostHandler) Submit(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}

	var req struct {
		InstagramURL string `json:"instagramUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Instagram URL is required"})
		return
	}

	p, err := h.postService.Submit(c.Request.Context(), actor, req.InstagramURL)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Instagram post submitted successfully",
		"post": gin.H{
			"id":              p.ID,
			"instagramUrl":    p.URL,
			"instagramPostId": p.ExternalID,
			"userId":          p.UserID,
		},
	})
}

// MyPosts handles GET /api/posts/my-posts
func (h *PostHandler) MyPosts(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}
	posts, err := h.postService.ListMine(c.Request.Context(), actor)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// AllPosts handles GET /api/posts/all
func (h *PostHandler) AllPosts(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}
	posts, err := h.postService.ListAll(c.Request.Context(), actor)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// GetPost handles GET /api/posts/:id
func (h *PostHandler) GetPost(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "Invalid post ID")
	if !ok {
		return
	}
	v, err := h.postService.Get(c.Request.Context(), actor, id)
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": v})
}

// DeletePost handles DELETE /api/posts/:id
func (h *PostHandler) DeletePost(c *gin.Context) {
	actor, ok := subject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "Invalid post ID")
	if !ok {
		return
	}
	if err := h.postService.Delete(c.Request.Context(), actor, id); err != nil {
		WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}
