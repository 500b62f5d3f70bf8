package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/blog-comment-api/internal/config"
	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/service"
)

// CommentHandler handles comment endpoints
type CommentHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *CommentHandler {
	return &CommentHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "comment").Logger(),
	}
}

// ListComments handles GET /api/v1/comments?post_id=...
func (h *CommentHandler) ListComments(c *gin.Context) {
	ctx := c.Request.Context()

	postID := c.Query("post_id")
	comments, err := h.services.Comments.ListComments(ctx, postID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if comments == nil {
		comments = []*models.Comment{}
	}

	c.JSON(http.StatusOK, gin.H{
		"post_id":  postID,
		"count":    len(comments),
		"comments": comments,
	})
}

// GetComment handles GET /api/v1/comments/:id
func (h *CommentHandler) GetComment(c *gin.Context) {
	ctx := c.Request.Context()

	comment, err := h.services.Comments.GetComment(ctx, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, comment)
}

// BeginCreate handles POST /api/v1/comments/begin
func (h *CommentHandler) BeginCreate(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.BeginCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.services.Comments.BeginCreate(ctx, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// BeginEdit handles POST /api/v1/comments/:id/edit
func (h *CommentHandler) BeginEdit(c *gin.Context) {
	h.beginMutation(c, h.services.Comments.BeginEdit)
}

// BeginDelete handles POST /api/v1/comments/:id/delete
func (h *CommentHandler) BeginDelete(c *gin.Context) {
	h.beginMutation(c, h.services.Comments.BeginDelete)
}

func (h *CommentHandler) beginMutation(c *gin.Context, begin func(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error)) {
	ctx := c.Request.Context()

	// The body is optional; an empty POST uses the configured return URL.
	var req models.BeginMutationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	resp, err := begin(ctx, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitCreate handles POST /api/v1/comments/submit
func (h *CommentHandler) SubmitCreate(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.SubmitCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	comment, err := h.services.Comments.SubmitCreate(ctx, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}

// SubmitEdit handles POST /api/v1/comments/:id/submit
func (h *CommentHandler) SubmitEdit(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.SubmitCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	comment, err := h.services.Comments.SubmitEdit(ctx, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, comment)
}
