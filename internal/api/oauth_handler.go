package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/service"
)

// OAuthHandler handles the provider callback
type OAuthHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewOAuthHandler creates a new OAuthHandler
func NewOAuthHandler(services *service.Services, log zerolog.Logger) *OAuthHandler {
	return &OAuthHandler{
		services: services,
		log:      log.With().Str("handler", "oauth").Logger(),
	}
}

// Callback handles GET /api/v1/oauth/callback. The browser arrives here from
// the provider; on any classified outcome it is sent back to the blog page.
func (h *OAuthHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()

	cb := &models.CallbackRequest{
		Code:      c.Query("code"),
		State:     c.Query("state"),
		Action:    models.CommentAction(c.Query("action")),
		PostID:    c.Query("post_id"),
		CommentID: c.Query("comment_id"),
		ReturnURL: c.Query("return_url"),
	}

	if providerErr := c.Query("error"); providerErr != "" {
		h.log.Warn().
			Str("provider_error", providerErr).
			Str("state", cb.State).
			Msg("Provider returned an error")
	}

	redirectURL, err := h.services.Comments.HandleCallback(ctx, cb)
	if err != nil {
		if redirectURL == "" {
			respondError(c, h.log, err)
			return
		}
		// A safe return URL exists; land the user back on the blog with the
		// error parameter instead of a bare error page.
		h.log.Warn().Err(err).Str("state", cb.State).Msg("Callback failed")
	}

	c.Redirect(http.StatusSeeOther, redirectURL)
}
