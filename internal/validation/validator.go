package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/blog-comment-api/internal/models"
)

const maxPostIDLength = 256

// Validator checks request inputs against the configured allow-lists.
type Validator struct {
	allowedPostIDs    map[string]bool
	allowedReturnURLs []string
	maxBodyLength     int
}

// NewValidator creates a validator instance. Empty allow-lists disable the
// corresponding membership checks.
func NewValidator(allowedPostIDs, allowedReturnURLs []string, maxBodyLength int) *Validator {
	postIDs := make(map[string]bool, len(allowedPostIDs))
	for _, id := range allowedPostIDs {
		postIDs[id] = true
	}
	return &Validator{
		allowedPostIDs:    postIDs,
		allowedReturnURLs: allowedReturnURLs,
		maxBodyLength:     maxBodyLength,
	}
}

// ValidatePostID validates a target post identifier
func (v *Validator) ValidatePostID(postID string) error {
	if postID == "" {
		return models.NewValidation("post_id is required")
	}
	if len(postID) > maxPostIDLength {
		return models.NewValidation("post_id is too long")
	}
	if len(v.allowedPostIDs) > 0 && !v.allowedPostIDs[postID] {
		return models.NewValidation("post_id is not an allowed post")
	}
	return nil
}

// ValidateReturnURL validates the post-flow redirect destination. Empty is
// allowed; the caller falls back to a configured default.
func (v *Validator) ValidateReturnURL(returnURL string) error {
	if returnURL == "" {
		return nil
	}
	u, err := url.Parse(returnURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewValidation("return_url must be an absolute http(s) URL")
	}
	if len(v.allowedReturnURLs) == 0 {
		return nil
	}
	for _, prefix := range v.allowedReturnURLs {
		if strings.HasPrefix(returnURL, prefix) {
			return nil
		}
	}
	return models.NewValidation("return_url is not an allowed destination")
}

// ValidateCommentBody trims and validates submitted comment text, returning
// the trimmed body.
func (v *Validator) ValidateCommentBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", models.NewValidation("comment_text must not be empty")
	}
	if v.maxBodyLength > 0 && len(trimmed) > v.maxBodyLength {
		return "", models.NewValidation(fmt.Sprintf("comment_text exceeds maximum of %d characters", v.maxBodyLength))
	}
	return trimmed, nil
}

// ValidateCommentID validates a comment identifier
func (v *Validator) ValidateCommentID(id string) error {
	if id == "" {
		return models.NewValidation("comment id is required")
	}
	if !isValidUUID(id) {
		return models.NewValidation("comment id must be a UUID")
	}
	return nil
}

// ValidateState validates a correlation state token
func (v *Validator) ValidateState(state string) error {
	if state == "" {
		return models.NewValidation("state is required")
	}
	if !isValidUUID(state) {
		return models.NewValidation("state must be a UUID")
	}
	return nil
}

// isValidUUID checks if a string is a valid UUID
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
