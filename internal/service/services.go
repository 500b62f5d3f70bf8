package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/blog-comment-api/internal/cache"
	"github.com/blog-comment-api/internal/config"
	"github.com/blog-comment-api/internal/identifier"
	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/notify"
	"github.com/blog-comment-api/internal/oauth"
	"github.com/blog-comment-api/internal/repository"
	"github.com/blog-comment-api/internal/validation"
)

// CommentService defines the interface for comment lifecycle operations
type CommentService interface {
	BeginCreate(ctx context.Context, req *models.BeginCommentRequest) (*models.BeginActionResponse, error)
	BeginEdit(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error)
	BeginDelete(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error)
	HandleCallback(ctx context.Context, cb *models.CallbackRequest) (string, error)
	SubmitCreate(ctx context.Context, req *models.SubmitCommentRequest) (*models.Comment, error)
	SubmitEdit(ctx context.Context, commentID string, req *models.SubmitCommentRequest) (*models.Comment, error)
	ListComments(ctx context.Context, postID string) ([]*models.Comment, error)
	GetComment(ctx context.Context, id string) (*models.Comment, error)
}

// Services holds all service interfaces
type Services struct {
	Comments CommentService
}

// NewServices creates all services
func NewServices(
	repos *repository.Repositories,
	gen *identifier.Generator,
	provider oauth.Provider,
	commentCache cache.CommentCache,
	notifier notify.Notifier,
	cfg *config.Config,
	log zerolog.Logger,
) *Services {
	validator := validation.NewValidator(
		cfg.Comments.AllowedPostIDs,
		cfg.Comments.AllowedReturnURLs,
		cfg.Comments.MaxBodyLength,
	)

	return &Services{
		Comments: newCommentService(repos, gen, provider, commentCache, notifier, validator, cfg, log),
	}
}
