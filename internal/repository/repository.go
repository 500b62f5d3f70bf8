package repository

import (
	"context"

	"github.com/blog-comment-api/internal/database"
	"github.com/blog-comment-api/internal/models"
)

// CommentRepository defines the store operations for the comment coordinator.
// Every mutation that can race on a row is a single conditional statement; the
// bool result reports whether the statement matched a row. All deadline
// comparisons happen on the database clock.
type CommentRepository interface {
	// InsertPending creates a bare pending row for the create flow.
	InsertPending(ctx context.Context, id, token string, windowMinutes int) error
	// StampMutationToken attaches a fresh token and deadline to a published
	// row, beginning an edit/delete flow. False means the row is absent or
	// already mid-flight.
	StampMutationToken(ctx context.Context, commentID, token string, windowMinutes int) (bool, error)
	// CheckPending reports whether an unexpired row holds the token and
	// matches the expected pending/published shape.
	CheckPending(ctx context.Context, token string, expectPublished bool) (bool, error)
	// BindCreate writes the identity and target post onto a pending-create
	// row. Rebinding the same identity is idempotent; a different identity
	// does not match.
	BindCreate(ctx context.Context, token, postID string, identity *models.Identity) (bool, error)
	// BindMutation refreshes the identity snapshot on a token-stamped
	// published row, verifying ownership in the same statement.
	BindMutation(ctx context.Context, commentID, token string, identity *models.Identity) (bool, error)
	// PublishPending completes a bound pending-create row into a published
	// comment under its derived id. A unique violation on the new id is
	// returned as-is for the caller's collision handling.
	PublishPending(ctx context.Context, token, newID, body string) (bool, error)
	// FinalizeEdit replaces the body of the comment addressed by id, guarded
	// by token and owner, and releases the binding.
	FinalizeEdit(ctx context.Context, commentID, token string, ownerID int64, body string) (bool, error)
	// DeleteOwned deletes the comment addressed by id, conditioned on owner
	// and token in the same predicate.
	DeleteOwned(ctx context.Context, commentID string, ownerID int64, token string) (bool, error)
	// IsOwner reports whether a published comment with the id is owned by the
	// identity. Advisory; mutations re-check the same predicate.
	IsOwner(ctx context.Context, commentID string, identityID int64) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	GetByToken(ctx context.Context, token string) (*models.Comment, error)
	ListByPost(ctx context.Context, postID string) ([]*models.Comment, error)
	// IDExists and TokenExists are the collision oracles for the identifier
	// generator.
	IDExists(ctx context.Context, id string) (bool, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	// ReapExpired deletes abandoned pending creations and releases expired
	// mutation bindings. Returns the number of rows affected.
	ReapExpired(ctx context.Context) (int64, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Comments CommentRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Comments: NewCommentRepo(db),
	}
}
