package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/blog-comment-api/internal/database"
	"github.com/blog-comment-api/internal/models"
	"github.com/lib/pq"
)

// commentRepo is the concrete implementation of CommentRepository
type commentRepo struct {
	db *database.DB
}

// NewCommentRepo creates a new comment repository
func NewCommentRepo(db *database.DB) CommentRepository {
	return &commentRepo{db: db}
}

// InsertPending creates a bare pending row: id, token and deadline only.
// The deadline is computed on the database clock.
func (r *commentRepo) InsertPending(ctx context.Context, id, token string, windowMinutes int) error {
	query := `
		INSERT INTO comments (id, correlation_token, deadline)
		VALUES ($1, $2, NOW() + make_interval(mins => $3))
	`
	_, err := r.db.ExecContext(ctx, query, id, token, windowMinutes)
	return err
}

// StampMutationToken atomically claims a published row for an edit/delete
// round trip. The predicate rejects rows that are absent, unpublished, or
// already carrying a token, so two concurrent begins cannot both claim one.
func (r *commentRepo) StampMutationToken(ctx context.Context, commentID, token string, windowMinutes int) (bool, error) {
	query := `
		UPDATE comments
		SET correlation_token = $1, deadline = NOW() + make_interval(mins => $2)
		WHERE id = $3 AND deadline IS NULL AND correlation_token IS NULL
			AND body IS NOT NULL AND target_post_id IS NOT NULL
	`
	result, err := r.db.ExecContext(ctx, query, token, windowMinutes, commentID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// CheckPending reports whether an unexpired row holds the token and has the
// expected shape: published (body present) or pending-create (no body yet).
func (r *commentRepo) CheckPending(ctx context.Context, token string, expectPublished bool) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM comments
			WHERE correlation_token = $1 AND deadline > NOW()
				AND (body IS NOT NULL) = $2
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, token, expectPublished).Scan(&exists)
	return exists, err
}

// BindCreate writes the verified identity and target post onto the pending
// row owning the token. The owner guard makes a replay of the same identity
// idempotent while a different identity affects zero rows.
func (r *commentRepo) BindCreate(ctx context.Context, token, postID string, identity *models.Identity) (bool, error) {
	query := `
		UPDATE comments
		SET owner_id = $1, owner_name = $2, owner_profile_url = $3,
			owner_avatar_url = $4, target_post_id = $5
		WHERE correlation_token = $6 AND deadline > NOW() AND body IS NULL
			AND (owner_id IS NULL OR owner_id = $1)
	`
	result, err := r.db.ExecContext(ctx, query,
		identity.ID, identity.Name, identity.ProfileURL, identity.AvatarURL,
		postID, token,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// BindMutation refreshes the identity snapshot on the comment addressed by
// id. Token, deadline and owner sit in the same predicate, so a stale or
// foreign callback affects zero rows. The token is retained; finalize or the
// reaper releases it.
func (r *commentRepo) BindMutation(ctx context.Context, commentID, token string, identity *models.Identity) (bool, error) {
	query := `
		UPDATE comments
		SET owner_name = $1, owner_profile_url = $2, owner_avatar_url = $3
		WHERE id = $4 AND correlation_token = $5 AND deadline > NOW()
			AND body IS NOT NULL AND owner_id = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		identity.Name, identity.ProfileURL, identity.AvatarURL,
		commentID, token, identity.ID,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// PublishPending finalizes a bound pending-create row under its derived id
// and releases the binding. created_at and edited_at are stamped on the
// database clock. A duplicate derived id surfaces as a unique violation.
func (r *commentRepo) PublishPending(ctx context.Context, token, newID, body string) (bool, error) {
	query := `
		UPDATE comments
		SET id = $1, body = $2, created_at = NOW(), edited_at = NOW(),
			correlation_token = NULL, deadline = NULL
		WHERE correlation_token = $3 AND deadline > NOW() AND body IS NULL
			AND owner_id IS NOT NULL AND target_post_id IS NOT NULL
	`
	result, err := r.db.ExecContext(ctx, query, newID, body, token)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// FinalizeEdit replaces the body of the comment addressed by id and releases
// the binding. Token and owner are part of the predicate: a token that
// reached a different row than the submitted id matches nothing.
func (r *commentRepo) FinalizeEdit(ctx context.Context, commentID, token string, ownerID int64, body string) (bool, error) {
	query := `
		UPDATE comments
		SET body = $1, edited_at = NOW(), correlation_token = NULL, deadline = NULL
		WHERE id = $2 AND correlation_token = $3 AND owner_id = $4
			AND deadline > NOW() AND body IS NOT NULL
	`
	result, err := r.db.ExecContext(ctx, query, body, commentID, token, ownerID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// DeleteOwned removes the comment addressed by id. Owner and token are in the
// WHERE clause, so a row whose ownership or binding changed since the
// advisory check is never deleted.
func (r *commentRepo) DeleteOwned(ctx context.Context, commentID string, ownerID int64, token string) (bool, error) {
	query := `
		DELETE FROM comments
		WHERE id = $1 AND owner_id = $2 AND correlation_token = $3
	`
	result, err := r.db.ExecContext(ctx, query, commentID, ownerID, token)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// IsOwner reports whether a published comment with the given id is owned by
// the identity.
func (r *commentRepo) IsOwner(ctx context.Context, commentID string, identityID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM comments
			WHERE id = $1 AND owner_id = $2
				AND body IS NOT NULL AND target_post_id IS NOT NULL
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, commentID, identityID).Scan(&exists)
	return exists, err
}

// GetByID retrieves a comment row by ID
func (r *commentRepo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	query := `
		SELECT id, correlation_token, owner_id, owner_name, owner_profile_url,
			owner_avatar_url, target_post_id, body, created_at, edited_at, deadline
		FROM comments WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

// GetByToken retrieves a comment row by correlation token
func (r *commentRepo) GetByToken(ctx context.Context, token string) (*models.Comment, error) {
	query := `
		SELECT id, correlation_token, owner_id, owner_name, owner_profile_url,
			owner_avatar_url, target_post_id, body, created_at, edited_at, deadline
		FROM comments WHERE correlation_token = $1
	`
	return r.getOne(ctx, query, token)
}

func (r *commentRepo) getOne(ctx context.Context, query string, arg interface{}) (*models.Comment, error) {
	var comment models.Comment
	var token, postID, body sql.NullString
	var ownerID sql.NullInt64
	var deadline sql.NullTime

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&comment.ID, &token, &ownerID, &comment.OwnerName, &comment.OwnerProfileURL,
		&comment.OwnerAvatarURL, &postID, &body, &comment.CreatedAt, &comment.EditedAt,
		&deadline,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	comment.CorrelationToken = token.String
	comment.OwnerID = ownerID.Int64
	comment.TargetPostID = postID.String
	comment.Body = body.String
	comment.BodyPresent = body.Valid
	if deadline.Valid {
		comment.Deadline = &deadline.Time
	}

	return &comment, nil
}

// ListByPost retrieves published comments for a post, oldest first. Rows with
// an in-flight mutation binding are still published comments and included.
func (r *commentRepo) ListByPost(ctx context.Context, postID string) ([]*models.Comment, error) {
	query := `
		SELECT id, owner_id, owner_name, owner_profile_url, owner_avatar_url,
			target_post_id, body, created_at, edited_at
		FROM comments
		WHERE target_post_id = $1 AND body IS NOT NULL
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var comment models.Comment
		var ownerID sql.NullInt64
		err := rows.Scan(
			&comment.ID, &ownerID, &comment.OwnerName, &comment.OwnerProfileURL,
			&comment.OwnerAvatarURL, &comment.TargetPostID, &comment.Body,
			&comment.CreatedAt, &comment.EditedAt,
		)
		if err != nil {
			return nil, err
		}
		comment.OwnerID = ownerID.Int64
		comment.BodyPresent = true
		comments = append(comments, &comment)
	}

	return comments, rows.Err()
}

// IDExists checks if a row with the given ID exists
func (r *commentRepo) IDExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1)", id).Scan(&exists)
	return exists, err
}

// TokenExists checks if a row holds the given correlation token
func (r *commentRepo) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM comments WHERE correlation_token = $1)", token).Scan(&exists)
	return exists, err
}

// ReapExpired reclaims expired pending state on the database clock: abandoned
// creations (no body) are deleted, expired mutation bindings on published
// comments are released without touching the comment itself.
func (r *commentRepo) ReapExpired(ctx context.Context) (int64, error) {
	deleteQuery := `
		DELETE FROM comments
		WHERE deadline IS NOT NULL AND deadline <= NOW() AND body IS NULL
	`
	result, err := r.db.ExecContext(ctx, deleteQuery)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()

	releaseQuery := `
		UPDATE comments
		SET correlation_token = NULL, deadline = NULL
		WHERE deadline IS NOT NULL AND deadline <= NOW() AND body IS NOT NULL
	`
	result, err = r.db.ExecContext(ctx, releaseQuery)
	if err != nil {
		return deleted, err
	}
	released, _ := result.RowsAffected()

	return deleted + released, nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation, the collision signal for derived publish ids.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
