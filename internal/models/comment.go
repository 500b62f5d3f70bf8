package models

import (
	"time"
)

// CommentState classifies a comment row. It is the only place row state is
// derived from column presence; callers must never test nullability directly.
type CommentState string

const (
	// StatePendingCreate is a row inserted by a begin-create call: it has a
	// deadline and (optionally) a bound identity, but no body yet.
	StatePendingCreate CommentState = "pending_create"
	// StateMutationPending is a published comment with an edit/delete binding
	// stamped on it: body present, deadline present.
	StateMutationPending CommentState = "mutation_pending"
	// StatePublished is a finalized comment with no in-flight action.
	StatePublished CommentState = "published"
	// StateUnknown is returned for row shapes no operation produces.
	StateUnknown CommentState = "unknown"
)

// Comment represents a single row of the comments table. The same entity
// models in-flight actions and published comments; see State.
//
// SQL NULL maps to "" for strings, 0 for OwnerID and nil for time pointers.
type Comment struct {
	ID               string     `json:"id" db:"id"`
	CorrelationToken string     `json:"-" db:"correlation_token"`
	OwnerID          int64      `json:"owner_id,omitempty" db:"owner_id"`
	OwnerName        string     `json:"owner_name" db:"owner_name"`
	OwnerProfileURL  string     `json:"owner_profile_url" db:"owner_profile_url"`
	OwnerAvatarURL   string     `json:"owner_avatar_url" db:"owner_avatar_url"`
	TargetPostID     string     `json:"post_id" db:"target_post_id"`
	Body             string     `json:"body" db:"body"`
	BodyPresent      bool       `json:"-" db:"-"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	EditedAt         time.Time  `json:"edited_at" db:"edited_at"`
	Deadline         *time.Time `json:"-" db:"deadline"`
}

// State derives the row's lifecycle state. BodyPresent distinguishes a SQL
// NULL body from an empty string so the discriminator does not depend on
// published comments being non-empty.
func (c *Comment) State() CommentState {
	switch {
	case c.Deadline == nil && c.BodyPresent && c.TargetPostID != "":
		return StatePublished
	case c.Deadline != nil && c.BodyPresent:
		return StateMutationPending
	case c.Deadline != nil:
		return StatePendingCreate
	default:
		return StateUnknown
	}
}

// Bound reports whether an authenticated identity has been attached.
func (c *Comment) Bound() bool {
	return c.OwnerID != 0
}

// Identity is the verified profile fetched from the OAuth provider, stored as
// a denormalized snapshot on the comment row at (re)bind time.
type Identity struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url"`
	AvatarURL  string `json:"avatar_url"`
}

// CommentAction is the kind of flow a correlation round trip drives.
type CommentAction string

const (
	ActionCreate CommentAction = "create"
	ActionEdit   CommentAction = "edit"
	ActionDelete CommentAction = "delete"
)

// Valid reports whether the action is one of the three known flows.
func (a CommentAction) Valid() bool {
	return a == ActionCreate || a == ActionEdit || a == ActionDelete
}

// BeginCommentRequest starts the create flow.
type BeginCommentRequest struct {
	PostID    string `json:"post_id"`
	ReturnURL string `json:"return_url"`
}

// BeginMutationRequest starts the edit or delete flow for an existing comment.
type BeginMutationRequest struct {
	ReturnURL string `json:"return_url"`
}

// BeginActionResponse is returned by all begin endpoints; the widget navigates
// the browser to AuthorizeURL.
type BeginActionResponse struct {
	AuthorizeURL string `json:"authorize_url"`
	State        string `json:"state"`
}

// SubmitCommentRequest finalizes a create or edit with the comment text.
type SubmitCommentRequest struct {
	State       string `json:"state"`
	CommentText string `json:"comment_text"`
}

// CallbackRequest carries the query parameters the provider echoes back to
// the callback endpoint. Action, PostID, CommentID and ReturnURL ride on the
// redirect URI; Code and State are appended by the provider.
type CallbackRequest struct {
	Code      string
	State     string
	Action    CommentAction
	PostID    string
	CommentID string
	ReturnURL string
}
