package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/repository"
)

// MockCommentRepository is a map-backed mock implementation of
// CommentRepository. It honors the conditional-mutation semantics of the real
// store: guarded updates report zero rows instead of failing, uniqueness
// collisions surface as the same error class the driver raises.
type MockCommentRepository struct {
	mu       sync.Mutex
	Comments map[string]*models.Comment

	// Err, when set, fails every call.
	Err error
	// ReapFunc overrides ReapExpired.
	ReapFunc func(ctx context.Context) (int64, error)
	// PublishPendingFunc overrides PublishPending.
	PublishPendingFunc func(ctx context.Context, token, newID, body string) (bool, error)

	ReapCalls int
}

// Verify interface compliance
var _ repository.CommentRepository = (*MockCommentRepository)(nil)

func NewMockCommentRepository() *MockCommentRepository {
	return &MockCommentRepository{
		Comments: make(map[string]*models.Comment),
	}
}

// Seed inserts a row directly, bypassing the lifecycle operations.
func (m *MockCommentRepository) Seed(comment *models.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Comments[comment.ID] = comment
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505"}
}

// byToken finds the row holding a non-empty token. Caller holds the lock.
func (m *MockCommentRepository) byToken(token string) *models.Comment {
	if token == "" {
		return nil
	}
	for _, c := range m.Comments {
		if c.CorrelationToken == token {
			return c
		}
	}
	return nil
}

// live reports whether the row's deadline is still in the future.
func live(c *models.Comment) bool {
	return c.Deadline != nil && c.Deadline.After(time.Now())
}

func (m *MockCommentRepository) InsertPending(ctx context.Context, id, token string, windowMinutes int) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.Comments[id]; exists {
		return uniqueViolation()
	}
	if m.byToken(token) != nil {
		return uniqueViolation()
	}

	deadline := time.Now().Add(time.Duration(windowMinutes) * time.Minute)
	m.Comments[id] = &models.Comment{
		ID:               id,
		CorrelationToken: token,
		Deadline:         &deadline,
	}
	return nil
}

func (m *MockCommentRepository) StampMutationToken(ctx context.Context, commentID, token string, windowMinutes int) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byToken(token) != nil {
		return false, uniqueViolation()
	}
	row := m.Comments[commentID]
	if row == nil || row.Deadline != nil || row.CorrelationToken != "" || !row.BodyPresent || row.TargetPostID == "" {
		return false, nil
	}

	deadline := time.Now().Add(time.Duration(windowMinutes) * time.Minute)
	row.CorrelationToken = token
	row.Deadline = &deadline
	return true, nil
}

func (m *MockCommentRepository) CheckPending(ctx context.Context, token string, expectPublished bool) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.byToken(token)
	return row != nil && live(row) && row.BodyPresent == expectPublished, nil
}

func (m *MockCommentRepository) BindCreate(ctx context.Context, token, postID string, identity *models.Identity) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.byToken(token)
	if row == nil || !live(row) || row.BodyPresent {
		return false, nil
	}
	if row.OwnerID != 0 && row.OwnerID != identity.ID {
		return false, nil
	}

	row.OwnerID = identity.ID
	row.OwnerName = identity.Name
	row.OwnerProfileURL = identity.ProfileURL
	row.OwnerAvatarURL = identity.AvatarURL
	row.TargetPostID = postID
	return true, nil
}

func (m *MockCommentRepository) BindMutation(ctx context.Context, commentID, token string, identity *models.Identity) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.Comments[commentID]
	if row == nil || row.CorrelationToken != token || !live(row) || !row.BodyPresent || row.OwnerID != identity.ID {
		return false, nil
	}

	row.OwnerName = identity.Name
	row.OwnerProfileURL = identity.ProfileURL
	row.OwnerAvatarURL = identity.AvatarURL
	return true, nil
}

func (m *MockCommentRepository) PublishPending(ctx context.Context, token, newID, body string) (bool, error) {
	if m.PublishPendingFunc != nil {
		return m.PublishPendingFunc(ctx, token, newID, body)
	}
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.byToken(token)
	if row == nil || !live(row) || row.BodyPresent || row.OwnerID == 0 || row.TargetPostID == "" {
		return false, nil
	}
	if other, exists := m.Comments[newID]; exists && other != row {
		return false, uniqueViolation()
	}

	delete(m.Comments, row.ID)
	now := time.Now()
	row.ID = newID
	row.Body = body
	row.BodyPresent = true
	row.CreatedAt = now
	row.EditedAt = now
	row.CorrelationToken = ""
	row.Deadline = nil
	m.Comments[newID] = row
	return true, nil
}

func (m *MockCommentRepository) FinalizeEdit(ctx context.Context, commentID, token string, ownerID int64, body string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.Comments[commentID]
	if row == nil || row.CorrelationToken != token || row.OwnerID != ownerID || !live(row) || !row.BodyPresent {
		return false, nil
	}

	row.Body = body
	row.EditedAt = time.Now()
	row.CorrelationToken = ""
	row.Deadline = nil
	return true, nil
}

func (m *MockCommentRepository) DeleteOwned(ctx context.Context, commentID string, ownerID int64, token string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.Comments[commentID]
	if row == nil || row.OwnerID != ownerID || row.CorrelationToken != token {
		return false, nil
	}

	delete(m.Comments, commentID)
	return true, nil
}

func (m *MockCommentRepository) IsOwner(ctx context.Context, commentID string, identityID int64) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.Comments[commentID]
	return row != nil && row.OwnerID == identityID && row.BodyPresent && row.TargetPostID != "", nil
}

func (m *MockCommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Comments[id], nil
}

func (m *MockCommentRepository) GetByToken(ctx context.Context, token string) (*models.Comment, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byToken(token), nil
}

func (m *MockCommentRepository) ListByPost(ctx context.Context, postID string) ([]*models.Comment, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var comments []*models.Comment
	for _, c := range m.Comments {
		if c.BodyPresent && c.TargetPostID == postID {
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

func (m *MockCommentRepository) IDExists(ctx context.Context, id string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.Comments[id]
	return exists, nil
}

func (m *MockCommentRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byToken(token) != nil, nil
}

func (m *MockCommentRepository) ReapExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	m.ReapCalls++
	m.mu.Unlock()

	if m.ReapFunc != nil {
		return m.ReapFunc(ctx)
	}
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped int64
	for id, c := range m.Comments {
		if c.Deadline == nil || c.Deadline.After(time.Now()) {
			continue
		}
		if c.BodyPresent {
			c.CorrelationToken = ""
			c.Deadline = nil
		} else {
			delete(m.Comments, id)
		}
		reaped++
	}
	return reaped, nil
}
