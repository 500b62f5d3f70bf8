package mocks

import (
	"context"
	"sync"

	"github.com/blog-comment-api/internal/cache"
	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/notify"
	"github.com/blog-comment-api/internal/oauth"
)

// MockProvider is a mock implementation of the OAuth Provider. Unless a Func
// field overrides it, every exchange yields the same token and every fetch
// yields Identity (or a stock profile when Identity is nil).
type MockProvider struct {
	AuthorizeURLFunc  func(state, redirectURI string) string
	ExchangeCodeFunc  func(ctx context.Context, code, redirectURI string) (string, error)
	FetchIdentityFunc func(ctx context.Context, accessToken string) (*models.Identity, error)

	Identity *models.Identity

	mu            sync.Mutex
	ExchangeCalls int
	FetchCalls    int
}

// Verify interface compliance
var _ oauth.Provider = (*MockProvider)(nil)

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) AuthorizeURL(state, redirectURI string) string {
	if m.AuthorizeURLFunc != nil {
		return m.AuthorizeURLFunc(state, redirectURI)
	}
	return "https://github.com/login/oauth/authorize?state=" + state
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	m.mu.Lock()
	m.ExchangeCalls++
	m.mu.Unlock()

	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code, redirectURI)
	}
	return "gho_mock_token", nil
}

func (m *MockProvider) FetchIdentity(ctx context.Context, accessToken string) (*models.Identity, error) {
	m.mu.Lock()
	m.FetchCalls++
	m.mu.Unlock()

	if m.FetchIdentityFunc != nil {
		return m.FetchIdentityFunc(ctx, accessToken)
	}
	if m.Identity != nil {
		return m.Identity, nil
	}
	return &models.Identity{
		ID:         42,
		Name:       "Test User",
		ProfileURL: "https://github.com/testuser",
		AvatarURL:  "https://avatars.githubusercontent.com/u/42",
	}, nil
}

// MockNotifier records dispatched events instead of running commands.
type MockNotifier struct {
	mu     sync.Mutex
	Events []notify.Event
}

// Verify interface compliance
var _ notify.Notifier = (*MockNotifier)(nil)

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Dispatch(event notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}

// Dispatched returns a snapshot of the recorded events.
func (m *MockNotifier) Dispatched() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]notify.Event, len(m.Events))
	copy(events, m.Events)
	return events
}

// MockCommentCache is a map-backed mock implementation of CommentCache.
type MockCommentCache struct {
	mu          sync.Mutex
	Store       map[string][]*models.Comment
	Invalidated []string

	GetErr error
	SetErr error
}

// Verify interface compliance
var _ cache.CommentCache = (*MockCommentCache)(nil)

func NewMockCommentCache() *MockCommentCache {
	return &MockCommentCache{
		Store: make(map[string][]*models.Comment),
	}
}

func (m *MockCommentCache) GetPostComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if comments, ok := m.Store[postID]; ok {
		return comments, nil
	}
	return nil, cache.ErrMiss
}

func (m *MockCommentCache) SetPostComments(ctx context.Context, postID string, comments []*models.Comment) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Store[postID] = comments
	return nil
}

func (m *MockCommentCache) InvalidatePost(ctx context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, postID)
	delete(m.Store, postID)
	return nil
}
