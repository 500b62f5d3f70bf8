package mocks

import (
	"context"

	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/service"
)

// MockCommentService is a mock implementation of CommentService for handler
// tests. Each method delegates to its Func field when set and otherwise
// returns a plain success.
type MockCommentService struct {
	BeginCreateFunc    func(ctx context.Context, req *models.BeginCommentRequest) (*models.BeginActionResponse, error)
	BeginEditFunc      func(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error)
	BeginDeleteFunc    func(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error)
	HandleCallbackFunc func(ctx context.Context, req *models.CallbackRequest) (string, error)
	SubmitCreateFunc   func(ctx context.Context, req *models.SubmitCommentRequest) (*models.Comment, error)
	SubmitEditFunc     func(ctx context.Context, commentID string, req *models.SubmitCommentRequest) (*models.Comment, error)
	ListCommentsFunc   func(ctx context.Context, postID string) ([]*models.Comment, error)
	GetCommentFunc     func(ctx context.Context, id string) (*models.Comment, error)
}

// Verify interface compliance
var _ service.CommentService = (*MockCommentService)(nil)

func NewMockCommentService() *MockCommentService {
	return &MockCommentService{}
}

func (m *MockCommentService) BeginCreate(ctx context.Context, req *models.BeginCommentRequest) (*models.BeginActionResponse, error) {
	if m.BeginCreateFunc != nil {
		return m.BeginCreateFunc(ctx, req)
	}
	return &models.BeginActionResponse{
		AuthorizeURL: "https://github.com/login/oauth/authorize?state=test-state",
		State:        "test-state",
	}, nil
}

func (m *MockCommentService) BeginEdit(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error) {
	if m.BeginEditFunc != nil {
		return m.BeginEditFunc(ctx, commentID, req)
	}
	return &models.BeginActionResponse{
		AuthorizeURL: "https://github.com/login/oauth/authorize?state=test-state",
		State:        "test-state",
	}, nil
}

func (m *MockCommentService) BeginDelete(ctx context.Context, commentID string, req *models.BeginMutationRequest) (*models.BeginActionResponse, error) {
	if m.BeginDeleteFunc != nil {
		return m.BeginDeleteFunc(ctx, commentID, req)
	}
	return &models.BeginActionResponse{
		AuthorizeURL: "https://github.com/login/oauth/authorize?state=test-state",
		State:        "test-state",
	}, nil
}

func (m *MockCommentService) HandleCallback(ctx context.Context, req *models.CallbackRequest) (string, error) {
	if m.HandleCallbackFunc != nil {
		return m.HandleCallbackFunc(ctx, req)
	}
	return "https://blog.example.com/post?comment_action=create", nil
}

func (m *MockCommentService) SubmitCreate(ctx context.Context, req *models.SubmitCommentRequest) (*models.Comment, error) {
	if m.SubmitCreateFunc != nil {
		return m.SubmitCreateFunc(ctx, req)
	}
	return &models.Comment{ID: "mock-comment-id", BodyPresent: true}, nil
}

func (m *MockCommentService) SubmitEdit(ctx context.Context, commentID string, req *models.SubmitCommentRequest) (*models.Comment, error) {
	if m.SubmitEditFunc != nil {
		return m.SubmitEditFunc(ctx, commentID, req)
	}
	return &models.Comment{ID: commentID, BodyPresent: true}, nil
}

func (m *MockCommentService) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	if m.ListCommentsFunc != nil {
		return m.ListCommentsFunc(ctx, postID)
	}
	return []*models.Comment{}, nil
}

func (m *MockCommentService) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	if m.GetCommentFunc != nil {
		return m.GetCommentFunc(ctx, id)
	}
	return &models.Comment{ID: id, BodyPresent: true}, nil
}
