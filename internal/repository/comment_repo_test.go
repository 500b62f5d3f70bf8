package repository_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/blog-comment-api/internal/database"
	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/repository"
)

func setupMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &database.DB{DB: db}, mock
}

func TestCommentRepo_InsertPending(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO comments (id, correlation_token, deadline)")).
		WithArgs("row-id", "token-1", 60).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertPending(context.Background(), "row-id", "token-1", 60)
	if err != nil {
		t.Fatalf("InsertPending failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCommentRepo_StampMutationToken(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		want         bool
	}{
		{"published row claimed", 1, true},
		{"row absent or mid-flight", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := repository.NewCommentRepo(db)

			mock.ExpectExec(regexp.QuoteMeta("SET correlation_token = $1")).
				WithArgs("token-1", 60, "comment-1").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			got, err := repo.StampMutationToken(context.Background(), "comment-1", "token-1", 60)
			if err != nil {
				t.Fatalf("StampMutationToken failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCommentRepo_CheckPending(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("token-1", true).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.CheckPending(context.Background(), "token-1", true)
	if err != nil {
		t.Fatalf("CheckPending failed: %v", err)
	}
	if !ok {
		t.Error("Expected token to be pending")
	}
}

func TestCommentRepo_BindCreate(t *testing.T) {
	identity := &models.Identity{ID: 42, Name: "octo", ProfileURL: "https://example.com/octo", AvatarURL: "https://example.com/octo.png"}

	tests := []struct {
		name         string
		rowsAffected int64
		want         bool
	}{
		{"bind wins", 1, true},
		{"row claimed by someone else", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := repository.NewCommentRepo(db)

			mock.ExpectExec(regexp.QuoteMeta("SET owner_id = $1")).
				WithArgs(identity.ID, identity.Name, identity.ProfileURL, identity.AvatarURL, "post-1", "token-1").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			got, err := repo.BindCreate(context.Background(), "token-1", "post-1", identity)
			if err != nil {
				t.Fatalf("BindCreate failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCommentRepo_BindMutation(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)
	identity := &models.Identity{ID: 42, Name: "octo", ProfileURL: "u", AvatarURL: "a"}

	mock.ExpectExec(regexp.QuoteMeta("SET owner_name = $1")).
		WithArgs(identity.Name, identity.ProfileURL, identity.AvatarURL, "comment-1", "token-1", identity.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.BindMutation(context.Background(), "comment-1", "token-1", identity)
	if err != nil {
		t.Fatalf("BindMutation failed: %v", err)
	}
	if !ok {
		t.Error("Expected bind to match the stamped row")
	}
}

func TestCommentRepo_PublishPending(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("SET id = $1, body = $2")).
		WithArgs("derived-id", "hello", "token-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.PublishPending(context.Background(), "token-1", "derived-id", "hello")
	if err != nil {
		t.Fatalf("PublishPending failed: %v", err)
	}
	if !ok {
		t.Error("Expected publish to match the pending row")
	}
}

func TestCommentRepo_PublishPending_UniqueViolation(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("SET id = $1, body = $2")).
		WithArgs("derived-id", "hello", "token-1").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.PublishPending(context.Background(), "token-1", "derived-id", "hello")
	if err == nil {
		t.Fatal("Expected an error from the duplicate id")
	}
	if !repository.IsUniqueViolation(err) {
		t.Errorf("Expected a unique violation, got %v", err)
	}
}

func TestCommentRepo_FinalizeEdit(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("SET body = $1, edited_at = NOW()")).
		WithArgs("updated", "comment-1", "token-1", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.FinalizeEdit(context.Background(), "comment-1", "token-1", 42, "updated")
	if err != nil {
		t.Fatalf("FinalizeEdit failed: %v", err)
	}
	if !ok {
		t.Error("Expected edit to match the bound row")
	}
}

func TestCommentRepo_DeleteOwned(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM comments")).
		WithArgs("comment-1", int64(42), "token-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.DeleteOwned(context.Background(), "comment-1", 42, "token-1")
	if err != nil {
		t.Fatalf("DeleteOwned failed: %v", err)
	}
	if !ok {
		t.Error("Expected delete to match")
	}
}

func TestCommentRepo_IsOwner(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("comment-1", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.IsOwner(context.Background(), "comment-1", 42)
	if err != nil {
		t.Fatalf("IsOwner failed: %v", err)
	}
	if ok {
		t.Error("Expected ownership check to fail")
	}
}

func TestCommentRepo_GetByToken(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	now := time.Now()
	deadline := now.Add(time.Hour)
	columns := []string{
		"id", "correlation_token", "owner_id", "owner_name", "owner_profile_url",
		"owner_avatar_url", "target_post_id", "body", "created_at", "edited_at", "deadline",
	}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE correlation_token = $1")).
		WithArgs("token-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("row-id", "token-1", int64(42), "octo", "u", "a", nil, nil, now, now, deadline))

	comment, err := repo.GetByToken(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if comment == nil {
		t.Fatal("Expected a comment row")
	}
	if comment.BodyPresent {
		t.Error("Body should be absent on a pending-create row")
	}
	if comment.Deadline == nil {
		t.Error("Deadline should be set on a pending-create row")
	}
	if got := comment.State(); got != models.StatePendingCreate {
		t.Errorf("Expected state %s, got %s", models.StatePendingCreate, got)
	}
	if comment.OwnerID != 42 {
		t.Errorf("Expected owner 42, got %d", comment.OwnerID)
	}
}

func TestCommentRepo_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	comment, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if comment != nil {
		t.Error("Expected nil for a missing row")
	}
}

func TestCommentRepo_ListByPost(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	now := time.Now()
	columns := []string{
		"id", "owner_id", "owner_name", "owner_profile_url", "owner_avatar_url",
		"target_post_id", "body", "created_at", "edited_at",
	}
	rows := sqlmock.NewRows(columns)
	for i := 1; i <= 3; i++ {
		rows.AddRow(fmt.Sprintf("comment-%d", i), int64(i), "user", "u", "a", "post-1", "text", now, now)
	}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE target_post_id = $1")).
		WithArgs("post-1").
		WillReturnRows(rows)

	comments, err := repo.ListByPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("ListByPost failed: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("Expected 3 comments, got %d", len(comments))
	}
	if comments[0].State() != models.StatePublished {
		t.Errorf("Expected published state, got %s", comments[0].State())
	}
}

func TestCommentRepo_ReapExpired(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewCommentRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM comments")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("SET correlation_token = NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reaped, err := repo.ReapExpired(context.Background())
	if err != nil {
		t.Fatalf("ReapExpired failed: %v", err)
	}
	if reaped != 3 {
		t.Errorf("Expected 3 reaped rows, got %d", reaped)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if repository.IsUniqueViolation(errors.New("boom")) {
		t.Error("Plain errors are not unique violations")
	}
	wrapped := fmt.Errorf("publish: %w", &pq.Error{Code: "23505"})
	if !repository.IsUniqueViolation(wrapped) {
		t.Error("Wrapped 23505 should be detected")
	}
	if repository.IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("Other pq codes are not unique violations")
	}
}
