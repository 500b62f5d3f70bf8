package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blog-comment-api/internal/models"
)

// ErrMiss is returned when a key is absent from the cache.
var ErrMiss = errors.New("cache miss")

// CommentCache caches published comment listings per post.
type CommentCache interface {
	GetPostComments(ctx context.Context, postID string) ([]*models.Comment, error)
	SetPostComments(ctx context.Context, postID string, comments []*models.Comment) error
	InvalidatePost(ctx context.Context, postID string) error
}

type redisCommentCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCommentCache creates a Redis-backed comment cache.
func NewRedisCommentCache(rdb *redis.Client, ttl time.Duration) CommentCache {
	return &redisCommentCache{rdb: rdb, ttl: ttl}
}

func postKey(postID string) string {
	return "comments:post:" + postID
}

func (c *redisCommentCache) GetPostComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	value, err := c.rdb.Get(ctx, postKey(postID)).Result()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var comments []*models.Comment
	if err := json.Unmarshal([]byte(value), &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *redisCommentCache) SetPostComments(ctx context.Context, postID string, comments []*models.Comment) error {
	payload, err := json.Marshal(comments)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, postKey(postID), payload, c.ttl).Err()
}

func (c *redisCommentCache) InvalidatePost(ctx context.Context, postID string) error {
	return c.rdb.Del(ctx, postKey(postID)).Err()
}

type noopCache struct{}

// NewNoop returns a cache that never hits. Used when no Redis address is
// configured, so callers do not have to branch on cache availability.
func NewNoop() CommentCache {
	return noopCache{}
}

func (noopCache) GetPostComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	return nil, ErrMiss
}

func (noopCache) SetPostComments(ctx context.Context, postID string, comments []*models.Comment) error {
	return nil
}

func (noopCache) InvalidatePost(ctx context.Context, postID string) error {
	return nil
}
