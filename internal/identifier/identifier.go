package identifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ExistsFunc asks the store whether an identifier is already taken. The store
// lookup is the collision oracle; uniqueness is always checked, never assumed.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

const (
	// maxRandomAttempts bounds the re-roll loop. A v4 collision is
	// astronomically unlikely, so hitting this bound means the oracle is
	// broken, not that we are unlucky.
	maxRandomAttempts = 10

	// publishAttempts and publishBackoff bound the derive-collision loop.
	// The backoff exists to move the timestamp component between attempts.
	publishAttempts = 5
	publishBackoff  = 100 * time.Millisecond
)

// Generator issues the two identifier families of the coordinator: random
// correlation tokens and row ids, and deterministic publish ids derived from
// post, owner and time.
type Generator struct {
	namespace uuid.UUID
	attempts  int
	backoff   time.Duration
	now       func() time.Time
}

// New creates a Generator anchored to the given namespace host. The namespace
// must stay stable across deployments, otherwise retried finalize calls lose
// their idempotency.
func New(namespaceHost string) *Generator {
	return &Generator{
		namespace: uuid.NewSHA1(uuid.NameSpaceDNS, []byte(namespaceHost)),
		attempts:  publishAttempts,
		backoff:   publishBackoff,
		now:       time.Now,
	}
}

// NewRandom returns a cryptographically random 128-bit identifier in
// canonical string form, re-rolling while the oracle reports a collision.
func (g *Generator) NewRandom(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < maxRandomAttempts; attempt++ {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("failed to generate random id: %w", err)
		}
		taken, err := exists(ctx, id.String())
		if err != nil {
			return "", err
		}
		if !taken {
			return id.String(), nil
		}
	}
	return "", fmt.Errorf("no free random id after %d attempts", maxRandomAttempts)
}

// DeriveAt derives the publish id for a comment from its post, owner and
// timestamp. Identical inputs yield identical ids, so a retried finalize with
// the same inputs lands on the same row.
func (g *Generator) DeriveAt(postID string, ownerID int64, ts time.Time) string {
	content := postID + strconv.FormatInt(ownerID, 10) + ts.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(g.namespace, []byte(content)).String()
}

// PublishID derives a publish id for the current instant. On collision it
// waits a short, cancellable delay so the timestamp input changes, then
// re-derives; at most five attempts.
func (g *Generator) PublishID(ctx context.Context, postID string, ownerID int64, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.backoff):
			}
		}
		id := g.DeriveAt(postID, ownerID, g.now())
		taken, err := exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("no free publish id after %d attempts", g.attempts)
}
