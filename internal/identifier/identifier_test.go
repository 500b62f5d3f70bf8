package identifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDeriveAt_Idempotent(t *testing.T) {
	g := New("comments.example.com")
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)

	first := g.DeriveAt("post-1", 42, ts)
	second := g.DeriveAt("post-1", 42, ts)
	if first != second {
		t.Errorf("Same inputs must derive the same id: %s != %s", first, second)
	}

	if g.DeriveAt("post-1", 42, ts.Add(time.Nanosecond)) == first {
		t.Error("A different timestamp must derive a different id")
	}
	if g.DeriveAt("post-1", 43, ts) == first {
		t.Error("A different owner must derive a different id")
	}
	if g.DeriveAt("post-2", 42, ts) == first {
		t.Error("A different post must derive a different id")
	}
}

func TestDeriveAt_NamespaceSeparation(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	a := New("a.example.com").DeriveAt("post-1", 42, ts)
	b := New("b.example.com").DeriveAt("post-1", 42, ts)
	if a == b {
		t.Error("Different namespaces must not collide on identical content")
	}
}

func TestDeriveAt_CanonicalForm(t *testing.T) {
	g := New("comments.example.com")
	id := g.DeriveAt("post-1", 42, time.Now())

	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("Derived id is not a canonical uuid: %v", err)
	}
	if parsed.Version() != 5 {
		t.Errorf("Expected a v5 uuid, got v%d", parsed.Version())
	}
}

func TestNewRandom_RerollsOnCollision(t *testing.T) {
	g := New("comments.example.com")
	calls := 0
	exists := func(ctx context.Context, id string) (bool, error) {
		calls++
		return calls <= 2, nil
	}

	id, err := g.NewRandom(context.Background(), exists)
	if err != nil {
		t.Fatalf("NewRandom failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 oracle calls, got %d", calls)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Random id is not a canonical uuid: %v", err)
	}
}

func TestNewRandom_OracleError(t *testing.T) {
	g := New("comments.example.com")
	oracleErr := errors.New("store down")
	exists := func(ctx context.Context, id string) (bool, error) {
		return false, oracleErr
	}

	_, err := g.NewRandom(context.Background(), exists)
	if !errors.Is(err, oracleErr) {
		t.Errorf("Expected the oracle error, got %v", err)
	}
}

func TestNewRandom_Exhausted(t *testing.T) {
	g := New("comments.example.com")
	exists := func(ctx context.Context, id string) (bool, error) {
		return true, nil
	}

	_, err := g.NewRandom(context.Background(), exists)
	if err == nil {
		t.Fatal("Expected an error when every id collides")
	}
}

func TestPublishID_CollisionPerturbsTimestamp(t *testing.T) {
	g := New("comments.example.com")
	g.backoff = time.Millisecond

	base := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	tick := 0
	g.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	firstCandidate := g.DeriveAt("post-1", 42, base.Add(1*time.Second))
	var seen []string
	exists := func(ctx context.Context, id string) (bool, error) {
		seen = append(seen, id)
		return len(seen) == 1, nil
	}

	id, err := g.PublishID(context.Background(), "post-1", 42, exists)
	if err != nil {
		t.Fatalf("PublishID failed: %v", err)
	}
	if seen[0] != firstCandidate {
		t.Errorf("First candidate should derive from the first clock read")
	}
	if id == firstCandidate {
		t.Error("Colliding candidate must not be returned")
	}
	if want := g.DeriveAt("post-1", 42, base.Add(2*time.Second)); id != want {
		t.Errorf("Expected id derived at the perturbed timestamp, got %s", id)
	}
}

func TestPublishID_Exhausted(t *testing.T) {
	g := New("comments.example.com")
	g.backoff = time.Microsecond

	calls := 0
	exists := func(ctx context.Context, id string) (bool, error) {
		calls++
		return true, nil
	}

	_, err := g.PublishID(context.Background(), "post-1", 42, exists)
	if err == nil {
		t.Fatal("Expected an error when every derivation collides")
	}
	if calls != publishAttempts {
		t.Errorf("Expected %d attempts, got %d", publishAttempts, calls)
	}
}

func TestPublishID_ContextCanceled(t *testing.T) {
	g := New("comments.example.com")
	g.backoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	exists := func(ctx context.Context, id string) (bool, error) {
		cancel()
		return true, nil
	}

	_, err := g.PublishID(ctx, "post-1", 42, exists)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
