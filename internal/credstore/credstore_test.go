package credstore

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	blob, err := fs.Load(ctx, "36201234567")
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if blob != nil {
		t.Fatalf("expected nil for missing credential, got %q", blob)
	}

	if err := fs.Save(ctx, "36201234567", []byte("secret")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	blob, err = fs.Load(ctx, "36201234567")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(blob) != "secret" {
		t.Fatalf("Load = %q, want secret", blob)
	}

	// Overwrite on re-auth.
	if err := fs.Save(ctx, "36201234567", []byte("rotated")); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	blob, _ = fs.Load(ctx, "36201234567")
	if string(blob) != "rotated" {
		t.Fatalf("Load after overwrite = %q", blob)
	}

	if err := fs.Erase(ctx, "36201234567"); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if err := fs.Erase(ctx, "36201234567"); err != nil {
		t.Fatalf("Erase should be idempotent: %v", err)
	}
	blob, _ = fs.Load(ctx, "36201234567")
	if blob != nil {
		t.Fatalf("expected nil after erase, got %q", blob)
	}
}

func TestFileStore_SanitizesIdentity(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if err := fs.Save(ctx, "../../etc/passwd", []byte("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	blob, err := fs.Load(ctx, "../../etc/passwd")
	if err != nil || string(blob) != "x" {
		t.Fatalf("Load = %q, %v", blob, err)
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rs := NewRedisStore(rdb)
	ctx := context.Background()

	blob, err := rs.Load(ctx, "36201234567")
	if err != nil || blob != nil {
		t.Fatalf("Load missing = %q, %v", blob, err)
	}

	if err := rs.Save(ctx, "36201234567", []byte("secret")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	blob, err = rs.Load(ctx, "36201234567")
	if err != nil || string(blob) != "secret" {
		t.Fatalf("Load = %q, %v", blob, err)
	}

	if err := rs.Erase(ctx, "36201234567"); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if err := rs.Erase(ctx, "36201234567"); err != nil {
		t.Fatalf("Erase should be idempotent: %v", err)
	}
}

func TestSerialized_ConcurrentSameIdentity(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := Serialized(fs)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Save(ctx, "36201234567", []byte("blob"))
			_, _ = store.Load(ctx, "36201234567")
		}()
	}
	wg.Wait()

	blob, err := store.Load(ctx, "36201234567")
	if err != nil || string(blob) != "blob" {
		t.Fatalf("Load = %q, %v", blob, err)
	}
}
