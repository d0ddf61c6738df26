package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ledgertrack/authkit/internal"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func futureRecord(token string) *RefreshRecord {
	return &RefreshRecord{
		TokenHash: internal.HashToken(token),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
}

func TestReplaceAndGet(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	record := futureRecord("token-a")
	if err := reg.Replace(ctx, "u1", record); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	got, err := reg.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !internal.HashEqual(got.TokenHash, record.TokenHash) || got.ExpiresAt != record.ExpiresAt {
		t.Fatalf("stored record differs: %+v vs %+v", got, record)
	}
}

func TestReplaceDisplacesPriorRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	if err := reg.Replace(ctx, "u1", futureRecord("token-a")); err != nil {
		t.Fatalf("first Replace failed: %v", err)
	}
	second := futureRecord("token-b")
	if err := reg.Replace(ctx, "u1", second); err != nil {
		t.Fatalf("second Replace failed: %v", err)
	}

	got, err := reg.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !internal.HashEqual(got.TokenHash, second.TokenHash) {
		t.Fatal("prior record not displaced")
	}
}

func TestReplaceRejectsExpiredRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	reg := NewRefreshRegistry(rdb, "rt")
	record := &RefreshRecord{
		TokenHash: internal.HashToken("token-a"),
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}
	if err := reg.Replace(context.Background(), "u1", record); !errors.Is(err, ErrRefreshRecordExpired) {
		t.Fatalf("expected ErrRefreshRecordExpired, got %v", err)
	}
}

func TestRotateSwapsMatchingRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	if err := reg.Replace(ctx, "u1", futureRecord("token-a")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	next := futureRecord("token-b")
	if err := reg.Rotate(ctx, "u1", internal.HashToken("token-a"), next); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	got, err := reg.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !internal.HashEqual(got.TokenHash, next.TokenHash) {
		t.Fatal("record not swapped")
	}
}

func TestRotateMismatchDeletesRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	if err := reg.Replace(ctx, "u1", futureRecord("token-a")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	err := reg.Rotate(ctx, "u1", internal.HashToken("stale-token"), futureRecord("token-b"))
	if !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected ErrRefreshMismatch, got %v", err)
	}

	if _, err := reg.Get(ctx, "u1"); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected record to be deleted after mismatch, got %v", err)
	}
}

func TestRotateMissingRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	reg := NewRefreshRegistry(rdb, "rt")
	err := reg.Rotate(context.Background(), "u1", internal.HashToken("token-a"), futureRecord("token-b"))
	if !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}
}

func TestRotateExpiredStoredRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	// Seed an encoded record whose logical expiry is in the past while its
	// Redis TTL is still alive.
	expired := &RefreshRecord{
		TokenHash: internal.HashToken("token-a"),
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}
	encoded, err := encodeRefreshRecord(expired)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := rdb.Set(ctx, "rt:u1", encoded, time.Hour).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err = reg.Rotate(ctx, "u1", internal.HashToken("token-a"), futureRecord("token-b"))
	if !errors.Is(err, ErrRefreshRecordExpired) {
		t.Fatalf("expected ErrRefreshRecordExpired, got %v", err)
	}
	if rdb.Exists(ctx, "rt:u1").Val() != 0 {
		t.Fatal("expired record should be purged")
	}
}

func TestGetPurgesExpiredRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	expired := &RefreshRecord{
		TokenHash: internal.HashToken("token-a"),
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}
	encoded, err := encodeRefreshRecord(expired)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := rdb.Set(ctx, "rt:u1", encoded, time.Hour).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := reg.Get(ctx, "u1"); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}
	if rdb.Exists(ctx, "rt:u1").Val() != 0 {
		t.Fatal("expired record should be purged on read")
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	if err := reg.Replace(ctx, "u1", futureRecord("token-a")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	provided := internal.HashToken("token-a")

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			next := futureRecord("token-b")
			next.ExpiresAt += int64(n)
			if err := reg.Rotate(ctx, "u1", provided, next); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if successes > 1 {
		t.Fatalf("expected at most one winner, got %d", successes)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	if err := reg.Replace(ctx, "u1", futureRecord("token-a")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := reg.Revoke(ctx, "u1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := reg.Revoke(ctx, "u1"); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
	if _, err := reg.Get(ctx, "u1"); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	reg := NewRefreshRegistry(rdb, "rt")

	if err := rdb.Set(ctx, "rt:u1", "garbage", time.Hour).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := reg.Get(ctx, "u1"); !errors.Is(err, ErrRefreshRecordCorrupt) {
		t.Fatalf("expected ErrRefreshRecordCorrupt, got %v", err)
	}
}
