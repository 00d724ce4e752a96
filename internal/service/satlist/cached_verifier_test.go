package satlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type stubResultCache struct {
	entries map[string]domain.VerificationResult
	getErr  error
	setErr  error

	getCalls int
	setCalls int
}

func newStubResultCache() *stubResultCache {
	return &stubResultCache{entries: make(map[string]domain.VerificationResult)}
}

func (c *stubResultCache) Get(_ context.Context, taxID string) (domain.VerificationResult, bool, error) {
	c.getCalls++
	if c.getErr != nil {
		return domain.VerificationResult{}, false, c.getErr
	}
	result, ok := c.entries[taxID]
	return result, ok, nil
}

func (c *stubResultCache) Set(_ context.Context, taxID string, result domain.VerificationResult) error {
	c.setCalls++
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[taxID] = result
	return nil
}

var _ ResultCache = (*stubResultCache)(nil)

func TestCachedVerifier_MissThenHit(t *testing.T) {
	inner := NewMockVerifier()
	inner.Result = domain.VerificationResult{
		InPresumedList: true,
		CheckedAt:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	cache := newStubResultCache()

	verifier := NewCachedVerifier(inner, cache, nil)
	ctx := context.Background()

	first, err := verifier.Verify(ctx, "CAD980316QX1")
	if err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if first.FromCache {
		t.Fatal("first verification must not come from cache")
	}
	if inner.Calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.Calls)
	}
	if cache.setCalls != 1 {
		t.Fatalf("expected successful result to be cached, set calls = %d", cache.setCalls)
	}

	second, err := verifier.Verify(ctx, "CAD980316QX1")
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if !second.FromCache {
		t.Fatal("second verification should be answered from cache")
	}
	if !second.InPresumedList {
		t.Fatalf("cached result lost flags: %+v", second)
	}
	if inner.Calls != 1 {
		t.Fatalf("cache hit must not call inner verifier, calls = %d", inner.Calls)
	}
}

func TestCachedVerifier_NormalizesCacheKey(t *testing.T) {
	inner := NewMockVerifier()
	cache := newStubResultCache()

	verifier := NewCachedVerifier(inner, cache, nil)
	ctx := context.Background()

	if _, err := verifier.Verify(ctx, "cad980316qx1"); err != nil {
		t.Fatalf("verify lowercase: %v", err)
	}
	if _, err := verifier.Verify(ctx, " CAD980316QX1 "); err != nil {
		t.Fatalf("verify padded: %v", err)
	}

	// Оба написания попадают в один ключ кэша
	if inner.Calls != 1 {
		t.Fatalf("expected 1 inner call across spellings, got %d", inner.Calls)
	}
}

func TestCachedVerifier_ErrorsNotCached(t *testing.T) {
	inner := NewMockVerifier()
	inner.Err = errors.New("service unavailable")
	cache := newStubResultCache()

	verifier := NewCachedVerifier(inner, cache, nil)

	if _, err := verifier.Verify(context.Background(), "CAD980316QX1"); err == nil {
		t.Fatal("expected inner verifier error")
	}
	if cache.setCalls != 0 {
		t.Fatalf("failed verification must not be cached, set calls = %d", cache.setCalls)
	}
}

func TestCachedVerifier_CacheFailuresFallThrough(t *testing.T) {
	inner := NewMockVerifier()
	cache := newStubResultCache()
	cache.getErr = errors.New("cache down")
	cache.setErr = errors.New("cache down")

	verifier := NewCachedVerifier(inner, cache, nil)

	result, err := verifier.Verify(context.Background(), "CAD980316QX1")
	if err != nil {
		t.Fatalf("cache failure must not fail verification: %v", err)
	}
	if result.FromCache {
		t.Fatal("result with broken cache cannot be from cache")
	}
	if inner.Calls != 1 {
		t.Fatalf("expected inner call despite cache failure, calls = %d", inner.Calls)
	}
}

func TestNewCachedVerifier_NilCache(t *testing.T) {
	inner := NewMockVerifier()

	verifier := NewCachedVerifier(inner, nil, nil)
	if verifier != domain.ListVerifier(inner) {
		t.Fatal("nil cache should return the inner verifier unchanged")
	}
}
