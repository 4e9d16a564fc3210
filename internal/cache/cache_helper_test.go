package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestHelper(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCacheHelper(client, "profile:"), mr
}

func TestCacheHelperGetSet(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	type record struct {
		ID       string `json:"id"`
		Approved bool   `json:"approved"`
	}

	in := record{ID: "u-1", Approved: true}
	if err := helper.Set(ctx, "id:u-1", in, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out record
	if err := helper.Get(ctx, "id:u-1", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestCacheHelperGetMissing(t *testing.T) {
	helper, _ := newTestHelper(t)

	var out map[string]any
	err := helper.Get(context.Background(), "id:nope", &out)
	if err != ErrCacheNotFound {
		t.Errorf("got %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelperNilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "profile:")
	ctx := context.Background()

	if err := helper.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Errorf("Set with nil client should be a no-op, got %v", err)
	}
	var out string
	if err := helper.Get(ctx, "k", &out); err != ErrCacheNotAvailable {
		t.Errorf("got %v, want ErrCacheNotAvailable", err)
	}
	if err := helper.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete with nil client should be a no-op, got %v", err)
	}
}

func TestCacheHelperInvalidatePattern(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	for _, key := range []string{"list:1", "list:2", "id:u-1"} {
		if err := helper.SetString(ctx, key, "x", time.Minute); err != nil {
			t.Fatalf("SetString: %v", err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "list:*"); err != nil {
		t.Fatalf("InvalidatePattern: %v", err)
	}

	if mr.Exists("profile:list:1") || mr.Exists("profile:list:2") {
		t.Error("list keys should have been invalidated")
	}
	if !mr.Exists("profile:id:u-1") {
		t.Error("non-matching key should survive invalidation")
	}
}

func TestCacheOrExecuteFallsBackToFetch(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return map[string]string{"id": "u-9"}, nil
	}

	var out map[string]string
	if err := helper.CacheOrExecute(ctx, "id:u-9", &out, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
	if out["id"] != "u-9" {
		t.Errorf("got %v", out)
	}
}
