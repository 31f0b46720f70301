package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestMemoryStoreGetSet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.Set(ctx, "key", "ASN 64512", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, found, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || value != "ASN 64512" {
		t.Fatalf("unexpected entry: (%v, %q)", found, value)
	}

	_, found, err = store.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if found {
		t.Fatalf("expected miss for absent key")
	}

	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMemoryStoreTTLBoundary(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := newMemory(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Set(ctx, "key", "ok", 86400*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(86400 * time.Second)
	if _, found, _ := store.Get(ctx, "key"); !found {
		t.Fatalf("entry should survive until the TTL elapses")
	}

	now = now.Add(time.Second)
	if _, found, _ := store.Get(ctx, "key"); found {
		t.Fatalf("entry should be gone after the TTL elapses")
	}
}

func TestMemoryStoreZeroTTLNotStored(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.Set(ctx, "key", "ok", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, found, _ := store.Get(ctx, "key"); found {
		t.Fatalf("zero ttl must not persist an entry")
	}
}

func TestRedisStoreGetSet(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	store, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	ctx := context.Background()

	if err := store.Set(ctx, "plugin_whitelist_srv1ip203.0.113.5", "ok", time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, found, err := store.Get(ctx, "plugin_whitelist_srv1ip203.0.113.5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || value != "ok" {
		t.Fatalf("unexpected entry: (%v, %q)", found, value)
	}

	server.FastForward(2 * time.Second)
	_, found, err = store.Get(ctx, "plugin_whitelist_srv1ip203.0.113.5")
	if err != nil {
		t.Fatalf("get after ttl: %v", err)
	}
	if found {
		t.Fatalf("expected redis entry to expire")
	}

	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRedisStorePingFailureSurfaces(t *testing.T) {
	if _, err := NewRedis(RedisConfig{Address: "127.0.0.1:1"}); err == nil {
		t.Fatalf("expected construction against a dead backend to fail")
	}
}

func TestRedisStoreGetErrorAfterBackendLoss(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}

	store, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		server.Close()
		t.Fatalf("new redis: %v", err)
	}
	defer store.Close(context.Background())

	server.Close()
	if _, _, err := store.Get(context.Background(), "key"); err == nil {
		t.Fatalf("expected a backend fault, not a silent miss")
	}
}
