package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(Config{URL: "not-a-redis-url"}); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestKeyPrefix(t *testing.T) {
	c := newClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), Config{Prefix: "widget"})
	defer c.Close()

	if got := c.key("relaychat:lic:session_id"); got != "widget:relaychat:lic:session_id" {
		t.Errorf("key = %q", got)
	}
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want default", c.ttl)
	}

	bare := newClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), Config{TTL: time.Minute})
	defer bare.Close()
	if got := bare.key("k"); got != "k" {
		t.Errorf("key without prefix = %q", got)
	}
}

// Runs against a live Redis when REDIS_URL is set.
func TestClient_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	c, err := NewClient(Config{URL: url, Prefix: "relaychat_test", TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if created, err := c.SetIfAbsent(ctx, "k", "other"); err != nil || created {
		t.Fatalf("SetIfAbsent on existing key = %v, %v", created, err)
	}
	if err := c.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("key still present after Remove")
	}
	if created, err := c.SetIfAbsent(ctx, "k", "fresh"); err != nil || !created {
		t.Fatalf("SetIfAbsent on missing key = %v, %v", created, err)
	}
	_ = c.Remove(ctx, "k")
}
