package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookup(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	err := store.Save(ctx, "token-abc", Data{UserID: "user_1", DisplayName: "Ayşe"}, time.Hour)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := store.Lookup(ctx, "token-abc")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if data.UserID != "user_1" {
		t.Errorf("expected user_1, got %s", data.UserID)
	}
	if data.DisplayName != "Ayşe" {
		t.Errorf("expected display name Ayşe, got %s", data.DisplayName)
	}
	if data.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on save")
	}
}

func TestLookupUnknownToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Lookup(context.Background(), "missing")
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestLookupExpiredToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "token-exp", Data{UserID: "user_1"}, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := store.Lookup(ctx, "token-exp"); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after expiry, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "token-rev", Data{UserID: "user_1"}, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Revoke(ctx, "token-rev"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := store.Lookup(ctx, "token-rev"); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after revoke, got %v", err)
	}
}
