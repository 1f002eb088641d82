package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNew_EmptyURLIsNoop(t *testing.T) {
	c, err := New(context.Background(), "", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(noop); !ok {
		t.Errorf("expected noop cache, got %T", c)
	}
}

func TestNew_BadURL(t *testing.T) {
	if _, err := New(context.Background(), "http://localhost:6379", zerolog.Nop()); err == nil {
		t.Fatal("expected error for non-redis scheme")
	}
}

func TestNoop_AlwaysMisses(t *testing.T) {
	c := Noop()
	ctx := context.Background()
	if err := c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var dst map[string]int
	hit, err := c.Get(ctx, "k", &dst)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if hit {
		t.Error("expected miss from noop cache")
	}
	if err := c.DeletePrefix(ctx, "k"); err != nil {
		t.Errorf("delete prefix: %v", err)
	}
}
