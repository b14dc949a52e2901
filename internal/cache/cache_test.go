package cache

import (
	"context"
	"errors"
	"testing"
)

func TestGetLoadsOnceAndServesFromCache(t *testing.T) {
	loads := 0
	c := New(func(_ context.Context, key string) (int, error) {
		loads++
		return len(key), nil
	})

	for i := 0; i < 3; i++ {
		value, err := c.Get(context.Background(), "abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != 3 {
			t.Fatalf("unexpected value %d", value)
		}
	}
	if loads != 1 {
		t.Fatalf("expected a single load, got %d", loads)
	}
}

func TestLoadFailuresAreNotCached(t *testing.T) {
	loads := 0
	failing := errors.New("store offline")
	c := New(func(_ context.Context, _ string) (int, error) {
		loads++
		if loads == 1 {
			return 0, failing
		}
		return 42, nil
	})

	if _, err := c.Get(context.Background(), "key"); !errors.Is(err, failing) {
		t.Fatalf("expected load failure, got %v", err)
	}
	value, err := c.Get(context.Background(), "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 42 {
		t.Fatalf("unexpected value %d", value)
	}
	if loads != 2 {
		t.Fatalf("expected retry after failure, got %d loads", loads)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	loads := 0
	c := New(func(_ context.Context, _ string) (int, error) {
		loads++
		return loads, nil
	})

	if _, err := c.Get(context.Background(), "key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Invalidate("key")
	value, err := c.Get(context.Background(), "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 2 {
		t.Fatalf("expected reload after invalidate, got %d", value)
	}
}

func TestPutOverridesWithoutLoad(t *testing.T) {
	loads := 0
	c := New(func(_ context.Context, _ string) (int, error) {
		loads++
		return 0, nil
	})

	c.Put("key", 7)
	value, err := c.Get(context.Background(), "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 7 || loads != 0 {
		t.Fatalf("expected put value without load, got %d (loads=%d)", value, loads)
	}
}
