package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStore_AppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := store.Append(ctx, "s1", Turn{Role: role, Content: fmt.Sprintf("turn %d", i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Content != fmt.Sprintf("turn %d", i) {
			t.Errorf("turn %d out of order: %q", i, turn.Content)
		}
	}
}

func TestMemoryStore_SessionsIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.Append(ctx, "a", Turn{Role: RoleUser, Content: "hello a"})
	store.Append(ctx, "b", Turn{Role: RoleUser, Content: "hello b"})

	turns, _ := store.Get(ctx, "a")
	if len(turns) != 1 || turns[0].Content != "hello a" {
		t.Errorf("session a polluted: %+v", turns)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Append(ctx, "s", Turn{Role: RoleUser, Content: "original"})

	turns, _ := store.Get(ctx, "s")
	turns[0].Content = "mutated"

	again, _ := store.Get(ctx, "s")
	if again[0].Content != "original" {
		t.Error("Get leaked internal slice")
	}
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Append(ctx, "shared", Turn{Role: RoleUser, Content: "x"})
		}()
	}
	wg.Wait()

	turns, _ := store.Get(ctx, "shared")
	if len(turns) != 50 {
		t.Errorf("expected 50 turns, got %d", len(turns))
	}
}

func TestTail(t *testing.T) {
	turns := make([]Turn, 12)
	for i := range turns {
		turns[i] = Turn{Role: RoleUser, Content: fmt.Sprintf("%d", i)}
	}

	window := Tail(turns, 10)
	if len(window) != 10 {
		t.Fatalf("expected window of 10, got %d", len(window))
	}
	if window[0].Content != "2" {
		t.Errorf("expected oldest discarded, window starts at %q", window[0].Content)
	}

	short := Tail(turns[:3], 10)
	if len(short) != 3 {
		t.Errorf("expected full short history, got %d", len(short))
	}
}
