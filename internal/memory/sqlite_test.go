package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *LongTermStore {
	t.Helper()
	s, err := NewLongTermStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewLongTermStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLongTermInsertAndRelevant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	rows := []Interaction{
		{Query: "how do goroutines work", Answer: "goroutines are lightweight threads", Backend: "local", CompletedAt: base},
		{Query: "python decorators", Answer: "functions wrapping functions", Backend: "deepseek", CompletedAt: base.Add(time.Minute)},
		{Query: "goroutine leaks", Answer: "always provide a cancellation path", Backend: "deepseek", CompletedAt: base.Add(2 * time.Minute)},
	}
	for _, it := range rows {
		if err := s.Insert(ctx, it); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.Relevant(ctx, "goroutine", 3)
	if err != nil {
		t.Fatalf("Relevant: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Relevant returned %d rows, want 2", len(got))
	}
	// Newest first.
	if got[0].Query != "goroutine leaks" || got[1].Query != "how do goroutines work" {
		t.Errorf("order = [%q %q], want newest first", got[0].Query, got[1].Query)
	}
	if got[0].ID == "" {
		t.Error("inserted row has no generated id")
	}
}

func TestLongTermRelevantMatchesAnswer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, Interaction{Query: "storage advice", Answer: "use WAL mode for sqlite", Backend: "local"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.Relevant(ctx, "WAL", 3)
	if err != nil {
		t.Fatalf("Relevant: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Relevant returned %d rows, want 1", len(got))
	}
}

func TestLongTermRelevantLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 10 {
		it := Interaction{
			Query:       "repeated topic",
			Answer:      "answer",
			Backend:     "local",
			CompletedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := s.Insert(ctx, it); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.Relevant(ctx, "repeated", 3)
	if err != nil {
		t.Fatalf("Relevant: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Relevant returned %d rows, want 3", len(got))
	}
}

func TestLongTermRelevantEmptySearch(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Relevant(context.Background(), "", 3)
	if err != nil {
		t.Fatalf("Relevant: %v", err)
	}
	if got != nil {
		t.Errorf("empty search returned %d rows, want none", len(got))
	}
}

func TestLongTermClearAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		if err := s.Insert(ctx, Interaction{Query: "q", Answer: "a", Backend: "local"}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count after ClearAll = %d, want 0", n)
	}
}
