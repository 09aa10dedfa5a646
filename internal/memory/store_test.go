package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeArchive struct {
	mu       sync.Mutex
	inserted []Interaction
	failures int
}

func (f *fakeArchive) Insert(ctx context.Context, it Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	f.inserted = append(f.inserted, it)
	return nil
}

func (f *fakeArchive) Relevant(ctx context.Context, search string, limit int) ([]Interaction, error) {
	return nil, nil
}

func (f *fakeArchive) ClearAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = nil
	return nil
}

func (f *fakeArchive) insertedQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.inserted))
	for i, it := range f.inserted {
		out[i] = it.Query
	}
	return out
}

func TestStoreRememberArchivesEvicted(t *testing.T) {
	archive := &fakeArchive{}
	s := NewStore(NewBuffer(2), archive, 0, nil)
	ctx := context.Background()

	s.Remember(ctx, Interaction{Query: "A"})
	s.Remember(ctx, Interaction{Query: "B"})
	s.Remember(ctx, Interaction{Query: "C"})

	recent := s.Recent(0)
	if len(recent) != 2 || recent[0].Query != "B" || recent[1].Query != "C" {
		t.Errorf("buffer = %v, want [B C]", queries(recent))
	}
	if got := archive.insertedQueries(); len(got) != 1 || got[0] != "A" {
		t.Errorf("archived = %v, want [A]", got)
	}
}

func TestStoreRememberNoEvictionNoArchive(t *testing.T) {
	archive := &fakeArchive{}
	s := NewStore(NewBuffer(3), archive, 0, nil)

	s.Remember(context.Background(), Interaction{Query: "A"})
	if got := archive.insertedQueries(); len(got) != 0 {
		t.Errorf("archived %v before buffer was full", got)
	}
}

func TestStorePersistRetriesUntilSuccess(t *testing.T) {
	archive := &fakeArchive{failures: 2}
	s := NewStore(NewBuffer(1), archive, 3, nil)
	ctx := context.Background()

	s.Remember(ctx, Interaction{Query: "A"})
	s.Remember(ctx, Interaction{Query: "B"})

	if got := archive.insertedQueries(); len(got) != 1 || got[0] != "A" {
		t.Errorf("archived = %v, want [A] after retries", got)
	}
}

func TestStorePersistExhaustionDoesNotPropagate(t *testing.T) {
	archive := &fakeArchive{failures: 100}
	s := NewStore(NewBuffer(1), archive, 1, nil)
	ctx := context.Background()

	// Must not panic or block; the loss is logged.
	s.Remember(ctx, Interaction{Query: "A"})
	s.Remember(ctx, Interaction{Query: "B"})

	recent := s.Recent(0)
	if len(recent) != 1 || recent[0].Query != "B" {
		t.Errorf("buffer = %v, want [B]", queries(recent))
	}
}

func TestStoreClearAll(t *testing.T) {
	archive := &fakeArchive{}
	s := NewStore(NewBuffer(2), archive, 0, nil)
	ctx := context.Background()

	s.Remember(ctx, Interaction{Query: "A"})
	s.Remember(ctx, Interaction{Query: "B"})
	s.Remember(ctx, Interaction{Query: "C"})

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if s.BufferLen() != 0 {
		t.Errorf("buffer len = %d after clear", s.BufferLen())
	}
	if got := archive.insertedQueries(); len(got) != 0 {
		t.Errorf("archive = %v after clear", got)
	}
}

// clearTrackingArchive flags any Insert that arrives while a ClearAll
// is still in progress.
type clearTrackingArchive struct {
	clearing   atomic.Bool
	overlapped atomic.Bool
}

func (a *clearTrackingArchive) Insert(ctx context.Context, it Interaction) error {
	if a.clearing.Load() {
		a.overlapped.Store(true)
	}
	return nil
}

func (a *clearTrackingArchive) Relevant(ctx context.Context, search string, limit int) ([]Interaction, error) {
	return nil, nil
}

func (a *clearTrackingArchive) ClearAll(ctx context.Context) error {
	a.clearing.Store(true)
	time.Sleep(time.Millisecond)
	a.clearing.Store(false)
	return nil
}

func TestStoreClearAllExcludesInFlightRemember(t *testing.T) {
	archive := &clearTrackingArchive{}
	s := NewStore(NewBuffer(1), archive, 0, nil)
	ctx := context.Background()
	s.Remember(ctx, Interaction{Query: "seed"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.Remember(ctx, Interaction{Query: "q"})
		}
	}()
	for i := 0; i < 20; i++ {
		if err := s.ClearAll(ctx); err != nil {
			t.Fatalf("ClearAll: %v", err)
		}
	}
	<-done

	if archive.overlapped.Load() {
		t.Error("archive insert ran while a clear was in progress")
	}
}
