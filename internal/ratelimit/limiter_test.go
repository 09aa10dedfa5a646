package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(limits Limits) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(limits)
	l.now = clock.now
	return l, clock
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimits())

	allowed, reason := l.Check("u1")
	if !allowed {
		t.Fatalf("fresh client denied: %s", reason)
	}
}

func TestCheckDeniesPerMinute(t *testing.T) {
	limits := DefaultLimits()
	limits.RequestsPerMinute = 3
	l, _ := newTestLimiter(limits)

	for i := 0; i < 3; i++ {
		l.Record("u1", 10, 10)
	}

	allowed, reason := l.Check("u1")
	if allowed {
		t.Fatal("expected denial after exceeding per-minute limit")
	}
	if !strings.Contains(reason, "minute") {
		t.Errorf("reason %q does not mention the minute window", reason)
	}
}

func TestMinuteWindowSlides(t *testing.T) {
	limits := DefaultLimits()
	limits.RequestsPerMinute = 2
	l, clock := newTestLimiter(limits)

	l.Record("u1", 0, 0)
	l.Record("u1", 0, 0)

	if allowed, _ := l.Check("u1"); allowed {
		t.Fatal("expected denial inside the minute window")
	}

	clock.advance(61 * time.Second)

	if allowed, reason := l.Check("u1"); !allowed {
		t.Fatalf("expected admission after window slid: %s", reason)
	}
}

func TestCheckDeniesDailyTokens(t *testing.T) {
	limits := DefaultLimits()
	limits.InputTokensPerDay = 100
	l, _ := newTestLimiter(limits)

	l.Record("u1", 150, 0)

	allowed, reason := l.Check("u1")
	if allowed {
		t.Fatal("expected denial after exceeding daily input tokens")
	}
	if !strings.Contains(reason, "input token") {
		t.Errorf("reason %q does not mention input tokens", reason)
	}
}

func TestDailyPruneResetsTokens(t *testing.T) {
	limits := DefaultLimits()
	limits.InputTokensPerDay = 100
	l, clock := newTestLimiter(limits)

	l.Record("u1", 150, 0)
	clock.advance(25 * time.Hour)

	if allowed, reason := l.Check("u1"); !allowed {
		t.Fatalf("expected admission after day rolled over: %s", reason)
	}
	if u := l.Usage("u1"); u.RequestsLastDay != 0 {
		t.Errorf("stale requests survived prune: %+v", u)
	}
}

func TestClientsAreIndependent(t *testing.T) {
	limits := DefaultLimits()
	limits.RequestsPerMinute = 1
	l, _ := newTestLimiter(limits)

	l.Record("u1", 0, 0)

	if allowed, _ := l.Check("u1"); allowed {
		t.Error("u1 should be denied")
	}
	if allowed, reason := l.Check("u2"); !allowed {
		t.Errorf("u2 should be unaffected by u1: %s", reason)
	}
}

func TestSetClientLimits(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimits())

	custom := DefaultLimits()
	custom.RequestsPerMinute = 1
	l.SetClientLimits("vip", custom)

	l.Record("vip", 0, 0)
	if allowed, _ := l.Check("vip"); allowed {
		t.Error("custom per-client limit not applied")
	}
}

func TestUsageSnapshot(t *testing.T) {
	l, clock := newTestLimiter(DefaultLimits())

	l.Record("u1", 100, 50)
	clock.advance(2 * time.Minute)
	l.Record("u1", 10, 5)

	u := l.Usage("u1")
	if u.RequestsLastMinute != 1 {
		t.Errorf("RequestsLastMinute = %d, want 1", u.RequestsLastMinute)
	}
	if u.RequestsLastDay != 2 {
		t.Errorf("RequestsLastDay = %d, want 2", u.RequestsLastDay)
	}
	if u.InputTokens != 110 || u.OutputTokens != 55 {
		t.Errorf("token totals = %d/%d, want 110/55", u.InputTokens, u.OutputTokens)
	}
}

func TestConcurrentRecordAndCheck(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimits())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", i%4)
			for j := 0; j < 50; j++ {
				l.Record(id, 1, 1)
				l.Check(id)
				l.Usage(id)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("client-%d", i)
		if u := l.Usage(id); u.RequestsLastDay != 200 {
			t.Errorf("%s RequestsLastDay = %d, want 200", id, u.RequestsLastDay)
		}
	}
}
