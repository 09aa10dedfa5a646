package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Archiver persists interactions evicted from the short-term buffer.
type Archiver interface {
	Insert(ctx context.Context, it Interaction) error
	Relevant(ctx context.Context, search string, limit int) ([]Interaction, error)
	ClearAll(ctx context.Context) error
}

// Store ties the two memory tiers together. Remember appends to the
// short-term buffer and archives whatever that evicts; a persistence
// failure never propagates to the caller.
//
// mu serializes ClearAll against in-flight Remembers so an evicted
// record can never land in the archive after a clear wiped it.
type Store struct {
	mu      sync.RWMutex
	buffer  *Buffer
	archive Archiver
	retries uint64
	logger  *slog.Logger
}

// NewStore creates the dual-tier store. retries bounds the archive
// retry attempts after the first failure.
func NewStore(buffer *Buffer, archive Archiver, retries int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if retries < 0 {
		retries = 0
	}
	return &Store{
		buffer:  buffer,
		archive: archive,
		retries: uint64(retries),
		logger:  logger,
	}
}

// Remember records a completed interaction. The buffer append is
// atomic; archiving the evicted entry happens outside the buffer lock
// with bounded exponential backoff. If every attempt fails the loss is
// logged and swallowed.
func (s *Store) Remember(ctx context.Context, it Interaction) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evicted, wasEvicted := s.buffer.Append(it)
	if !wasEvicted {
		return
	}
	s.persist(ctx, evicted)
}

func (s *Store) persist(ctx context.Context, it Interaction) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(100*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
		), s.retries),
		ctx)

	op := func() error {
		return s.archive.Insert(ctx, it)
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("archive insert failed, retrying",
			"error", err, "wait", wait, "interaction", it.ID)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		s.logger.Error("interaction lost: archive persistence exhausted retries",
			"error", err, "interaction", it.ID, "query", it.Query)
	}
}

// Recent returns up to n short-term interactions, newest last.
func (s *Store) Recent(n int) []Interaction {
	return s.buffer.Recent(n)
}

// Relevant searches the archive tier.
func (s *Store) Relevant(ctx context.Context, search string, limit int) ([]Interaction, error) {
	return s.archive.Relevant(ctx, search, limit)
}

// BufferLen reports the short-term tier occupancy.
func (s *Store) BufferLen() int { return s.buffer.Len() }

// ClearAll empties both tiers as one operation: concurrent Remembers
// wait until both the buffer and the archive are cleared. The buffer
// is always cleared; an archive failure is returned so callers can
// report partial clearing.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.Clear()
	return s.archive.ClearAll(ctx)
}
