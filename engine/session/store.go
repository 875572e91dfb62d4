// Package session owns the in-memory document sessions: each holds one
// ingested document's chunks, vector index, and citation pages, keyed by an
// opaque identifier. Sessions live only as long as the process and their
// idle timeout allow.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docsage/docsage/engine/domain"
	"github.com/docsage/docsage/engine/index"
	"github.com/docsage/docsage/pkg/metrics"
	"github.com/google/uuid"
)

// Session bundles one ingested document's state. Chunks, Index, and Pages
// are positionally aligned and immutable after creation; the last-access
// time is owned by the Store and guarded by its mutex.
type Session struct {
	ID           string
	Chunks       []domain.Chunk
	Index        *index.Index
	Pages        []int
	lastAccessed time.Time
}

// Options configures a Store.
type Options struct {
	// TTL is how long a session survives without being queried.
	TTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Metrics is optional; when set the store tracks active/swept sessions.
	Metrics *metrics.Registry
}

// DefaultTTL is the idle timeout applied when Options.TTL is zero.
const DefaultTTL = 30 * time.Minute

// Store is the process-wide session map. All access paths are serialized by
// one mutex, so a sweep can never observe or remove an entry halfway
// through another operation on it.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
	active *metrics.Gauge
	swept  *metrics.Counter
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		sessions: make(map[string]*Session),
		ttl:      opts.TTL,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if opts.Metrics != nil {
		s.active = opts.Metrics.Gauge("docsage_sessions_active", "Sessions currently held in memory.")
		s.swept = opts.Metrics.Counter("docsage_sessions_swept_total", "Sessions removed by the expiry sweep.")
	}
	return s
}

// Create registers a fully built session and returns its fresh identifier.
// The id comes from uuid.NewRandom (crypto/rand), so collisions are
// negligible over a process lifetime. Chunks, vectors, and pages must be
// aligned 1:1; a misaligned bundle is an ingestion bug and is refused.
func (s *Store) Create(chunks []domain.Chunk, ix *index.Index, pages []int) (string, error) {
	if ix == nil {
		return "", fmt.Errorf("session: nil index: %w", domain.ErrInvalidArgument)
	}
	if len(chunks) != ix.Len() || len(chunks) != len(pages) {
		return "", fmt.Errorf("session: misaligned bundle: %d chunks, %d vectors, %d pages: %w",
			len(chunks), ix.Len(), len(pages), domain.ErrInvalidArgument)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}

	sess := &Session{
		ID:           id.String(),
		Chunks:       chunks,
		Index:        ix,
		Pages:        pages,
		lastAccessed: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	if s.active != nil {
		s.active.Set(int64(n))
	}
	return sess.ID, nil
}

// Get returns the session for id, if present. The returned pointer stays
// valid for the duration of the request even if a sweep removes the entry
// concurrently; removal only unlinks it from the map.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Touch marks the session as just used. It re-checks presence under the
// lock, so a touch that observes the session still present always wins over
// a sweep decision made on stale data.
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.lastAccessed = s.now()
	return true
}

// Sweep removes every session idle longer than the TTL as of now and
// returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastAccessed) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	if removed > 0 {
		s.log.Info("session sweep", "removed", removed, "active", n)
		if s.swept != nil {
			s.swept.Add(int64(removed))
		}
	}
	if s.active != nil {
		s.active.Set(int64(n))
	}
	return removed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run sweeps on a fixed interval until ctx is cancelled. The sweep runs
// independently of request traffic and never holds the store lock across
// anything that blocks.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}
