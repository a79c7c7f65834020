package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/logger"
	"github.com/samcharles93/genai-chat/internal/metrics"
	"github.com/samcharles93/genai-chat/internal/prompt"
)

// Release reasons, used as the sessions_closed_total label.
const (
	ReasonDeleted  = "deleted"
	ReasonExpired  = "expired"
	ReasonCapacity = "capacity"
	ReasonShutdown = "shutdown"
)

var errSessionClosed = errors.New("session closed")

// Session is one chat held by the server. Turns on a session run one at a
// time; the formatter and engine are never shared with another session.
type Session struct {
	ID      string
	Created time.Time

	mu        sync.Mutex
	formatter *prompt.Formatter
	engine    engine.Engine
	turns     int
	closed    bool
	once      sync.Once
}

func newSession(f *prompt.Formatter, eng engine.Engine) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Created:   time.Now(),
		formatter: f,
		engine:    eng,
	}
}

// lock acquires the session for a turn. It fails once the session has been
// released.
func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	return nil
}

func (s *Session) unlock() { s.mu.Unlock() }

// release ends the chat and closes the engine. Only the first call has an
// effect.
func (s *Session) release(log logger.Logger, reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		err := errors.Join(s.engine.EndChat(), s.engine.Close())
		if err != nil {
			log.Warn("session release failed", "session", s.ID, "reason", reason, "error", err)
		} else {
			log.Debug("session released", "session", s.ID, "reason", reason, "turns", s.turns)
		}
		metrics.ActiveSessions.Dec()
		metrics.SessionsClosed.WithLabelValues(reason).Inc()
	})
}

// SessionStore keeps live sessions in a TTL cache. Every lookup extends the
// session's idle deadline; expiry or capacity eviction releases the engine.
type SessionStore struct {
	cache     *ttlcache.Cache[string, *Session]
	log       logger.Logger
	closeOnce sync.Once
}

// NewSessionStore builds a store. ttl of zero keeps sessions until deleted;
// capacity of zero means unbounded.
func NewSessionStore(ttl time.Duration, capacity int, log logger.Logger) *SessionStore {
	if log == nil {
		log = logger.Default()
	}
	opts := []ttlcache.Option[string, *Session]{
		ttlcache.WithTTL[string, *Session](ttl),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *Session](uint64(capacity)))
	}
	st := &SessionStore{
		cache: ttlcache.New[string, *Session](opts...),
		log:   log,
	}
	st.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		item.Value().release(st.log, evictionLabel(reason))
	})
	go st.cache.Start()
	return st
}

func evictionLabel(r ttlcache.EvictionReason) string {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return ReasonExpired
	case ttlcache.EvictionReasonCapacityReached:
		return ReasonCapacity
	default:
		return ReasonDeleted
	}
}

// Add stores a new session.
func (st *SessionStore) Add(s *Session) {
	metrics.ActiveSessions.Inc()
	st.cache.Set(s.ID, s, ttlcache.DefaultTTL)
}

// Get returns the session and refreshes its idle deadline.
func (st *SessionStore) Get(id string) (*Session, bool) {
	item := st.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Delete removes and releases a session. It reports whether it existed.
func (st *SessionStore) Delete(id string) bool {
	item, ok := st.cache.GetAndDelete(id)
	if !ok {
		return false
	}
	item.Value().release(st.log, ReasonDeleted)
	return true
}

// Len is the number of live sessions.
func (st *SessionStore) Len() int { return st.cache.Len() }

// Close stops expiry and releases every session.
func (st *SessionStore) Close() {
	st.closeOnce.Do(func() {
		st.cache.Stop()
		for _, item := range st.cache.Items() {
			item.Value().release(st.log, ReasonShutdown)
		}
		st.cache.DeleteAll()
	})
}
