package hsm

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/anya-org/anya-core/pkg/apperr"
)

// SessionManager enforces the session lifetime and concurrency limits
// common to every Provider (§4.3): a session expires after Timeout and at
// most MaxSessions may be open at once. Clock is injectable so expiry is
// deterministically testable (§8 scenario: session expiry).
type SessionManager struct {
	mu          sync.Mutex
	sessions    map[string]Session
	Timeout     time.Duration
	MaxSessions int
	Clock       clock.Clock
}

// NewSessionManager constructs a SessionManager with the given timeout and
// cap. A nil clk defaults to the real wall clock.
func NewSessionManager(timeout time.Duration, maxSessions int, clk clock.Clock) *SessionManager {
	if clk == nil {
		clk = clock.New()
	}
	return &SessionManager{
		sessions:    make(map[string]Session),
		Timeout:     timeout,
		MaxSessions: maxSessions,
		Clock:       clk,
	}
}

// Open creates a new session, rejecting the request once MaxSessions
// concurrently-live sessions already exist.
func (sm *SessionManager) Open(ctx context.Context) (Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sweepLocked()
	if len(sm.sessions) >= sm.MaxSessions {
		return Session{}, apperr.New(apperr.Capacity, apperr.CodeSessionCapReached, "hsm session cap reached").
			WithContext("max_sessions", strconv.Itoa(sm.MaxSessions))
	}
	now := sm.Clock.Now()
	s := Session{ID: uuid.NewString(), OpenedAt: now, ExpiresAt: now.Add(sm.Timeout)}
	sm.sessions[s.ID] = s
	return s, nil
}

// Close releases a session early.
func (sm *SessionManager) Close(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[id]; !ok {
		return apperr.New(apperr.Security, apperr.CodeNotAuthenticated, "unknown hsm session").WithContext("session", id)
	}
	delete(sm.sessions, id)
	return nil
}

// Require validates that id is open and not expired, touching the entry's
// liveness check but not extending its expiry (sessions are fixed-lifetime,
// not sliding).
func (sm *SessionManager) Require(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return apperr.New(apperr.Security, apperr.CodeNotAuthenticated, "unknown hsm session").WithContext("session", id)
	}
	if sm.Clock.Now().After(s.ExpiresAt) {
		delete(sm.sessions, id)
		return apperr.New(apperr.Security, apperr.CodeSessionExpired, "hsm session expired").WithContext("session", id)
	}
	return nil
}

// sweepLocked drops expired sessions; caller must hold sm.mu.
func (sm *SessionManager) sweepLocked() {
	now := sm.Clock.Now()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			delete(sm.sessions, id)
		}
	}
}
