package service

import (
	"context"
	"sync"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/rs/zerolog"
)

// Snapshot is the authentication state visible to the rest of the app.
// Role is a display role only: authorization decisions read the role
// store.
type Snapshot struct {
	User    *model.User `json:"user"`
	Role    model.Role  `json:"role,omitempty"`
	Settled bool        `json:"settled"`
}

// SessionManager keeps the app-wide authentication state in step with the
// identity provider's session-change events. State is written only by the
// event consumer goroutine.
type SessionManager struct {
	provider IdentityProvider
	log      zerolog.Logger

	lifecycle   sync.Mutex
	started     bool
	closed      bool
	unsubscribe func()
	done        chan struct{}

	mu      sync.RWMutex
	state   Snapshot
	applied uint64
	changed chan struct{}
	notify  chan struct{}
}

// NewSessionManager creates an unstarted manager. Current reports an
// unsettled, signed-out snapshot until the first event arrives.
func NewSessionManager(provider IdentityProvider, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		provider: provider,
		log:      log.With().Str("component", "session_manager").Logger(),
		done:     make(chan struct{}),
		changed:  make(chan struct{}),
		notify:   make(chan struct{}, 1),
	}
}

// Start subscribes to session changes. Only the first call subscribes;
// cancelling ctx has the same effect as Close.
func (m *SessionManager) Start(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true

	events, unsubscribe := m.provider.Subscribe()
	m.unsubscribe = unsubscribe

	go m.consume(events)
	go func() {
		select {
		case <-ctx.Done():
			m.Close()
		case <-m.done:
		}
	}()
}

func (m *SessionManager) consume(events <-chan model.SessionEvent) {
	defer close(m.done)
	for ev := range events {
		m.apply(ev)
	}
}

func (m *SessionManager) apply(ev model.SessionEvent) {
	var user *model.User
	if ev.Session != nil {
		user = ev.Session.User
	}

	m.mu.Lock()
	m.state = Snapshot{User: user, Role: DisplayRole(user), Settled: true}
	m.applied = ev.Seq
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	m.log.Debug().
		Str("event", string(ev.Type)).
		Uint64("seq", ev.Seq).
		Bool("signed_in", user != nil).
		Msg("Session state applied")

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// DisplayRole is the role shown for u: its metadata role tag, or student.
func DisplayRole(u *model.User) model.Role {
	if u == nil {
		return ""
	}
	if u.Metadata.Role.Valid() {
		return u.Metadata.Role
	}
	return model.RoleStudent
}

// Current returns the latest snapshot.
func (m *SessionManager) Current() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Changes is signalled after each applied event. Signals coalesce: a
// reader that falls behind sees one pending signal and should re-read
// Current.
func (m *SessionManager) Changes() <-chan struct{} {
	return m.notify
}

// SignOut asks the provider to end the session and returns once every
// event up to and including the resulting sign-out has been applied. A
// SIGNED_IN still queued behind the consumer is applied first, so Current
// never shows it afterwards. A provider failure leaves the state untouched.
func (m *SessionManager) SignOut(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		m.log.Error().Err(err).Msg("Sign out failed")
		return newError(KindProviderUnavailable, "Sign out failed. Please try again.", err)
	}
	target := m.provider.LastEventSeq()

	m.lifecycle.Lock()
	started := m.started
	m.lifecycle.Unlock()
	if !started {
		return nil
	}

	for {
		m.mu.RLock()
		applied, changed := m.applied, m.changed
		m.mu.RUnlock()

		if applied >= target {
			return nil
		}
		select {
		case <-changed:
		case <-m.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close unsubscribes and waits for the consumer to exit. No state change
// happens after any call to Close returns, including concurrent ones.
func (m *SessionManager) Close() {
	m.lifecycle.Lock()
	first := !m.closed
	m.closed = true
	started := m.started
	m.lifecycle.Unlock()

	if !started {
		return
	}
	if first {
		m.unsubscribe()
	}
	<-m.done
}
