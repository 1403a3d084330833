package service

import (
	"context"
	"errors"
	"sync"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/rs/zerolog"
)

// authBackend is the part of AuthService an AuthClient drives.
type authBackend interface {
	Register(ctx context.Context, email, password string, meta model.UserMetadata) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
	Restore(ctx context.Context, accessToken string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	RequestPasswordReset(ctx context.Context, email, redirectURL string) error
	VerifyRecovery(ctx context.Context, token string) (*AuthResult, error)
	UpdatePassword(ctx context.Context, sessionID, newPassword string) (*model.User, error)
	WatchSession(ctx context.Context, sessionID string) (<-chan model.SessionEvent, func())
}

const listenerBuffer = 16

type listener struct {
	ch   chan model.SessionEvent
	done chan struct{}
	once sync.Once
}

func (l *listener) stop() {
	l.once.Do(func() { close(l.done) })
}

// AuthClient is one application instance's connection to the identity
// provider. It holds the current session and fans session-change events
// out to subscribers in the order they happen.
type AuthClient struct {
	backend     authBackend
	log         zerolog.Logger
	remoteWatch bool

	mu          sync.Mutex
	session     *model.Session
	initialized bool
	closed      bool
	seq         uint64
	broadcast   uint64
	nextID      uint64
	listeners   map[uint64]*listener
	stopWatch   func()
}

// ClientOption configures an AuthClient.
type ClientOption func(*AuthClient)

// WithoutRemoteWatch disables following provider-side session events.
// Used by short-lived clients that serve a single HTTP request.
func WithoutRemoteWatch() ClientOption {
	return func(c *AuthClient) { c.remoteWatch = false }
}

// NewAuthClient creates a client with no session.
func NewAuthClient(backend authBackend, log zerolog.Logger, opts ...ClientOption) *AuthClient {
	c := &AuthClient{
		backend:     backend,
		log:         log.With().Str("component", "auth_client").Logger(),
		listeners:   make(map[uint64]*listener),
		remoteWatch: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a session-change listener. Listeners registered after
// the client has initialized receive INITIAL_SESSION with the current
// session straight away.
func (c *AuthClient) Subscribe() (<-chan model.SessionEvent, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := &listener{
		ch:   make(chan model.SessionEvent, listenerBuffer),
		done: make(chan struct{}),
	}
	if c.closed {
		close(l.ch)
		return l.ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.listeners[id] = l

	if c.initialized {
		c.seq++
		l.ch <- model.SessionEvent{Type: model.EventInitialSession, Session: c.session, Seq: c.seq}
	}

	return l.ch, func() { c.unsubscribe(id, l) }
}

func (c *AuthClient) unsubscribe(id uint64, l *listener) {
	// done is closed before taking mu so an emit blocked on this
	// listener can let go of the lock.
	l.stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.listeners[id]; ok {
		delete(c.listeners, id)
		close(l.ch)
	}
}

// emit delivers ev to every listener. Callers hold mu.
func (c *AuthClient) emit(t model.SessionEventType) {
	c.seq++
	c.broadcast = c.seq
	ev := model.SessionEvent{Type: t, Session: c.session, Seq: c.seq}
	for _, l := range c.listeners {
		select {
		case l.ch <- ev:
		case <-l.done:
		}
	}
}

// Initialize restores the session behind accessToken (if any) and emits
// INITIAL_SESSION. Only the first call has an effect. A token that no
// longer maps to a live session settles as signed out.
func (c *AuthClient) Initialize(ctx context.Context, accessToken string) error {
	c.mu.Lock()
	if c.initialized || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var sess *model.Session
	var restoreErr error
	if accessToken != "" {
		res, err := c.backend.Restore(ctx, accessToken)
		switch {
		case err == nil:
			sess = res.Session
		case isStaleSession(err):
			c.log.Debug().Err(err).Msg("Stored session is no longer valid")
		default:
			restoreErr = err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized || c.closed {
		return restoreErr
	}
	c.initialized = true
	c.setSession(sess)
	c.emit(model.EventInitialSession)
	return restoreErr
}

// Restore adopts the session behind accessToken. Before initialization it
// behaves like Initialize; afterwards it emits SIGNED_IN.
func (c *AuthClient) Restore(ctx context.Context, accessToken string) (*AuthResult, error) {
	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()

	if !initialized {
		if err := c.Initialize(ctx, accessToken); err != nil {
			return nil, err
		}
		sess := c.Session()
		if sess == nil {
			return nil, ErrSessionNotFound
		}
		return &AuthResult{User: sess.User, Session: sess}, nil
	}

	res, err := c.backend.Restore(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	c.adopt(res.Session, model.EventSignedIn)
	return res, nil
}

// SignUp registers a new account and signs it in.
func (c *AuthClient) SignUp(ctx context.Context, email, password string, meta model.UserMetadata) (*AuthResult, error) {
	res, err := c.backend.Register(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}
	c.adopt(res.Session, model.EventSignedIn)
	return res, nil
}

// SignIn opens a session with email and password.
func (c *AuthClient) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	res, err := c.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.adopt(res.Session, model.EventSignedIn)
	return res, nil
}

// SignOut ends the current session. SIGNED_OUT is emitted once, whether
// the local call or the provider's notification gets there first.
func (c *AuthClient) SignOut(ctx context.Context) error {
	sess := c.Session()
	if sess == nil {
		c.mu.Lock()
		c.emit(model.EventSignedOut)
		c.mu.Unlock()
		return nil
	}

	if err := c.backend.Logout(ctx, sess.ID); err != nil {
		return err
	}
	c.clearIfCurrent(sess.ID)
	return nil
}

// RequestPasswordReset asks the provider to mail a reset link.
func (c *AuthClient) RequestPasswordReset(ctx context.Context, email, redirectURL string) error {
	return c.backend.RequestPasswordReset(ctx, email, redirectURL)
}

// VerifyRecovery exchanges a reset-link token for a recovery session and
// emits PASSWORD_RECOVERY.
func (c *AuthClient) VerifyRecovery(ctx context.Context, token string) (*AuthResult, error) {
	res, err := c.backend.VerifyRecovery(ctx, token)
	if err != nil {
		return nil, err
	}
	c.adopt(res.Session, model.EventPasswordRecovery)
	return res, nil
}

// UpdateCredential changes the password of the signed-in user.
func (c *AuthClient) UpdateCredential(ctx context.Context, newPassword string) error {
	sess := c.Session()
	if sess == nil {
		return ErrNoSession
	}

	user, err := c.backend.UpdatePassword(ctx, sess.ID, newPassword)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.ID == sess.ID {
		updated := *c.session
		updated.User = user
		c.session = &updated
		c.emit(model.EventUserUpdated)
	}
	return nil
}

// Refresh rotates the current session's tokens.
func (c *AuthClient) Refresh(ctx context.Context) (*AuthResult, error) {
	sess := c.Session()
	if sess == nil || sess.RefreshToken == "" {
		return nil, ErrNoSession
	}

	res, err := c.backend.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		return nil, err
	}
	c.adopt(res.Session, model.EventTokenRefreshed)
	return res, nil
}

// LastEventSeq returns the sequence number of the latest event sent to
// every listener. INITIAL_SESSION replayed to a late subscriber does not
// count.
func (c *AuthClient) LastEventSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcast
}

// Session returns the current session or nil.
func (c *AuthClient) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Close stops watching the session and closes every listener channel.
func (c *AuthClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.setSession(nil)
	for id, l := range c.listeners {
		l.stop()
		close(l.ch)
		delete(c.listeners, id)
	}
}

func (c *AuthClient) adopt(sess *model.Session, t model.SessionEventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.initialized = true
	c.setSession(sess)
	c.emit(t)
}

func (c *AuthClient) clearIfCurrent(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.ID != sessionID {
		return
	}
	c.setSession(nil)
	c.emit(model.EventSignedOut)
}

// setSession swaps the current session and moves the remote watcher to
// it. Callers hold mu.
func (c *AuthClient) setSession(sess *model.Session) {
	if c.session != nil && sess != nil && c.session.ID == sess.ID {
		c.session = sess
		return
	}
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	c.session = sess
	if sess != nil && !c.closed && c.remoteWatch {
		c.stopWatch = c.watch(sess.ID)
	}
}

// watch follows provider-side events for sessionID so a sign-out made
// elsewhere (another tab, an admin revocation) reaches this client.
func (c *AuthClient) watch(sessionID string) func() {
	ctx, cancel := context.WithCancel(context.Background())
	events, stop := c.backend.WatchSession(ctx, sessionID)

	go func() {
		for ev := range events {
			if ev.Type == model.EventSignedOut {
				c.log.Debug().Str("session_id", sessionID).Msg("Session ended remotely")
				c.clearIfCurrent(sessionID)
			}
		}
	}()

	return func() {
		cancel()
		stop()
	}
}

func isStaleSession(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrTokenInvalid)
}
