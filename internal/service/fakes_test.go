package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

var testLog = zerolog.New(io.Discard)

// fakeBackend is an in-memory identity provider backend.
type fakeBackend struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount
	sessions map[string]uuid.UUID
	watchers map[string]chan model.SessionEvent
	recovery map[string]uuid.UUID
	calls    map[string]int

	registerErr error
	loginErr    error
	logoutErr   error
	resetErr    error
	updateErr   error
}

type fakeAccount struct {
	user     *model.User
	password string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts: make(map[string]*fakeAccount),
		sessions: make(map[string]uuid.UUID),
		watchers: make(map[string]chan model.SessionEvent),
		recovery: make(map[string]uuid.UUID),
		calls:    make(map[string]int),
	}
}

func (b *fakeBackend) addUser(email, password string, role model.Role) *model.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := &model.User{ID: uuid.New(), Email: email, Metadata: model.UserMetadata{Role: role}}
	b.accounts[email] = &fakeAccount{user: u, password: password}
	return u
}

func (b *fakeBackend) callCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *fakeBackend) liveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// newSession is called with mu held.
func (b *fakeBackend) newSession(u *model.User, recovery bool) *AuthResult {
	sid := uuid.NewString()
	b.sessions[sid] = u.ID
	now := time.Now()
	return &AuthResult{User: u, Session: &model.Session{
		ID:           sid,
		UserID:       u.ID,
		Email:        u.Email,
		AccessToken:  "access-" + sid,
		RefreshToken: "refresh-" + sid,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
		Recovery:     recovery,
		User:         u,
	}}
}

func (b *fakeBackend) userByID(id uuid.UUID) *model.User {
	for _, a := range b.accounts {
		if a.user.ID == id {
			return a.user
		}
	}
	return nil
}

func (b *fakeBackend) Register(_ context.Context, email, password string, meta model.UserMetadata) (*AuthResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["Register"]++
	if b.registerErr != nil {
		return nil, b.registerErr
	}
	if _, ok := b.accounts[email]; ok {
		return nil, ErrEmailTaken
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	u := &model.User{ID: uuid.New(), Email: email, FullName: meta.FullName, Metadata: meta}
	b.accounts[email] = &fakeAccount{user: u, password: password}
	return b.newSession(u, false), nil
}

func (b *fakeBackend) Login(_ context.Context, email, password string) (*AuthResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["Login"]++
	if b.loginErr != nil {
		return nil, b.loginErr
	}
	a, ok := b.accounts[email]
	if !ok || a.password != password {
		return nil, ErrInvalidCredentials
	}
	return b.newSession(a.user, false), nil
}

func (b *fakeBackend) Logout(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["Logout"]++
	if b.logoutErr != nil {
		return b.logoutErr
	}
	delete(b.sessions, sessionID)
	return nil
}

func (b *fakeBackend) Restore(_ context.Context, accessToken string) (*AuthResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sid, uid := range b.sessions {
		if "access-"+sid == accessToken {
			u := b.userByID(uid)
			return &AuthResult{User: u, Session: &model.Session{ID: sid, UserID: uid, AccessToken: accessToken, User: u}}, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (b *fakeBackend) Refresh(_ context.Context, refreshToken string) (*AuthResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sid, uid := range b.sessions {
		if "refresh-"+sid == refreshToken {
			u := b.userByID(uid)
			res := &AuthResult{User: u, Session: &model.Session{
				ID: sid, UserID: uid, AccessToken: "access2-" + sid, RefreshToken: "refresh2-" + sid, User: u,
			}}
			return res, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (b *fakeBackend) RequestPasswordReset(_ context.Context, email, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["RequestPasswordReset"]++
	if b.resetErr != nil {
		return b.resetErr
	}
	if a, ok := b.accounts[email]; ok {
		b.recovery["token-"+email] = a.user.ID
	}
	return nil
}

func (b *fakeBackend) VerifyRecovery(_ context.Context, token string) (*AuthResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	uid, ok := b.recovery[token]
	if !ok {
		return nil, ErrInvalidRecoveryToken
	}
	delete(b.recovery, token)
	return b.newSession(b.userByID(uid), true), nil
}

func (b *fakeBackend) UpdatePassword(_ context.Context, sessionID, newPassword string) (*model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["UpdatePassword"]++
	if b.updateErr != nil {
		return nil, b.updateErr
	}
	uid, ok := b.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	u := b.userByID(uid)
	b.accounts[u.Email].password = newPassword
	return u, nil
}

func (b *fakeBackend) WatchSession(_ context.Context, sessionID string) (<-chan model.SessionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan model.SessionEvent, 1)
	b.watchers[sessionID] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.watchers[sessionID] == ch {
				delete(b.watchers, sessionID)
			}
			close(ch)
		})
	}
}

// endRemotely signs a session out as if from another device.
func (b *fakeBackend) endRemotely(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
	if ch, ok := b.watchers[sessionID]; ok {
		ch <- model.SessionEvent{Type: model.EventSignedOut}
	}
}

// memPasscodes is an in-memory passcode store with an atomic consume.
type memPasscodes struct {
	mu    sync.Mutex
	codes map[string]*uuid.UUID

	consumeErr error
	validErr   error
	consumes   int
}

func newMemPasscodes(codes ...string) *memPasscodes {
	m := &memPasscodes{codes: make(map[string]*uuid.UUID)}
	for _, c := range codes {
		m.codes[c] = nil
	}
	return m
}

func (m *memPasscodes) IsValid(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.validErr != nil {
		return false, m.validErr
	}
	usedBy, ok := m.codes[code]
	return ok && usedBy == nil, nil
}

func (m *memPasscodes) Consume(_ context.Context, code string, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumes++
	if m.consumeErr != nil {
		return m.consumeErr
	}
	usedBy, ok := m.codes[code]
	if !ok || usedBy != nil {
		return repository.ErrPasscodeUsed
	}
	m.codes[code] = &userID
	return nil
}

func (m *memPasscodes) usedBy(code string) *uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[code]
}

// mockRoles is a testify mock of RoleStore.
type mockRoles struct {
	mock.Mock
}

func (m *mockRoles) GetRole(ctx context.Context, userID uuid.UUID) (model.Role, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.Role), args.Error(1)
}

// mockTerminator is a testify mock of SessionTerminator.
type mockTerminator struct {
	mock.Mock
}

func (m *mockTerminator) SignOut(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var errUnavailable = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// newStartedClient returns an initialized client with a running manager.
func newStartedClient(b *fakeBackend) (*AuthClient, *SessionManager) {
	client := NewAuthClient(b, testLog)
	manager := NewSessionManager(client, testLog)
	manager.Start(context.Background())
	_ = client.Initialize(context.Background(), "")
	return client, manager
}
