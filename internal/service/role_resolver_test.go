package service

import (
	"context"
	"testing"
	"time"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func adminLogin(email string) model.LoginRequest {
	return model.LoginRequest{Email: email, Password: "secret123"}
}

func TestRoleResolver_AdminLoginSucceeds(t *testing.T) {
	b := newFakeBackend()
	u := b.addUser("admin@example.com", "secret123", model.RoleAdmin)
	roles := &mockRoles{}
	roles.On("GetRole", mock.Anything, u.ID).Return(model.RoleAdmin, nil)

	client, m := newStartedClient(b)
	defer m.Close()
	resolver := NewRoleResolver(client, roles, testLog, WithSessionTerminator(m))

	res, err := resolver.AdminLogin(context.Background(), adminLogin("admin@example.com"))
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	assert.Equal(t, 0, b.callCount("Logout"))
	assert.Equal(t, 1, b.liveSessions())
	roles.AssertExpectations(t)
}

func TestRoleResolver_NonAdminIsSignedOut(t *testing.T) {
	tests := []struct {
		name string
		role model.Role
		err  error
	}{
		{"student role", model.RoleStudent, nil},
		{"unknown role", model.Role("mentor"), nil},
		{"missing profile", "", repository.ErrProfileNotFound},
		{"role lookup error", "", errUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			u := b.addUser("amal@example.com", "secret123", model.RoleAdmin)
			roles := &mockRoles{}
			roles.On("GetRole", mock.Anything, u.ID).Return(tt.role, tt.err)

			client, m := newStartedClient(b)
			defer m.Close()
			resolver := NewRoleResolver(client, roles, testLog, WithSessionTerminator(m))

			res, err := resolver.AdminLogin(context.Background(), adminLogin("amal@example.com"))
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrNotAuthorized)

			// Signed out before AdminLogin returned.
			assert.Nil(t, m.Current().User)
			assert.Nil(t, client.Session())
			assert.Equal(t, 1, b.callCount("Logout"))
			assert.Equal(t, 0, b.liveSessions())
		})
	}
}

// studentRoles answers every lookup with student and no latency.
type studentRoles struct{}

func (studentRoles) GetRole(context.Context, uuid.UUID) (model.Role, error) {
	return model.RoleStudent, nil
}

func TestRoleResolver_RefusedAdminNeverVisibleAfterReturn(t *testing.T) {
	b := newFakeBackend()
	b.addUser("amal@example.com", "secret123", "")

	client, m := newStartedClient(b)
	defer m.Close()
	resolver := NewRoleResolver(client, studentRoles{}, testLog, WithSessionTerminator(m))

	for i := 0; i < 1000; i++ {
		_, err := resolver.AdminLogin(context.Background(), adminLogin("amal@example.com"))
		require.ErrorIs(t, err, ErrNotAuthorized)
		require.Nil(t, m.Current().User, "iteration %d", i)
	}

	// nothing queued behind the consumer flips it back
	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, m.Current().User)
	assert.Equal(t, 0, b.liveSessions())
}

func TestRoleResolver_CompensationFailureStillNotAuthorized(t *testing.T) {
	b := newFakeBackend()
	u := b.addUser("amal@example.com", "secret123", "")
	roles := &mockRoles{}
	roles.On("GetRole", mock.Anything, u.ID).Return(model.RoleStudent, nil)
	term := &mockTerminator{}
	term.On("SignOut", mock.Anything).Return(errUnavailable).Once()

	resolver := NewRoleResolver(NewAuthClient(b, testLog), roles, testLog, WithSessionTerminator(term))

	_, err := resolver.AdminLogin(context.Background(), adminLogin("amal@example.com"))
	assert.ErrorIs(t, err, ErrNotAuthorized)
	term.AssertExpectations(t)
}

func TestRoleResolver_CompensationSurvivesCancelledContext(t *testing.T) {
	b := newFakeBackend()
	u := b.addUser("amal@example.com", "secret123", "")
	ctx, cancel := context.WithCancel(context.Background())
	roles := &mockRoles{}
	roles.On("GetRole", mock.Anything, u.ID).Run(func(mock.Arguments) { cancel() }).Return(model.RoleStudent, nil)
	term := &mockTerminator{}
	term.On("SignOut", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })).Return(nil).Once()

	resolver := NewRoleResolver(NewAuthClient(b, testLog), roles, testLog, WithSessionTerminator(term))
	_, err := resolver.AdminLogin(ctx, adminLogin("amal@example.com"))
	assert.ErrorIs(t, err, ErrNotAuthorized)
	term.AssertExpectations(t)
}

func TestRoleResolver_BadCredentials(t *testing.T) {
	b := newFakeBackend()
	b.addUser("admin@example.com", "secret123", model.RoleAdmin)
	roles := &mockRoles{}
	resolver := NewRoleResolver(NewAuthClient(b, testLog), roles, testLog)

	_, err := resolver.AdminLogin(context.Background(), model.LoginRequest{Email: "admin@example.com", Password: "wrong-one"})
	assert.ErrorIs(t, err, ErrCredential)
	roles.AssertNotCalled(t, "GetRole", mock.Anything, mock.Anything)
	assert.Equal(t, 0, b.callCount("Logout"))
}

func TestRoleResolver_ProviderDown(t *testing.T) {
	b := newFakeBackend()
	b.loginErr = errUnavailable
	resolver := NewRoleResolver(NewAuthClient(b, testLog), &mockRoles{}, testLog)

	_, err := resolver.StudentLogin(context.Background(), adminLogin("amal@example.com"))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestRoleResolver_ValidationNeverCallsProvider(t *testing.T) {
	b := newFakeBackend()
	resolver := NewRoleResolver(NewAuthClient(b, testLog), &mockRoles{}, testLog)

	_, err := resolver.StudentLogin(context.Background(), model.LoginRequest{Email: "amal@example.com"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = resolver.AdminLogin(context.Background(), model.LoginRequest{Password: "secret123"})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, b.callCount("Login"))
}

func TestRoleResolver_IsAdmin(t *testing.T) {
	admin := newFakeBackend().addUser("admin@example.com", "x", model.RoleAdmin)
	student := newFakeBackend().addUser("student@example.com", "x", "")
	ghost := newFakeBackend().addUser("ghost@example.com", "x", "")
	broken := newFakeBackend().addUser("broken@example.com", "x", "")

	roles := &mockRoles{}
	roles.On("GetRole", mock.Anything, admin.ID).Return(model.RoleAdmin, nil)
	roles.On("GetRole", mock.Anything, student.ID).Return(model.RoleStudent, nil)
	roles.On("GetRole", mock.Anything, ghost.ID).Return(model.Role(""), repository.ErrProfileNotFound)
	roles.On("GetRole", mock.Anything, broken.ID).Return(model.Role(""), errUnavailable)

	resolver := NewRoleResolver(NewAuthClient(newFakeBackend(), testLog), roles, testLog)
	ctx := context.Background()

	ok, err := resolver.IsAdmin(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = resolver.IsAdmin(ctx, student.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = resolver.IsAdmin(ctx, ghost.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = resolver.IsAdmin(ctx, broken.ID)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestAdminGate_MatchesResolver(t *testing.T) {
	id := uuid.New()
	roles := &mockRoles{}
	roles.On("GetRole", mock.Anything, id).Return(model.RoleAdmin, nil).Once()
	roles.On("GetRole", mock.Anything, id).Return(model.RoleStudent, nil).Once()

	gate := NewAdminGate(roles)

	ok, err := gate.IsAdmin(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	// role changes take effect on the next check
	ok, err = gate.IsAdmin(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
	roles.AssertExpectations(t)
}
