package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signupRequest(email, code string) model.StudentSignupRequest {
	return model.StudentSignupRequest{
		FullName: "Amal Krishna",
		Email:    email,
		Password: "secret123",
		Passcode: code,
	}
}

func TestSignupGuard_Success(t *testing.T) {
	b := newFakeBackend()
	passcodes := newMemPasscodes("BRO-AAAA-BBBB")
	client := NewAuthClient(b, testLog)
	guard := NewSignupGuard(client, passcodes, testLog)

	res, err := guard.Signup(context.Background(), signupRequest("amal@example.com", "BRO-AAAA-BBBB"))
	require.NoError(t, err)

	assert.True(t, res.Complete())
	assert.Equal(t, model.RoleStudent, res.User.Metadata.Role)
	assert.Equal(t, "Amal Krishna", res.User.Metadata.FullName)
	require.NotNil(t, passcodes.usedBy("BRO-AAAA-BBBB"))
	assert.Equal(t, res.User.ID, *passcodes.usedBy("BRO-AAAA-BBBB"))
	assert.NotNil(t, client.Session())
}

func TestSignupGuard_InvalidPasscodeNeverSignsUp(t *testing.T) {
	tests := []struct {
		name      string
		passcodes *memPasscodes
		code      string
	}{
		{"unknown code", newMemPasscodes("BRO-AAAA-BBBB"), "BRO-ZZZZ-ZZZZ"},
		{"used code", func() *memPasscodes {
			m := newMemPasscodes("BRO-AAAA-BBBB")
			_ = m.Consume(context.Background(), "BRO-AAAA-BBBB", uuid.New())
			return m
		}(), "BRO-AAAA-BBBB"},
		{"lookup error", func() *memPasscodes {
			m := newMemPasscodes("BRO-AAAA-BBBB")
			m.validErr = errUnavailable
			return m
		}(), "BRO-AAAA-BBBB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			guard := NewSignupGuard(NewAuthClient(b, testLog), tt.passcodes, testLog)

			res, err := guard.Signup(context.Background(), signupRequest("amal@example.com", tt.code))
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrInvalidPasscode)
			assert.Equal(t, 0, b.callCount("Register"))
		})
	}
}

func TestSignupGuard_ValidationBeforeAnyCall(t *testing.T) {
	b := newFakeBackend()
	passcodes := newMemPasscodes("BRO-AAAA-BBBB")
	guard := NewSignupGuard(NewAuthClient(b, testLog), passcodes, testLog)

	req := signupRequest("", "BRO-AAAA-BBBB")
	_, err := guard.Signup(context.Background(), req)

	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindValidation, authErr.Kind)
	assert.Contains(t, authErr.Fields, "email")
	assert.Equal(t, 0, b.callCount("Register"))
	assert.Equal(t, 0, passcodes.consumes)
}

func TestSignupGuard_RejectedSignupKeepsPasscode(t *testing.T) {
	b := newFakeBackend()
	b.addUser("taken@example.com", "secret123", model.RoleStudent)
	passcodes := newMemPasscodes("BRO-AAAA-BBBB")
	guard := NewSignupGuard(NewAuthClient(b, testLog), passcodes, testLog)

	_, err := guard.Signup(context.Background(), signupRequest("taken@example.com", "BRO-AAAA-BBBB"))
	require.ErrorIs(t, err, ErrSignupRejected)
	assert.Contains(t, err.Error(), ErrEmailTaken.Error())
	assert.Nil(t, passcodes.usedBy("BRO-AAAA-BBBB"))
	assert.Equal(t, 0, passcodes.consumes)

	// Retrying with a corrected email and the same code succeeds.
	res, err := guard.Signup(context.Background(), signupRequest("fresh@example.com", "BRO-AAAA-BBBB"))
	require.NoError(t, err)
	assert.True(t, res.Complete())
}

func TestSignupGuard_ConsumeFailureStillSucceeds(t *testing.T) {
	b := newFakeBackend()
	passcodes := newMemPasscodes("BRO-AAAA-BBBB")
	passcodes.consumeErr = errUnavailable

	var hookCode string
	var hookUser uuid.UUID
	guard := NewSignupGuard(NewAuthClient(b, testLog), passcodes, testLog,
		WithConsumeFailureHook(func(_ context.Context, code string, userID uuid.UUID, err error) {
			hookCode = code
			hookUser = userID
			assert.True(t, errors.Is(err, errUnavailable))
		}),
	)

	res, err := guard.Signup(context.Background(), signupRequest("amal@example.com", "BRO-AAAA-BBBB"))
	require.NoError(t, err)

	assert.True(t, res.Account.Done)
	assert.False(t, res.Passcode.Done)
	assert.ErrorIs(t, res.Passcode.Err, errUnavailable)
	assert.False(t, res.Complete())
	assert.Equal(t, "BRO-AAAA-BBBB", hookCode)
	assert.Equal(t, res.User.ID, hookUser)

	// The account stays usable.
	login := NewRoleResolver(NewAuthClient(b, testLog), &mockRoles{}, testLog)
	_, err = login.StudentLogin(context.Background(), model.LoginRequest{Email: "amal@example.com", Password: "secret123"})
	assert.NoError(t, err)
}

func TestSignupGuard_ConcurrentSignupsConsumeOnce(t *testing.T) {
	b := newFakeBackend()
	passcodes := newMemPasscodes("BRO-AAAA-BBBB")

	// Both attempts pass validation before either consumes.
	gate := &gatedPasscodes{memPasscodes: passcodes, ready: make(chan struct{})}
	var wg sync.WaitGroup
	results := make([]*SignupResult, 2)
	errs := make([]error, 2)

	for i, email := range []string{"one@example.com", "two@example.com"} {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			guard := NewSignupGuard(NewAuthClient(b, testLog), gate, testLog)
			results[i], errs[i] = guard.Signup(context.Background(), signupRequest(email, "BRO-AAAA-BBBB"))
		}(i, email)
	}
	wg.Wait()

	consumed := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Account.Done)
		if results[i].Passcode.Done {
			consumed++
		}
	}
	assert.Equal(t, 1, consumed)
	assert.Equal(t, 2, passcodes.consumes)
}

// gatedPasscodes holds IsValid until two callers have passed it.
type gatedPasscodes struct {
	*memPasscodes
	mu     sync.Mutex
	passed int
	ready  chan struct{}
}

func (g *gatedPasscodes) IsValid(ctx context.Context, code string) (bool, error) {
	ok, err := g.memPasscodes.IsValid(ctx, code)
	g.mu.Lock()
	g.passed++
	if g.passed == 2 {
		close(g.ready)
	}
	g.mu.Unlock()
	<-g.ready
	return ok, err
}
