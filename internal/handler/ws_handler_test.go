package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSession(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	h := NewWSHandler(f.deps, testLog, nil)
	r := gin.New()
	r.GET("/ws/v1/session", h.SessionSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

// readEvent skips messages until one with the given event arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) map[string]interface{} {
	t.Helper()
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["event"] == event {
			return msg
		}
	}
}

func TestSessionSocket_InitialStateIsSettledSignedOut(t *testing.T) {
	f := newFixture(t)
	conn := dialSession(t, f)

	state := readEvent(t, conn, "state")
	assert.Equal(t, true, state["settled"])
	assert.Nil(t, state["user"])
	assert.Equal(t, "idle", state["reset_state"])
}

func TestSessionSocket_PingAndUnknownAction(t *testing.T) {
	f := newFixture(t)
	conn := dialSession(t, f)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	readEvent(t, conn, "pong")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "teleport", "request_id": "x1"}))
	errMsg := readEvent(t, conn, "error")
	assert.Equal(t, "INVALID_PAYLOAD", errMsg["code"])
	assert.Equal(t, "x1", errMsg["request_id"])
}

func TestSessionSocket_LoginPushesSignedInState(t *testing.T) {
	f := newFixture(t)
	f.expectByEmail()
	conn := dialSession(t, f)
	readEvent(t, conn, "state")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"action":     "login",
		"request_id": "r1",
		"email":      "amal@example.com",
		"password":   "secret123",
	}))

	result := readEvent(t, conn, "result")
	assert.Equal(t, "r1", result["request_id"])
	assert.Equal(t, "/dashboard", result["redirect"])

	// state converges on the signed-in user; the read deadline bounds the wait
	for {
		state := readEvent(t, conn, "state")
		if user, ok := state["user"].(map[string]interface{}); ok {
			assert.Equal(t, "amal@example.com", user["email"])
			assert.Equal(t, "student", state["role"])
			break
		}
	}
}

func TestSessionSocket_UpdatePasswordOutsideResetMode(t *testing.T) {
	f := newFixture(t)
	conn := dialSession(t, f)
	readEvent(t, conn, "state")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"action":           "update_password",
		"new_password":     "abc",
		"confirm_password": "abc",
	}))

	errMsg := readEvent(t, conn, "error")
	assert.Equal(t, "update_password", errMsg["action"])
	assert.Equal(t, "INVALID_STATE", errMsg["code"])
}
