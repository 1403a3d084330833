package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brototype/portal-backend/internal/middleware"
	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/service"
	ws "github.com/brototype/portal-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// actionTimeout bounds one submitted action. Actions are not tied to the
// connection: a client that disconnects mid-signup does not abort it.
const actionTimeout = 30 * time.Second

var errBadPayload = errors.New("malformed action payload")

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the session socket.
type WSHandler struct {
	deps     *AuthDeps
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(deps *AuthDeps, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		deps:     deps,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionSocket godoc
// WS /ws/v1/session
// Pushes session state and accepts auth actions. An access_token query
// parameter restores an existing session on connect.
func (h *WSHandler) SessionSocket(c *gin.Context) {
	accessToken := middleware.BearerToken(c)

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := h.newSocketSession(conn)
	defer s.close(cancel)

	s.manager.Start(ctx)
	go s.pushState(ctx)

	if err := s.client.Initialize(ctx, accessToken); err != nil {
		s.log.Warn().Err(err).Msg("Session restore failed")
	}

	s.log.Debug().Msg("Client connected")

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			break
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.writeError(env, errBadPayload)
			continue
		}
		s.dispatch(env, data)
	}
}

// socketSession is the auth state of one connection: its own identity
// client, session manager and flows.
type socketSession struct {
	conn    *ws.Conn
	log     zerolog.Logger
	client  *service.AuthClient
	manager *service.SessionManager
	signup  *service.SignupGuard
	roles   *service.RoleResolver
	reset   *service.PasswordResetFlow
	busy    service.BusyFlag
	wg      sync.WaitGroup
}

type actionFunc func(ctx context.Context, data []byte) (*ws.ResultResponse, error)

func (h *WSHandler) newSocketSession(conn *ws.Conn) *socketSession {
	log := h.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	client := h.deps.newClient()
	manager := service.NewSessionManager(client, log)

	return &socketSession{
		conn:    conn,
		log:     log,
		client:  client,
		manager: manager,
		signup:  h.deps.signupGuard(client),
		roles:   h.deps.roleResolver(client, service.WithSessionTerminator(manager)),
		reset:   h.deps.resetFlow(client),
	}
}

func (s *socketSession) actions() map[ws.Action]actionFunc {
	return map[ws.Action]actionFunc{
		ws.ActionRestore:        s.restore,
		ws.ActionLogin:          s.login,
		ws.ActionAdminLogin:     s.adminLogin,
		ws.ActionSignup:         s.signupAction,
		ws.ActionSignOut:        s.signOut,
		ws.ActionRefresh:        s.refresh,
		ws.ActionForgotPassword: s.forgotPassword,
		ws.ActionEnterReset:     s.enterReset,
		ws.ActionUpdatePassword: s.updatePassword,
		ws.ActionBackToLogin:    s.backToLogin,
	}
}

// dispatch runs one action in the background. A submission that arrives
// while another is in flight is rejected, never queued.
func (s *socketSession) dispatch(env ws.RequestEnvelope, data []byte) {
	if env.Action == ws.ActionPing {
		s.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return
	}

	fn, ok := s.actions()[env.Action]
	if !ok {
		s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		s.writeError(env, errBadPayload)
		return
	}

	release, err := s.busy.Acquire()
	if err != nil {
		s.writeError(env, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		res, err := fn(ctx, data)
		cancel()
		release()

		if err != nil {
			s.writeError(env, err)
		} else {
			res.Event = ws.EventResult
			res.Action = env.Action
			res.RequestID = env.RequestID
			s.conn.WriteTyped(res)
		}
		s.writeState()
	}()
}

func (s *socketSession) pushState(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.manager.Changes():
			s.writeState()
		}
	}
}

func (s *socketSession) writeState() {
	snap := s.manager.Current()
	s.conn.WriteTyped(ws.StateResponse{
		Event:      ws.EventState,
		User:       snap.User,
		Role:       snap.Role,
		Settled:    snap.Settled,
		ResetState: string(s.reset.State()),
		Busy:       s.busy.Busy(),
	})
}

func (s *socketSession) writeError(env ws.RequestEnvelope, err error) {
	ae := describeSocketError(err)
	s.conn.WriteError(env.Action, env.RequestID, string(ae.Code), ae.Message, ae.Fields)
}

// close waits for the in-flight action, then tears down the subscription.
func (s *socketSession) close(cancel context.CancelFunc) {
	cancel()
	s.wg.Wait()
	s.manager.Close()
	s.client.Close()
}

// ─── Actions ────────────────────────────────────────────────────────

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errBadPayload
	}
	return nil
}

func (s *socketSession) restore(ctx context.Context, data []byte) (*ws.ResultResponse, error) {
	var req ws.RestoreRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	res, err := s.client.Restore(ctx, req.AccessToken)
	if err != nil {
		return nil, service.ProviderError(err)
	}
	return &ws.ResultResponse{Session: res.Session}, nil
}

func (s *socketSession) login(ctx context.Context, data []byte) (*ws.ResultResponse, error) {
	var req ws.LoginRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	res, err := s.roles.StudentLogin(ctx, model.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		return nil, err
	}
	return &ws.ResultResponse{Session: res.Session, Redirect: service.DashboardRedirect, Message: "Logged in successfully!"}, nil
}

func (s *socketSession) adminLogin(ctx context.Context, data []byte) (*ws.ResultResponse, error) {
	var req ws.LoginRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	res, err := s.roles.AdminLogin(ctx, model.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		return nil, err
	}
	return &ws.ResultResponse{Session: res.Session, Redirect: service.DashboardRedirect, Message: "Admin logged in successfully!"}, nil
}

func (s *socketSession) signupAction(ctx context.Context, data []byte) (*ws.ResultResponse, error) {
	var req ws.SignupRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	res, err := s.signup.Signup(ctx, model.StudentSignupRequest{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Passcode: req.Passcode,
	})
	if err != nil {
		return nil, err
	}
	return &ws.ResultResponse{Session: res.Session, Redirect: service.DashboardRedirect, Message: "Account created successfully!"}, nil
}

func (s *socketSession) signOut(ctx context.Context, _ []byte) (*ws.ResultResponse, error) {
	if err := s.manager.SignOut(ctx); err != nil {
		return nil, err
	}
	return &ws.ResultResponse{Redirect: "/"}, nil
}

func (s *socketSession) refresh(ctx context.Context, _ []byte) (*ws.ResultResponse, error) {
	res, err := s.client.Refresh(ctx)
	if err != nil {
		return nil, service.ProviderError(err)
	}
	return &ws.ResultResponse{Session: res.Session}, nil
}

func (s *socketSession) forgotPassword(ctx context.Context, data []byte) (*ws.ResultResponse, error) {
	var req ws.ForgotPasswordRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := s.reset.RequestReset(ctx, req.Email); err != nil {
		return nil, err
	}
	return &ws.ResultResponse{Message: "Check your email for the password reset link."}, nil
}

func (s *socketSession) enterReset(ctx context.Context, data []byte) (*ws.ResultResponse, error) {
	var req ws.EnterResetRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	entered, err := s.reset.EnterFromURL(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if !entered {
		return nil, service.ErrInvalidResetState
	}
	return &ws.ResultResponse{Session: s.client.Session()}, nil
}

func (s *socketSession) updatePassword(ctx context.Context, data []byte) (*ws.ResultResponse, error) {
	var req ws.UpdatePasswordRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	redirect, err := s.reset.UpdatePassword(ctx, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		return nil, err
	}
	return &ws.ResultResponse{Redirect: redirect, Message: "Password updated successfully!"}, nil
}

func (s *socketSession) backToLogin(_ context.Context, _ []byte) (*ws.ResultResponse, error) {
	s.reset.BackToLogin()
	return &ws.ResultResponse{}, nil
}
