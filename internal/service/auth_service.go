package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/brototype/portal-backend/internal/config"
	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Identity provider errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailTaken           = errors.New("an account with this email already exists")
	ErrInvalidEmail         = errors.New("email address is invalid")
	ErrWeakPassword         = errors.New("password must be at least 6 characters")
	ErrSessionNotFound      = errors.New("session not found or expired")
	ErrInvalidRecoveryToken = errors.New("reset link is invalid or has expired")
	ErrNoSession            = errors.New("no active session")
	ErrTokenInvalid         = errors.New("token is invalid or expired")
)

// MinPasswordLength is enforced on signup and password updates.
const MinPasswordLength = 6

// Claims extends JWT standard claims with the session binding.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	Recovery  bool   `json:"recovery,omitempty"`
}

// UserID parses the subject as a user ID.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// sessionRecord is the Redis representation of a live session.
type sessionRecord struct {
	ID          string    `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Recovery    bool      `json:"recovery"`
	RefreshHash string    `json:"refresh_hash"`
}

// AuthService is the identity provider backend: credentials, JWT access
// tokens, Redis-held sessions, recovery tokens and session-change
// notifications.
type AuthService struct {
	cfg    *config.Config
	rdb    *redis.Client
	users  *repository.UserRepository
	mailer Mailer
	log    zerolog.Logger
	now    func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, users *repository.UserRepository, mailer Mailer, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:    cfg,
		rdb:    rdb,
		users:  users,
		mailer: mailer,
		log:    log.With().Str("component", "auth_service").Logger(),
		now:    time.Now,
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a student profile and signs them in.
func (s *AuthService) Register(ctx context.Context, email, password string, meta model.UserMetadata) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     strings.TrimSpace(meta.FullName),
		PasswordHash: hash,
		Metadata:     meta,
	}
	if err := s.users.CreateWithProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.issueSession(ctx, u, false)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", u.ID.String()).Msg("User registered")
	return &AuthResult{User: u, Session: sess}, nil
}

// Login verifies email + password and opens a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := s.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}

	sess, err := s.issueSession(ctx, u, false)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Session: sess}, nil
}

// Restore rebuilds the session behind a still-valid access token.
func (s *AuthService) Restore(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	rec, err := s.loadRecord(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	return &AuthResult{User: u, Session: &model.Session{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Email:       rec.Email,
		AccessToken: accessToken,
		TokenType:   "bearer",
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
		Recovery:    rec.Recovery,
		User:        u,
	}}, nil
}

// Logout ends a session and notifies its watchers. Unknown sessions are
// treated as already ended.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	rec, err := s.loadRecord(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, config.CacheKey.SessionKey(sessionID))
	pipe.Del(ctx, config.CacheKey.RefreshTokenKey(rec.RefreshHash))
	pipe.SRem(ctx, config.CacheKey.UserSessionsKey(rec.UserID.String()), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	payload, _ := json.Marshal(model.SessionEvent{Type: model.EventSignedOut})
	if err := s.rdb.Publish(ctx, config.CacheKey.SessionEventsChannel(sessionID), payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to publish sign-out")
	}
	return nil
}

// Refresh rotates the tokens of the session that owns refreshToken.
// Each refresh token is accepted once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	oldHash := hashToken(refreshToken)
	sid, err := s.rdb.GetDel(ctx, config.CacheKey.RefreshTokenKey(oldHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	rec, err := s.loadRecord(ctx, sid)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	sess, err := s.storeSession(ctx, u, sid, rec.Recovery)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Session: sess}, nil
}

// RequestPasswordReset mails a recovery link to the account owner.
// Unknown emails succeed silently so the endpoint cannot enumerate users.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, redirectURL string) error {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.log.Debug().Msg("Password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	token, err := newOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate recovery token: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.RecoveryTokenKey(hashToken(token)), u.ID.String(), s.cfg.RecoveryTTL).Err(); err != nil {
		return fmt.Errorf("store recovery token: %w", err)
	}

	link, err := recoveryLink(redirectURL, token)
	if err != nil {
		return err
	}
	return s.mailer.SendPasswordReset(ctx, u.Email, link)
}

// VerifyRecovery exchanges a one-time recovery token for a recovery session.
func (s *AuthService) VerifyRecovery(ctx context.Context, token string) (*AuthResult, error) {
	uid, err := s.rdb.GetDel(ctx, config.CacheKey.RecoveryTokenKey(hashToken(token))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidRecoveryToken
		}
		return nil, fmt.Errorf("lookup recovery token: %w", err)
	}

	userID, err := uuid.Parse(uid)
	if err != nil {
		return nil, ErrInvalidRecoveryToken
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	sess, err := s.issueSession(ctx, u, true)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Session: sess}, nil
}

// UpdatePassword sets a new password for the owner of a live session.
func (s *AuthService) UpdatePassword(ctx context.Context, sessionID, newPassword string) (*model.User, error) {
	rec, err := s.loadRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(newPassword) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, rec.UserID, hash); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	s.log.Info().Str("user_id", rec.UserID.String()).Msg("Password updated")
	return s.users.GetByID(ctx, rec.UserID)
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Authenticate validates an access token and checks its session is live.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.ValidateToken(accessToken)
	if err != nil {
		return nil, err
	}
	rec, err := s.loadRecord(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if rec.UserID.String() != claims.Subject {
		return nil, ErrSessionNotFound
	}
	return claims, nil
}

// WatchSession streams session-change events published for sessionID.
// The stop function closes the subscription; the channel closes after it.
func (s *AuthService) WatchSession(ctx context.Context, sessionID string) (<-chan model.SessionEvent, func()) {
	pubsub := s.rdb.Subscribe(ctx, config.CacheKey.SessionEventsChannel(sessionID))
	out := make(chan model.SessionEvent, 4)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev model.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Error().Err(err).Msg("Malformed session event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }
}

func (s *AuthService) issueSession(ctx context.Context, u *model.User, recovery bool) (*model.Session, error) {
	return s.storeSession(ctx, u, uuid.NewString(), recovery)
}

// storeSession signs fresh tokens for sid and (re)writes its Redis record.
func (s *AuthService) storeSession(ctx context.Context, u *model.User, sid string, recovery bool) (*model.Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.JWTExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sid,
		Email:     u.Email,
		Recovery:  recovery,
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	rec := sessionRecord{
		ID:          sid,
		UserID:      u.ID,
		Email:       u.Email,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.cfg.RefreshExpiry),
		Recovery:    recovery,
		RefreshHash: hashToken(refresh),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	userSessions := config.CacheKey.UserSessionsKey(u.ID.String())
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.SessionKey(sid), data, s.cfg.RefreshExpiry)
	pipe.Set(ctx, config.CacheKey.RefreshTokenKey(rec.RefreshHash), sid, s.cfg.RefreshExpiry)
	pipe.SAdd(ctx, userSessions, sid)
	pipe.Expire(ctx, userSessions, s.cfg.RefreshExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &model.Session{
		ID:           sid,
		UserID:       u.ID,
		Email:        u.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		Recovery:     recovery,
		User:         u,
	}, nil
}

func (s *AuthService) loadRecord(ctx context.Context, sessionID string) (*sessionRecord, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.SessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func recoveryLink(redirectURL, token string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
