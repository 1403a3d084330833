package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SITE_URL", "")
	t.Setenv("JWT_EXPIRY_MINUTES", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "http://localhost:5173", cfg.SiteURL)
	assert.Nil(t, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.PasscodeRetryAttempts)
}

func TestLoadSMTP(t *testing.T) {
	t.Setenv("SMTP_HOST", "")
	assert.False(t, Load().SMTPEnabled())

	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_TLS", "None")

	cfg := Load()
	assert.True(t, cfg.SMTPEnabled())
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Equal(t, "none", cfg.SMTPTLS)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SITE_URL", "https://portal.example.com/")
	t.Setenv("JWT_EXPIRY_MINUTES", "15")
	t.Setenv("BCRYPT_COST", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "https://portal.example.com/auth?reset=true", cfg.ResetRedirectURL())
}
