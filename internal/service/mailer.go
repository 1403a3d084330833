package service

import (
	"context"
	"fmt"
	"time"

	"github.com/brototype/portal-backend/internal/config"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// NewMailer returns an SMTP mailer when a relay is configured and a
// LogMailer otherwise.
func NewMailer(cfg *config.Config, log zerolog.Logger) (Mailer, error) {
	if !cfg.SMTPEnabled() {
		log.Warn().Msg("SMTP_HOST not set, password reset links are only logged")
		return NewLogMailer(log), nil
	}
	return NewSMTPMailer(cfg, log)
}

// ─── SMTP ─────────────────────────────────────────────────────────────

const smtpTimeout = 15 * time.Second

const resetSubject = "Reset your Brototype portal password"

const resetBody = `Hi,

We received a request to reset the password for your Brototype portal account.
Open the link below to choose a new password:

%s

If you did not ask for this, you can ignore this email.
`

// SMTPMailer sends reset links through an SMTP relay. Each message opens
// its own connection.
type SMTPMailer struct {
	client *mail.Client
	from   string
	log    zerolog.Logger
}

// NewSMTPMailer creates a mailer for the relay described by cfg.
func NewSMTPMailer(cfg *config.Config, log zerolog.Logger) (*SMTPMailer, error) {
	policy, err := tlsPolicy(cfg.SMTPTLS)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithTLSPortPolicy(policy),
		mail.WithPort(cfg.SMTPPort),
		mail.WithTimeout(smtpTimeout),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPMailer{
		client: client,
		from:   cfg.SMTPFrom,
		log:    log.With().Str("component", "mailer").Logger(),
	}, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown SMTP_TLS value %q", name)
	}
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	msg, err := m.resetMessage(email, link)
	if err != nil {
		return err
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.log.Error().Err(err).Str("to", email).Msg("Password reset email failed")
		return fmt.Errorf("send reset email: %w", err)
	}

	m.log.Info().Str("to", email).Msg("Password reset email sent")
	return nil
}

func (m *SMTPMailer) resetMessage(email, link string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("reset email sender: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("reset email recipient: %w", err)
	}
	msg.Subject(resetSubject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(resetBody, link))
	return msg, nil
}

// ─── Log ──────────────────────────────────────────────────────────────

// LogMailer writes reset links to the debug log instead of sending mail.
// Used in development when no SMTP relay is configured.
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mailer").Logger()}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.log.Debug().
		Str("to", email).
		Str("link", link).
		Msg("Password reset email")
	return nil
}
