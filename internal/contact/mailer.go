package contact

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/zalando/go-keyring"
)

// KeyringService is the keyring service holding the SMTP password.
const KeyringService = "reelserver"

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// SMTPConfig holds the outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       string
}

// Sender returns the envelope sender, falling back to the SMTP user.
func (c SMTPConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.User
}

// Recipient returns the owner address, falling back to the sender.
func (c SMTPConfig) Recipient() string {
	if c.To != "" {
		return c.To
	}
	return c.Sender()
}

// ResolvePassword fills an empty Password from the OS keyring. A missing
// keyring entry is not an error; the relay then sends unauthenticated.
func (c *SMTPConfig) ResolvePassword() error {
	if c.Password != "" || c.User == "" {
		return nil
	}
	secret, err := keyring.Get(KeyringService, c.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read smtp password from keyring: %w", err)
	}
	c.Password = secret
	return nil
}

// StorePassword saves the SMTP password for user in the OS keyring.
func StorePassword(user, password string) error {
	if err := keyring.Set(KeyringService, user, password); err != nil {
		return fmt.Errorf("store smtp password in keyring: %w", err)
	}
	return nil
}

// NewMailer returns an SMTPMailer, or a LogMailer when no host is configured.
func NewMailer(cfg SMTPConfig, logger *slog.Logger) Mailer {
	if cfg.Host == "" {
		logger.Warn("smtp host not configured, contact messages will only be logged")
		return NewLogMailer(logger)
	}
	return &SMTPMailer{config: cfg, logger: logger}
}

// SMTPMailer sends mail through an SMTP server, upgrading to TLS when the
// server offers STARTTLS.
type SMTPMailer struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{config: cfg, logger: logger}
}

// Send delivers m. The context bounds the whole SMTP conversation.
func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.config.Password != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(m.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(m.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	data, err := m.Bytes(time.Now())
	if err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	s.logger.Debug("sent email", "to", m.To, "subject", m.Subject)
	return c.Quit()
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs m at info level.
func (l *LogMailer) Send(_ context.Context, m Message) error {
	l.logger.Info("contact message",
		"from", m.From,
		"to", m.To,
		"reply_to", m.ReplyTo,
		"subject", m.Subject,
		"body", m.Text)
	return nil
}
