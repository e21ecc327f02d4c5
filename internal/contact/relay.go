package contact

import (
	"context"
	"fmt"
	"log/slog"
)

// Relay turns form submissions into messages for the site owner.
type Relay struct {
	mailer Mailer
	config SMTPConfig
	logger *slog.Logger
}

// NewRelay creates a Relay that sends through mailer.
func NewRelay(mailer Mailer, cfg SMTPConfig, logger *slog.Logger) *Relay {
	return &Relay{mailer: mailer, config: cfg, logger: logger}
}

// Submit validates f and sends it. Validation failures are returned as
// *ValidationError; anything else is a delivery failure.
func (r *Relay) Submit(ctx context.Context, f Form) error {
	if err := f.Validate(); err != nil {
		return err
	}

	msg, err := NewMessage(f, r.config.Sender(), r.config.Recipient())
	if err != nil {
		return err
	}

	if err := r.mailer.Send(ctx, msg); err != nil {
		r.logger.Error("contact form error", "error", err)
		return fmt.Errorf("send contact message: %w", err)
	}

	r.logger.Info("contact message relayed", "reply_to", f.Email)
	return nil
}

// SendTest sends the configuration check message to the owner and returns
// the masked SMTP user.
func (r *Relay) SendTest(ctx context.Context) (string, error) {
	if err := r.mailer.Send(ctx, TestMessage(r.config.Sender(), r.config.Recipient())); err != nil {
		r.logger.Error("test email error", "error", err)
		return "", fmt.Errorf("send test message: %w", err)
	}
	return MaskUser(r.config.User), nil
}
