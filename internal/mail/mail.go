// Package mail wraps SMTP delivery for job modules.
package mail

import (
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/opcron/opcron/internal/config"
)

// Sender delivers messages through the configured SMTP server.
type Sender struct {
	cfg config.SMTP
}

// NewSender creates a sender. Delivery fails until an SMTP host is configured.
func NewSender(cfg config.SMTP) *Sender {
	return &Sender{cfg: cfg}
}

// SendHTML delivers an HTML message to the given recipients.
func (s *Sender) SendHTML(subject, body string, to []string) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp host is not configured")
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSend(msg)
}
