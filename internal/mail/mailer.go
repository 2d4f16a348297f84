// Package mail sends verification codes over SMTP.
package mail

import (
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/teaandpython/wodserver/internal/config"
)

// Sender delivers a short text to an email address.
type Sender interface {
	Send(to, subject, body string) error
}

// DialTimeout bounds the SMTP connection setup.
const DialTimeout = 10 * time.Second

// SMTPSender sends mail through a TLS-capable SMTP relay.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSender returns an SMTP sender, or a disabled one when
// credentials are not configured.
func NewSender(cfg config.SMTPConfig) Sender {
	if !cfg.Enabled() {
		slog.Warn("email disabled: EMAIL_USER/EMAIL_PASS not set")
		return Disabled{}
	}
	return &SMTPSender{cfg: cfg}
}

// Send delivers one message. Blocking; callers run it off the
// connection's fast path.
func (s *SMTPSender) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return fmt.Errorf("dialing smtp %s: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(nil); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.From, to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return c.Quit()
}

// Disabled is the no-credentials sender: every send fails cleanly so
// the flows that need email report email_invalid instead of hanging.
type Disabled struct{}

func (Disabled) Send(to, subject, body string) error {
	return fmt.Errorf("email disabled")
}
