package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"SocialMonitor/internal/config"
	"SocialMonitor/internal/ports"
)

// EmailNotifier sends digests to a fixed recipient list over SMTP.
type EmailNotifier struct {
	cfg  config.EmailConfig
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

var _ ports.Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier wires SMTP settings from configuration.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

// Name identifies the channel in logs and metrics.
func (n *EmailNotifier) Name() string {
	return "email"
}

// Send mails the digest as a plain-text message to all recipients.
func (n *EmailNotifier) Send(_ context.Context, digest string) error {
	if n.cfg.SMTPHost == "" || n.cfg.From == "" || len(n.cfg.Recipients) == 0 {
		return fmt.Errorf("email notifier misconfigured")
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SMTPHost)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.cfg.Recipients, ", "))
	msg.WriteString("Subject: Social monitoring alert digest\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(digest)

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	if err := n.send(addr, auth, n.cfg.From, n.cfg.Recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	return nil
}
