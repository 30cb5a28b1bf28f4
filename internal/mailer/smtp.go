// Package mailer submits finalized messages to an SMTP relay. It is
// fire-and-forget from the dispatcher's point of view: no retries, no
// delivery tracking.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"post_notifier/internal/config"
)

type SMTP struct {
	addr   string
	host   string
	auth   smtp.Auth
	from   string
	logger *slog.Logger
}

func NewSMTP(cfg config.SMTPConfig, logger *slog.Logger) *SMTP {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTP{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		host:   cfg.Host,
		auth:   auth,
		from:   cfg.From,
		logger: logger,
	}
}

func (m *SMTP) Send(ctx context.Context, to, subject, body string, html bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(m.from, to, subject, body, html)

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	m.logger.Debug("message submitted", "to", to, "subject", subject, "html", html)
	return nil
}

func buildMessage(from, to, subject, body string, html bool) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	if html {
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
