// Package notify delivers outgoing e-mail. Mailers send synchronously; the
// Dispatcher runs them in the background so request handlers never wait on
// the mail server.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/reservation/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Message is a single HTML e-mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig describes the relay used by SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendMail is a seam for testing smtp.SendMail.
var sendMail = smtp.SendMail

// SMTPMailer submits messages to an SMTP relay with PLAIN auth, retrying
// transient failures with exponential backoff.
type SMTPMailer struct {
	cfg       SMTPConfig
	retries   uint64
	baseDelay time.Duration
}

// NewSMTPMailer validates cfg and returns a mailer that retries three times
// starting at 200ms.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is required")
	}
	return &SMTPMailer{cfg: cfg, retries: 3, baseDelay: 200 * time.Millisecond}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("message has no recipient")
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	raw := m.compose(msg)

	backoff := retry.WithMaxRetries(m.retries, retry.NewExponential(m.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := sendMail(addr, auth, m.cfg.From, []string{msg.To}, raw); err != nil {
			// permanent 5xx replies are not worth another attempt
			if isPermanent(err) {
				return fmt.Errorf("smtp send: %w", err)
			}
			return retry.RetryableError(fmt.Errorf("smtp send: %w", err))
		}
		return nil
	})
}

func (m *SMTPMailer) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

func isPermanent(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code >= 500
}

// LogMailer records messages in the log instead of sending them. Used when
// no SMTP host is configured. The body is never logged since it carries
// reset codes.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info(ctx, "mail not sent, no smtp relay configured",
		"to", msg.To, "subject", msg.Subject, "body_bytes", len(msg.Body))
	return nil
}
