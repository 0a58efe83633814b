// Package mailer delivers account e-mails (verification, password reset).
//
// With WL_SMTP_HOST set, mail goes out over SMTP. Without it a LogSender
// records each message in the structured log, which is enough for local
// development.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/gomail.v2"
)

// Message is one outgoing e-mail. HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config is parsed from the environment with caarlos0/env.
type Config struct {
	Host     string `env:"WL_SMTP_HOST"`
	Port     int    `env:"WL_SMTP_PORT"     envDefault:"587"`
	Username string `env:"WL_SMTP_USERNAME"`
	Password string `env:"WL_SMTP_PASSWORD"`
	From     string `env:"WL_MAIL_FROM"     envDefault:"WhisperLink <no-reply@whisperlink.local>"`

	// LogBody makes the LogSender include message bodies (dev only: bodies
	// carry one-time links).
	LogBody bool `env:"WL_MAIL_LOG_BODY" envDefault:"false"`
}

// LoadConfig reads Config from WL_SMTP_* / WL_MAIL_* variables.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("mailer config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Host == "" {
		return nil
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("mailer config: WL_SMTP_PORT out of range")
	}
	if strings.TrimSpace(c.From) == "" {
		return fmt.Errorf("mailer config: WL_MAIL_FROM is required with WL_SMTP_HOST")
	}
	return nil
}

// New returns an SMTP sender when cfg.Host is set and a LogSender otherwise.
func New(cfg Config, log *slog.Logger) Sender {
	if cfg.Host == "" {
		return NewLogSender(log, cfg.LogBody)
	}
	return NewSMTPSender(cfg)
}

// dialer is the part of *gomail.Dialer we use.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends mail through an SMTP relay with gomail.
type SMTPSender struct {
	from   string
	dialer dialer
}

// NewSMTPSender dials cfg.Host:cfg.Port per message.
func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mailer: no recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mailer: smtp send: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log      *slog.Logger
	withBody bool
}

// NewLogSender returns a LogSender; a nil log uses slog.Default().
func NewLogSender(log *slog.Logger, withBody bool) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log, withBody: withBody}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	attrs := []any{"to", msg.To, "subject", msg.Subject}
	if s.withBody {
		attrs = append(attrs, "body", msg.Text)
	}
	s.log.InfoContext(ctx, "mail.log_only", attrs...)
	return nil
}
