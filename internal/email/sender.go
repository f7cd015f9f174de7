package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"greendrake/marketdesk/internal/config"
)

// Sender delivers one fully formatted message (headers and body).
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// SMTPSender implements Sender with net/smtp.
type SMTPSender struct {
	cfg  *config.Config
	auth smtp.Auth
	addr string
	log  *zap.Logger
}

// NewSMTPSender returns nil when no SMTP host is configured.
func NewSMTPSender(cfg *config.Config, log *zap.Logger) *SMTPSender {
	if cfg.SmtpHost == "" {
		return nil
	}
	return &SMTPSender{
		cfg:  cfg,
		auth: smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost),
		addr: fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
		log:  log,
	}
}

// Send dials the server in a goroutine so ctx can abandon a stalled
// exchange; net/smtp itself takes no context.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, s.auth, s.cfg.SmtpFromAddress, to, rawMessage)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp error: %w", err)
		}
		s.log.Info("Email sent via SMTP", zap.Strings("to", to), zap.String("subject", subject))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send abandoned: %w", ctx.Err())
	}
}

// LoggingSender writes messages to the log instead of delivering them. It is
// what the dispatcher falls back to when no transport is configured.
type LoggingSender struct {
	log *zap.Logger
}

func NewLoggingSender(log *zap.Logger) *LoggingSender {
	return &LoggingSender{log: log}
}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	s.log.Info("Email logged, no transport configured",
		zap.Strings("to", to),
		zap.String("subject", subject),
		zap.ByteString("raw", rawMessage),
	)
	return nil
}
