package email

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoTransport is returned by FallbackSender when it has no providers.
var ErrNoTransport = errors.New("no email transport configured")

type provider struct {
	name   string
	sender Sender
}

// FallbackSender tries its providers in order and stops at the first success.
type FallbackSender struct {
	providers []provider
	log       *zap.Logger
}

func NewFallbackSender(log *zap.Logger) *FallbackSender {
	return &FallbackSender{log: log}
}

// Add appends a provider. Nil senders are ignored so optional transports
// can be passed unconditionally.
func (fs *FallbackSender) Add(name string, sender Sender) *FallbackSender {
	if sender != nil && !isNilSender(sender) {
		fs.providers = append(fs.providers, provider{name: name, sender: sender})
	}
	return fs
}

// Configured reports whether any provider was added.
func (fs *FallbackSender) Configured() bool {
	return len(fs.providers) > 0
}

// Providers lists provider names in attempt order.
func (fs *FallbackSender) Providers() []string {
	names := make([]string, len(fs.providers))
	for i, p := range fs.providers {
		names[i] = p.name
	}
	return names
}

// SendVia sends through the first provider that succeeds and returns its
// name. When every provider fails the errors are joined.
func (fs *FallbackSender) SendVia(ctx context.Context, to []string, subject string, rawMessage []byte) (string, error) {
	if len(fs.providers) == 0 {
		return "", ErrNoTransport
	}

	var errs []error
	for _, p := range fs.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
			break
		}
		err := p.sender.Send(ctx, to, subject, rawMessage)
		if err == nil {
			return p.name, nil
		}
		fs.log.Warn("Email provider failed", zap.String("provider", p.name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
	}
	return "", errors.Join(errs...)
}

func (fs *FallbackSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	_, err := fs.SendVia(ctx, to, subject, rawMessage)
	return err
}

func isNilSender(s Sender) bool {
	switch v := s.(type) {
	case *SMTPSender:
		return v == nil
	case *FileEmailSender:
		return v == nil
	case *RedisSender:
		return v == nil
	}
	return false
}
