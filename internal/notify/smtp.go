// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers account emails.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"

	"github.com/holomush/holoauth/internal/auth"
)

// TLS policy names accepted in SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// SMTP defaults.
const (
	DefaultSMTPPort    = 587
	DefaultSMTPTimeout = 10 * time.Second
	DefaultRetryDelay  = 500 * time.Millisecond
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	TLS        string
	Timeout    time.Duration
	MaxRetries uint64
	// RetryDelay is the first backoff delay. Zero means DefaultRetryDelay.
	RetryDelay time.Duration
}

// sender is the part of *mail.Client SMTPNotifier uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends multipart text and HTML email through an SMTP relay,
// retrying transient failures with exponential backoff.
type SMTPNotifier struct {
	client     sender
	from       string
	maxRetries uint64
	retryDelay time.Duration
	logger     *slog.Logger
}

// SMTPOption configures an SMTPNotifier.
type SMTPOption func(*SMTPNotifier)

// WithSMTPLogger sets the logger used for retry warnings.
func WithSMTPLogger(logger *slog.Logger) SMTPOption {
	return func(n *SMTPNotifier) {
		n.logger = logger
	}
}

// withSender replaces the SMTP client.
func withSender(s sender) SMTPOption {
	return func(n *SMTPNotifier) {
		n.client = s
	}
}

// NewSMTPNotifier validates cfg and creates an SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig, opts ...SMTPOption) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("from address is required")
	}
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").With("from", cfg.From).Wrap(err)
	}
	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}

	n := &SMTPNotifier{
		from:       cfg.From,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     slog.Default(),
	}
	if n.retryDelay <= 0 {
		n.retryDelay = DefaultRetryDelay
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.client != nil {
		return n, nil
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultSMTPPort
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSMTPTimeout
	}
	clientOpts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(timeout),
	}
	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").With("host", cfg.Host).Wrap(err)
	}
	n.client = client
	return n, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "", TLSMandatory:
		return mail.TLSMandatory, nil
	case TLSOpportunistic:
		return mail.TLSOpportunistic, nil
	case TLSNone:
		return mail.NoTLS, nil
	default:
		return 0, oops.Code("NOTIFY_INVALID_CONFIG").With("tls", name).Errorf("unknown tls policy %q", name)
	}
}

// Send implements auth.Notifier.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, text, html string) error {
	msg, err := buildMessage(n.from, to, subject, text, html)
	if err != nil {
		return err
	}

	attempt := 0
	backoff := retry.WithMaxRetries(n.maxRetries, retry.NewExponential(n.retryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
			n.logger.WarnContext(ctx, "smtp send failed", "attempt", attempt, "subject", subject, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("subject", subject).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

// buildMessage assembles a multipart/alternative message with the text part first.
func buildMessage(from, to, subject, text, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, oops.Code("NOTIFY_INVALID_ADDRESS").With("field", "from").Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return nil, oops.Code("NOTIFY_INVALID_ADDRESS").With("field", "to").Wrap(err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, text)
	if html != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, html)
	}
	return msg, nil
}

var _ auth.Notifier = (*SMTPNotifier)(nil)
