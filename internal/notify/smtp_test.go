// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/holomush/holoauth/pkg/errutil"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []*mail.Msg
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("421 service not available")
	}
	f.sent = append(f.sent, messages...)
	return nil
}

func testConfig() SMTPConfig {
	return SMTPConfig{
		Host:       "smtp.example.com",
		From:       "holoauth@example.com",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func render(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestNewSMTPNotifier_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SMTPConfig)
	}{
		{"missing host", func(c *SMTPConfig) { c.Host = "" }},
		{"missing from", func(c *SMTPConfig) { c.From = "" }},
		{"invalid from", func(c *SMTPConfig) { c.From = "not an address" }},
		{"unknown tls policy", func(c *SMTPConfig) { c.TLS = "sometimes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewSMTPNotifier(cfg)
			errutil.AssertErrorCode(t, err, "NOTIFY_INVALID_CONFIG")
		})
	}
}

func TestNewSMTPNotifier_BuildsClient(t *testing.T) {
	for _, policy := range []string{"", TLSMandatory, TLSOpportunistic, TLSNone} {
		t.Run("tls="+policy, func(t *testing.T) {
			cfg := testConfig()
			cfg.TLS = policy
			cfg.Username = "user"
			cfg.Password = "secret"

			n, err := NewSMTPNotifier(cfg)
			require.NoError(t, err)
			assert.IsType(t, &mail.Client{}, n.client)
		})
	}
}

func TestSMTPNotifier_Send(t *testing.T) {
	fake := &fakeSender{}
	n, err := NewSMTPNotifier(testConfig(), withSender(fake), WithSMTPLogger(quietLogger()))
	require.NoError(t, err)

	err = n.Send(context.Background(), "alice@example.com", "Verify your account",
		"Open https://auth.example.com/users/verify-now/abc", "<a href=\"https://auth.example.com/users/verify-now/abc\">verify</a>")
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	raw := render(t, fake.sent[0])
	assert.Contains(t, raw, "Subject: Verify your account")
	assert.Contains(t, raw, "<alice@example.com>")
	assert.Contains(t, raw, "<holoauth@example.com>")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
}

func TestSMTPNotifier_SendTextOnly(t *testing.T) {
	fake := &fakeSender{}
	n, err := NewSMTPNotifier(testConfig(), withSender(fake))
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "alice@example.com", "Reset Password", "plain body", ""))

	raw := render(t, fake.sent[0])
	assert.Contains(t, raw, "plain body")
	assert.NotContains(t, raw, "text/html")
}

func TestSMTPNotifier_RetriesTransientFailures(t *testing.T) {
	fake := &fakeSender{failures: 2}
	var logs bytes.Buffer
	n, err := NewSMTPNotifier(testConfig(), withSender(fake),
		WithSMTPLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "alice@example.com", "s", "t", ""))
	assert.Equal(t, 3, fake.calls)
	assert.Contains(t, logs.String(), "smtp send failed")
}

func TestSMTPNotifier_GivesUpAfterMaxRetries(t *testing.T) {
	fake := &fakeSender{failures: 10}
	n, err := NewSMTPNotifier(testConfig(), withSender(fake), WithSMTPLogger(quietLogger()))
	require.NoError(t, err)

	err = n.Send(context.Background(), "alice@example.com", "Reset Password", "t", "")
	errutil.AssertErrorCode(t, err, "NOTIFY_SEND_FAILED")
	errutil.AssertErrorContext(t, err, "attempts", 3)
	assert.Equal(t, 3, fake.calls)
}

func TestSMTPNotifier_InvalidRecipient(t *testing.T) {
	fake := &fakeSender{}
	n, err := NewSMTPNotifier(testConfig(), withSender(fake))
	require.NoError(t, err)

	err = n.Send(context.Background(), "not an address", "s", "t", "")
	errutil.AssertErrorCode(t, err, "NOTIFY_INVALID_ADDRESS")
	errutil.AssertErrorContext(t, err, "field", "to")
	assert.Zero(t, fake.calls)
}
