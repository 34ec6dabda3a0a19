// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/holoauth/internal/auth"
)

// LogNotifier writes emails to the log instead of sending them.
// It is meant for local development. The text body carries live verification
// and reset links, so it is only logged at debug level.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send implements auth.Notifier.
func (n *LogNotifier) Send(ctx context.Context, to, subject, text, _ string) error {
	n.logger.InfoContext(ctx, "email not sent (log mailer)",
		"to", to,
		"subject", subject,
	)
	n.logger.DebugContext(ctx, "email body (log mailer)",
		"to", to,
		"body", text,
	)
	return nil
}

var _ auth.Notifier = (*LogNotifier)(nil)
