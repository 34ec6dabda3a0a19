// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier_Send(t *testing.T) {
	const body = "Open https://auth.example.com/users/verify-now/abc"

	t.Run("info level keeps the link out of the log", func(t *testing.T) {
		var buf bytes.Buffer
		n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

		require.NoError(t, n.Send(context.Background(), "alice@example.com", "Verify your account", body, "<p>ignored</p>"))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "alice@example.com", entry["to"])
		assert.Equal(t, "Verify your account", entry["subject"])
		assert.NotContains(t, entry, "body")
		assert.NotContains(t, buf.String(), "verify-now/abc")
		assert.NotContains(t, buf.String(), "ignored")
	})

	t.Run("debug level logs the body", func(t *testing.T) {
		var buf bytes.Buffer
		n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

		require.NoError(t, n.Send(context.Background(), "alice@example.com", "Verify your account", body, "<p>ignored</p>"))

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 2)
		var entry map[string]any
		require.NoError(t, json.Unmarshal(lines[1], &entry))
		assert.Equal(t, "DEBUG", entry["level"])
		assert.Contains(t, entry["body"], "users/verify-now/abc")
		assert.NotContains(t, buf.String(), "ignored")
	})
}

func TestNewLogNotifier_DefaultLogger(t *testing.T) {
	assert.NotNil(t, NewLogNotifier(nil).logger)
}
