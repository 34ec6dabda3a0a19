// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. Oops errors contribute their code,
// public message and context; attrs are appended as extra key/value pairs.
// Stack traces are left out so request logs stay one line per failure.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Error(msg, append([]any{"error", err}, attrs...)...)
		return
	}

	fields := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		fields = append(fields, "code", code)
	}
	if public := oopsErr.Public(); public != "" {
		fields = append(fields, "public", public)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		fields = append(fields, "context", ctx)
	}
	logger.Error(msg, append(fields, attrs...)...)
}
