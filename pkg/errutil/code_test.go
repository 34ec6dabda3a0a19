// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/holomush/holoauth/pkg/errutil"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"standard error", errors.New("plain"), ""},
		{"oops with code", oops.Code("MY_CODE").Errorf("boom"), "MY_CODE"},
		{"oops without code", oops.Errorf("boom"), ""},
		{"wrapped by fmt", fmt.Errorf("outer: %w", oops.Code("INNER").Errorf("boom")), "INNER"},
		{"oops wrapping plain error", oops.Code("OUTER").Wrap(errors.New("plain")), "OUTER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Code(tt.err))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback string
		want     string
	}{
		{"nil", nil, "fallback", "fallback"},
		{"standard error", errors.New("plain"), "fallback", "fallback"},
		{"oops without public", oops.Code("X").Errorf("internal detail"), "fallback", "fallback"},
		{"oops with public", oops.Public("Username not found.").Errorf("no row"), "", "Username not found."},
		{"public under wrap", oops.Code("OUTER").Wrap(oops.Public("Incorrect password.").Errorf("mismatch")), "", "Incorrect password."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.PublicMessage(tt.err, tt.fallback))
		})
	}
}
