// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for inspecting, logging and asserting on
// oops errors.
package errutil

import "github.com/samber/oops"

// Code returns the oops error code carried by err, or "" if there is none.
// For nested oops errors this is the innermost non-empty code.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := any(oopsErr.Code()).(string)
	return code
}

// PublicMessage returns the user-facing message attached to err with
// oops Public, or fallback when err carries none.
func PublicMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return oops.GetPublic(err, fallback)
}
