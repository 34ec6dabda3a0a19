// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Store sentinels. Repository implementations wrap these so callers can use errors.Is.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned when a username is already taken.
	ErrDuplicateUsername = errors.New("duplicate username")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// Error codes returned by the auth service.
const (
	CodeValidationFailed        = "AUTH_VALIDATION_FAILED"
	CodeDuplicateUsername       = "AUTH_DUPLICATE_USERNAME"
	CodeDuplicateEmail          = "AUTH_DUPLICATE_EMAIL"
	CodeUserNotFound            = "AUTH_USER_NOT_FOUND"
	CodeIncorrectPassword       = "AUTH_INCORRECT_PASSWORD"
	CodeInvalidCredentials      = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidVerificationCode = "AUTH_INVALID_VERIFICATION_CODE"
	CodeInvalidOrExpiredToken   = "AUTH_INVALID_OR_EXPIRED_TOKEN"
	CodeInvalidToken            = "SESSION_INVALID_TOKEN"
	CodeExpiredToken            = "SESSION_EXPIRED_TOKEN"
	CodeUnauthorized            = "AUTH_UNAUTHORIZED"
	CodeStoreUnavailable        = "STORE_UNAVAILABLE"
	CodeNotificationFailed      = "NOTIFICATION_FAILED"
)

// Public messages shown to end users.
const (
	msgDuplicateUsername       = "Username is already taken."
	msgDuplicateEmail          = "Email is already registered. Did you forget the password? Try resetting it."
	msgUserNotFound            = "Username not found."
	msgEmailNotFound           = "User with the email is not found."
	msgIncorrectPassword       = "Incorrect password."
	msgInvalidCredentials      = "Invalid username or password."
	msgInvalidVerificationCode = "Unauthorized access. Invalid verification code."
	msgInvalidOrExpiredToken   = "Password reset token is invalid or has expired."
	msgUnauthorized            = "Unauthorized."
	msgValidationFailed        = "Validation failed."
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level messages for rejected input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Fields[0].Field + ": " + e.Fields[0].Message
}
