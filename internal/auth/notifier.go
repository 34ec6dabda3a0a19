// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/samber/oops"
)

// Notifier delivers account emails.
type Notifier interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Email subjects.
const (
	SubjectVerification  = "Verify your account"
	SubjectReset         = "Reset Password"
	SubjectResetComplete = "Reset Password Successful"
)

// Link paths appended to the public URL.
const (
	VerifyPath = "users/verify-now/"
	ResetPath  = "users/reset-password-now/"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
)

// message is a rendered email.
type message struct {
	subject string
	text    string
	html    string
}

type messageData struct {
	Username string
	Link     string
}

// renderMessage renders the named template pair (e.g. "verification").
func renderMessage(name, subject string, data messageData) (message, error) {
	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, name+".txt.tmpl", data); err != nil {
		return message{}, oops.Code("NOTIFICATION_RENDER_FAILED").With("template", name).Wrap(err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html.tmpl", data); err != nil {
		return message{}, oops.Code("NOTIFICATION_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return message{subject: subject, text: text.String(), html: html.String()}, nil
}

func verificationMessage(user *User, publicURL, code string) (message, error) {
	return renderMessage("verification", SubjectVerification, messageData{
		Username: user.Username,
		Link:     publicURL + VerifyPath + code,
	})
}

func resetMessage(user *User, publicURL, token string) (message, error) {
	return renderMessage("reset", SubjectReset, messageData{
		Username: user.Username,
		Link:     publicURL + ResetPath + token,
	})
}

func resetCompleteMessage(user *User) (message, error) {
	return renderMessage("reset_complete", SubjectResetComplete, messageData{Username: user.Username})
}
