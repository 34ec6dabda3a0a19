// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/holomush/holoauth/internal/auth"
)

// Message is an email captured by RecordingNotifier.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// RecordingNotifier is a Notifier that keeps every message in memory.
// When Err is set, Send records nothing and returns Err.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

// Send implements auth.Notifier.
func (n *RecordingNotifier) Send(_ context.Context, to, subject, text, html string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.messages = append(n.messages, Message{To: to, Subject: subject, Text: text, HTML: html})
	return nil
}

// Messages returns a copy of the recorded messages.
func (n *RecordingNotifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}

// Last returns the most recent message and whether there was one.
func (n *RecordingNotifier) Last() (Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return Message{}, false
	}
	return n.messages[len(n.messages)-1], true
}

var _ auth.Notifier = (*RecordingNotifier)(nil)
