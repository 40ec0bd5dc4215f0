// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
)

// ErrBadHandle indicates an append against a handle that does not reference
// a live message in the log.
var ErrBadHandle = errors.New("invalid message handle")

// Log is the ordered message sequence for one session.
//
// The log is replaced wholesale when switching sessions and appended to
// during a send. Streamed increments are applied through an explicit handle
// returned by Append, never by peeking at the last element, so the in-flight
// assistant message cannot be corrupted if ordering assumptions change.
type Log struct {
	messages []Message
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	return len(l.messages)
}

// Append adds a message and returns a handle to it for later content appends.
func (l *Log) Append(m Message) int {
	l.messages = append(l.messages, m)
	return len(l.messages) - 1
}

// AppendContent appends a streamed increment to the message at the given
// handle. Content only ever grows; there is no way to rewrite it.
func (l *Log) AppendContent(handle int, increment string) error {
	if handle < 0 || handle >= len(l.messages) {
		return fmt.Errorf("%w: %d (log has %d messages)", ErrBadHandle, handle, len(l.messages))
	}
	l.messages[handle].Content += increment
	return nil
}

// At returns the message at index i.
func (l *Log) At(i int) Message {
	return l.messages[i]
}

// Replace swaps the entire contents of the log. A nil slice empties it.
func (l *Log) Replace(messages []Message) {
	l.messages = append(l.messages[:0:0], messages...)
}

// Snapshot returns a copy of the messages for publishing. Mutating the
// returned slice never affects the log, which makes re-publishing the same
// snapshot harmless.
func (l *Log) Snapshot() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}
