// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync/atomic"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "TitanBot"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one the backend may produce.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// NoticeMarker is the content-level convention the backend uses to flag a
// system notice inside assistant text. It appears verbatim as the first
// paragraph of the accumulated content and is preserved as-is in the stored
// message; only presentation layers reinterpret it.
const NoticeMarker = "**NOTICE:"

// Message represents a single message in a session.
//
// Ids are unique within a Log at any instant. Server-issued ids are positive;
// locally generated ids (see NextLocalID) are negative, so the two spaces
// never collide.
type Message struct {
	ID      int64  `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// localID is the monotonic counter for client-generated message ids.
// Starts below zero and only decreases, keeping the local space disjoint
// from the backend's positive ids.
var localID atomic.Int64

// NextLocalID returns the next client-generated message id.
// Safe for concurrent use.
func NextLocalID() int64 {
	return localID.Add(-1)
}

// NewUserMessage creates an optimistic user message with a local id.
func NewUserMessage(content string) Message {
	return Message{
		ID:      NextLocalID(),
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantPlaceholder creates the empty assistant message that receives
// streamed increments. It gets a fresh local id, guaranteed distinct from
// any previously generated id.
func NewAssistantPlaceholder() Message {
	return Message{
		ID:   NextLocalID(),
		Role: RoleAssistant,
	}
}

// IsLocal reports whether the message id was generated client-side.
func (m Message) IsLocal() bool {
	return m.ID < 0
}

// HasNotice reports whether the content starts with the system-notice
// convention. The content itself is never rewritten.
func (m Message) HasNotice() bool {
	return strings.HasPrefix(m.Content, NoticeMarker)
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen-3]) + "..."
}
