// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// The types mirror the wire shapes of the TitanBot backend: sessions are
// `{id, title}` and messages are `{id, role, content}`. Message ids live in
// two disjoint spaces so optimistic client entries can never collide with
// server rows: the backend issues positive ids, while ids generated locally
// (for messages appended before the server has seen them) are negative and
// strictly decreasing.
//
// A Log is the ordered message sequence for exactly one session. It is not
// synchronized; a Log has a single owner (the chat controller) and must not
// be shared across goroutines without external locking.
package model
