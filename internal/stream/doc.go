// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream consumes the token-by-token response body of a chat send.
//
// The backend streams raw UTF-8 text with no framing: chunk boundaries fall
// at arbitrary byte offsets, including inside a multi-byte character. The
// Reader decodes incrementally, carrying partial sequences across reads, so
// the concatenation of all emitted increments always equals the decode of
// the whole body. A Reader is single-pass and non-restartable; a new
// exchange requires a new request.
package stream
