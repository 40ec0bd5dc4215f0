// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Session is a named, server-persisted conversation thread.
//
// Sessions are created server-side on the first successful exchange that
// carried no session id; the client never mutates one except by re-fetching
// the directory.
type Session struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// NoSession is the session id of the transient "new/unsaved" conversation.
const NoSession int64 = 0
