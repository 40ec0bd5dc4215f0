// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat orchestrates one conversation view against the backend.
//
// The Controller owns the message log and the single in-flight exchange (one
// user send, one streamed assistant reply). It validates the credential,
// appends the optimistic user message, feeds the reply stream into the
// assistant placeholder, and converts every failure into either a locally
// appended notice message or a state transition; no failure propagates past
// it as an unhandled fault.
//
// State machine:
//
//	Idle --send--> Sending --2xx--> Streaming --end-of-stream--> Idle
//	Sending/Streaming --401--> LoggedOut (credential destroyed)
//	Sending/Streaming --error--> Idle (notice appended, partial kept)
//
// At most one exchange is active per log: send while not Idle is a no-op,
// and session switches are rejected until the controller returns to Idle.
package chat
