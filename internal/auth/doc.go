// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth holds the bearer credential for the authenticated session.
//
// The TokenStore is the only persisted client-side state: one credential,
// created at login and destroyed at logout or when the backend reports it
// invalid. Reading an absent credential is not an error; callers decide how
// to react, typically by forcing re-authentication.
package auth
