// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the TitanBot backend.
//
// The backend is an external collaborator reachable only over this contract:
//
//	GET  /chat/sessions                → [{id, title}]
//	GET  /chat/sessions/{id}/messages  → [{id, role, content}]
//	POST /chat/send                    → streamed raw text (see stream pkg)
//	POST /auth/{login,register,google,apple} → {access_token}
//
// All authenticated calls carry "Authorization: Bearer <credential>". The
// host/path prefix is configuration, not part of the contract. Errors are
// classified into ErrUnauthorized (401 or missing credential), APIError
// (other non-2xx, with the backend's {detail} payload or a generic
// fallback), and ErrUnavailable (transport failure).
package api
