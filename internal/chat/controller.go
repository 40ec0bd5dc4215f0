// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abdulkalam-AIML/titanbot/internal/api"
	"github.com/Abdulkalam-AIML/titanbot/internal/auth"
	"github.com/Abdulkalam-AIML/titanbot/internal/model"
	"github.com/Abdulkalam-AIML/titanbot/internal/stream"
)

// =============================================================================
// STATES AND ERRORS
// =============================================================================

// State is the controller's position in the exchange lifecycle.
type State int

const (
	// StateIdle accepts sends and session switches.
	StateIdle State = iota
	// StateSending has issued the request but not yet opened the reply.
	StateSending
	// StateStreaming is consuming reply increments.
	StateStreaming
	// StateLoggedOut holds no valid credential; only Authenticate leaves it.
	StateLoggedOut
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy rejects session switches while an exchange or load is in
	// flight. Sends while busy are silently ignored instead.
	ErrBusy = errors.New("controller is busy")

	// ErrLoggedOut indicates no credential is held; the caller should
	// route the user to authentication.
	ErrLoggedOut = errors.New("not authenticated")
)

// Error notices appended to the log in place of a reply. The two shapes are
// deliberately distinguishable: connectivity failures name the connection,
// backend failures carry the backend's detail.
const (
	connectivityNotice = "Error: Could not connect to server. Is it running?"
	serverNoticePrefix = "Error: "
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Backend is the slice of the API client the controller drives.
type Backend interface {
	Sessions(ctx context.Context) ([]model.Session, error)
	Messages(ctx context.Context, sessionID int64) ([]model.Message, error)
	Send(ctx context.Context, req api.SendRequest) (*stream.Reader, error)
}

// exchange is one in-flight send. The controller owns it exclusively:
// nothing else may touch the in-progress assistant message.
type exchange struct {
	id         uuid.UUID
	cancel     context.CancelFunc
	newSession bool
	// handle addresses the assistant placeholder in the log. An explicit
	// handle, not a "last element" lookup, so ordering changes can never
	// stream into the wrong message.
	handle int
}

// Controller drives one conversation view. Safe for concurrent use, but the
// update callbacks run with the controller locked and must not call back
// into it.
type Controller struct {
	backend   Backend
	tokens    auth.TokenStore
	log       *zap.Logger
	modelName string

	mu        sync.Mutex
	state     State
	busy      bool // a session load is in flight
	sessionID int64
	sessions  []model.Session
	messages  *model.Log
	exchange  *exchange

	onUpdate    func(messages []model.Message)
	onSessions  func(sessions []model.Session)
	onLoggedOut func()
}

// NewController creates an idle controller for a new, unsaved conversation.
func NewController(backend Backend, tokens auth.TokenStore, modelName string) *Controller {
	return &Controller{
		backend:   backend,
		tokens:    tokens,
		log:       zap.NewNop(),
		modelName: modelName,
		sessionID: model.NoSession,
		messages:  model.NewLog(),
	}
}

// WithLogger sets the structured logger.
func (c *Controller) WithLogger(log *zap.Logger) *Controller {
	c.log = log
	return c
}

// OnUpdate registers the sink receiving a fresh snapshot of the message log
// after every mutation. Snapshots are copies: re-rendering or mutating one
// never affects the log.
func (c *Controller) OnUpdate(fn func(messages []model.Message)) *Controller {
	c.onUpdate = fn
	return c
}

// OnSessions registers the sink for session directory updates.
func (c *Controller) OnSessions(fn func(sessions []model.Session)) *Controller {
	c.onSessions = fn
	return c
}

// OnLoggedOut registers the collaborator notified when the credential is
// destroyed. Navigation is its job, not the controller's.
func (c *Controller) OnLoggedOut(fn func()) *Controller {
	c.onLoggedOut = fn
	return c
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveSession returns the active session id, or model.NoSession for a new
// conversation.
func (c *Controller) ActiveSession() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Messages returns a snapshot of the message log.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.Snapshot()
}

// SetModel retargets future exchanges to a different model. The exchange in
// flight, if any, keeps the model it started with.
func (c *Controller) SetModel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelName = name
}

// Sessions returns the last fetched session directory.
func (c *Controller) Sessions() []model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// =============================================================================
// SEND
// =============================================================================

// Send runs one exchange to completion: optimistic user message, request,
// streamed assistant reply. It blocks until the exchange settles.
//
// Whitespace-only text is a no-op, as is calling Send while another
// exchange is in flight. All exchange failures are converted into notice
// messages or state transitions; Send returns an error only when no
// credential is held.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.state != StateIdle || c.busy {
		c.mu.Unlock()
		c.log.Debug("send ignored", zap.String("state", c.state.String()))
		return nil
	}

	token, err := c.tokens.Get()
	if err != nil || token == "" {
		c.toLoggedOutLocked()
		c.mu.Unlock()
		return ErrLoggedOut
	}

	c.messages.Append(model.NewUserMessage(text))
	c.state = StateSending
	sessionID := c.sessionID
	modelName := c.modelName

	exCtx, cancel := context.WithCancel(ctx)
	ex := &exchange{
		id:         uuid.New(),
		cancel:     cancel,
		newSession: sessionID == model.NoSession,
	}
	c.exchange = ex
	c.publishLocked()
	c.mu.Unlock()
	defer cancel()

	c.log.Info("exchange started",
		zap.String("exchange", ex.id.String()),
		zap.Int64("session", sessionID),
		zap.String("credential", auth.Fingerprint(token)),
	)

	reader, err := c.backend.Send(exCtx, api.SendRequest{
		Message:   text,
		SessionID: sessionID,
		Model:     modelName,
	})
	if err != nil {
		c.settleFailed(ex, err)
		return nil
	}
	defer reader.Close()

	c.mu.Lock()
	if c.exchange != ex {
		// Abandoned (logout) while the request was in flight.
		c.mu.Unlock()
		return nil
	}
	ex.handle = c.messages.Append(model.NewAssistantPlaceholder())
	c.state = StateStreaming
	c.publishLocked()
	c.mu.Unlock()

	err = reader.Process(exCtx, func(increment string) {
		c.applyIncrement(ex, increment)
	})
	if err != nil {
		c.settleFailed(ex, err)
		return nil
	}

	c.mu.Lock()
	if c.exchange != ex {
		c.mu.Unlock()
		return nil
	}
	c.exchange = nil
	c.state = StateIdle
	c.publishLocked()
	c.mu.Unlock()

	c.log.Info("exchange complete", zap.String("exchange", ex.id.String()))

	// A new conversation now exists server-side under an id this client
	// never saw; only a directory refresh makes it visible. Deliberately
	// after stream end, never before.
	if ex.newSession {
		if err := c.RefreshSessions(ctx); err != nil {
			c.log.Warn("session directory refresh failed", zap.Error(err))
		}
	}
	return nil
}

// applyIncrement appends one streamed increment to the in-progress
// assistant message. Increments for an abandoned exchange are discarded.
func (c *Controller) applyIncrement(ex *exchange, increment string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exchange != ex {
		return
	}
	if err := c.messages.AppendContent(ex.handle, increment); err != nil {
		c.log.Error("dropped increment", zap.Error(err))
		return
	}
	c.publishLocked()
}

// settleFailed converts an exchange failure into log content or a state
// transition. Partial content already streamed stays in the log.
func (c *Controller) settleFailed(ex *exchange, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exchange != ex {
		// Already abandoned; whoever abandoned it owns the state.
		return
	}
	c.exchange = nil

	var apiErr *api.APIError
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		// Credential invalid or expired: destroy it and force
		// re-authentication. No assistant message for this exchange.
		c.log.Warn("credential rejected", zap.String("exchange", ex.id.String()))
		c.toLoggedOutLocked()

	case errors.As(err, &apiErr):
		c.log.Warn("exchange rejected",
			zap.String("exchange", ex.id.String()),
			zap.Int("status", apiErr.Status),
		)
		c.appendNoticeLocked(serverNoticePrefix + apiErr.Detail)
		c.state = StateIdle

	case errors.Is(err, context.Canceled):
		// The caller abandoned the exchange; nothing to report in-log.
		c.state = StateIdle
		c.publishLocked()

	default:
		c.log.Warn("exchange transport failure",
			zap.String("exchange", ex.id.String()),
			zap.Error(err),
		)
		c.appendNoticeLocked(connectivityNotice)
		c.state = StateIdle
	}
}

// appendNoticeLocked appends an assistant-role error notice.
func (c *Controller) appendNoticeLocked(notice string) {
	c.messages.Append(model.Message{
		ID:      model.NextLocalID(),
		Role:    model.RoleAssistant,
		Content: notice,
	})
	c.publishLocked()
}

// =============================================================================
// SESSION SWITCHING
// =============================================================================

// LoadSession replaces the active session and its message log with the
// server-side history. Only valid from Idle: an in-flight exchange is never
// interrupted by a switch.
func (c *Controller) LoadSession(ctx context.Context, sessionID int64) error {
	c.mu.Lock()
	if c.state != StateIdle || c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.mu.Unlock()

	messages, err := c.backend.Messages(ctx, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			c.toLoggedOutLocked()
			return ErrLoggedOut
		}
		return fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}
	if c.state != StateIdle {
		// Logged out while the fetch was in flight.
		return ErrLoggedOut
	}

	c.sessionID = sessionID
	c.messages.Replace(messages)
	c.publishLocked()
	return nil
}

// NewSession switches to the transient new conversation: no session id,
// empty log. Only valid from Idle.
func (c *Controller) NewSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle || c.busy {
		return ErrBusy
	}
	c.sessionID = model.NoSession
	c.messages.Replace(nil)
	c.publishLocked()
	return nil
}

// RefreshSessions re-fetches the session directory. Directory contents go
// stale silently; refresh is always explicit.
func (c *Controller) RefreshSessions(ctx context.Context) error {
	sessions, err := c.backend.Sessions(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			c.mu.Lock()
			c.toLoggedOutLocked()
			c.mu.Unlock()
			return ErrLoggedOut
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = sessions
	if c.onSessions != nil {
		out := make([]model.Session, len(sessions))
		copy(out, sessions)
		c.onSessions(out)
	}
	return nil
}

// =============================================================================
// AUTHENTICATION LIFECYCLE
// =============================================================================

// Authenticate stores a fresh credential and returns the controller to
// Idle.
func (c *Controller) Authenticate(token string) error {
	if err := c.tokens.Set(token); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoggedOut {
		c.state = StateIdle
	}
	return nil
}

// Logout destroys the credential and abandons any in-flight exchange,
// cancelling its context so the open transport is released. Safe to call
// redundantly.
func (c *Controller) Logout() {
	c.mu.Lock()
	ex := c.exchange
	c.exchange = nil
	c.toLoggedOutLocked()
	c.mu.Unlock()

	if ex != nil {
		ex.cancel()
	}
}

// toLoggedOutLocked clears the credential and enters LoggedOut. Caller
// holds the lock.
func (c *Controller) toLoggedOutLocked() {
	if err := c.tokens.Clear(); err != nil {
		c.log.Error("failed to clear credential", zap.Error(err))
	}
	alreadyOut := c.state == StateLoggedOut
	c.state = StateLoggedOut
	if !alreadyOut && c.onLoggedOut != nil {
		c.onLoggedOut()
	}
}

// publishLocked pushes a snapshot to the update sink. Caller holds the
// lock.
func (c *Controller) publishLocked() {
	if c.onUpdate != nil {
		c.onUpdate(c.messages.Snapshot())
	}
}
