// Package conversation implements the in-process Conversation Manager
// (spec §4.10): session lifecycle, sliding-window context, and follow-up
// query resolution.
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// followUpLexicon are the phrases that mark a query as a follow-up rather
// than a fresh question, per spec §4.10. Kept as a data table so new
// phrases can be added without touching the detection logic.
var followUpLexicon = []string{
	"what about",
	"and ",
	"when did",
	"how about",
	"also",
	"tell me more",
}

type sessionEntry struct {
	session types.Session
	context types.ConversationContext
}

// Manager is the in-process session store. Safe for concurrent use; a
// single mutex serializes mutations, satisfying spec §5's requirement
// that concurrent updateContext calls on the same session are serialized.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: map[string]*sessionEntry{}}
}

// CreateSession generates an opaque session_id and stores a fresh
// context for patientID, expiring SessionTTL from now.
func (m *Manager) CreateSession(patientID string, now time.Time) (*types.Session, error) {
	if patientID == "" {
		return nil, xerrors.Validation("conversation.CreateSession", "patient_id must be non-empty")
	}

	session := types.Session{
		SessionID: uuid.NewString(),
		PatientID: patientID,
		CreatedAt: now,
		ExpiresAt: now.Add(types.SessionTTL),
	}

	m.mu.Lock()
	m.sessions[session.SessionID] = &sessionEntry{
		session: session,
		context: types.ConversationContext{UpdatedAt: now},
	}
	m.mu.Unlock()

	out := session
	return &out, nil
}

// GetSession returns the session metadata for sessionID.
func (m *Manager) GetSession(sessionID string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, xerrors.NotFound("conversation.GetSession", "session "+sessionID+" not found")
	}
	out := e.session
	return &out, nil
}

// GetContext returns a copy of sessionID's current context.
func (m *Manager) GetContext(sessionID string) (types.ConversationContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return types.ConversationContext{}, xerrors.NotFound("conversation.GetContext", "session "+sessionID+" not found")
	}
	return e.context, nil
}

// UpdateContext appends a turn to sessionID's context, evicting the
// oldest turn if the window would otherwise exceed
// types.ContextWindowSize, and refreshes the last_* fields from query.
func (m *Manager) UpdateContext(sessionID string, query *types.StructuredQuery, response *types.UIResponse, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return xerrors.NotFound("conversation.UpdateContext", "session "+sessionID+" not found")
	}
	if e.session.Expired(now) {
		return xerrors.Validation("conversation.UpdateContext", "session "+sessionID+" expired")
	}

	e.context.AppendTurn(&types.ConversationTurn{
		Query:      query,
		Response:   response,
		AskedAt:    query.ProcessedAt,
		AnsweredAt: now,
	})
	if len(query.Entities) > 0 {
		e.context.LastEntities = query.Entities
	}
	if query.TemporalFilter != nil {
		e.context.LastTemporalFilter = query.TemporalFilter
	}
	if query.Intent != "" {
		e.context.LastIntent = query.Intent
	}
	e.context.UpdatedAt = now
	return nil
}

// ResolveFollowUp inherits entities, temporal filter, and intent from
// sessionID's context onto query when query is detected as a follow-up
// and itself carries no new signal for that field.
func (m *Manager) ResolveFollowUp(sessionID string, query types.StructuredQuery, now time.Time) (types.StructuredQuery, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return query, xerrors.NotFound("conversation.ResolveFollowUp", "session "+sessionID+" not found")
	}
	if e.session.Expired(now) {
		return query, xerrors.Validation("conversation.ResolveFollowUp", "session "+sessionID+" expired")
	}
	if !isFollowUp(query.OriginalQuery) {
		return query, nil
	}

	m.mu.RLock()
	ctx := e.context
	m.mu.RUnlock()

	resolved := query
	if len(resolved.Entities) == 0 {
		resolved.Entities = ctx.LastEntities
	}
	if resolved.TemporalFilter == nil {
		resolved.TemporalFilter = ctx.LastTemporalFilter
	}
	if resolved.Intent == "" || resolved.Intent == types.IntentGeneral {
		resolved.Intent = ctx.LastIntent
	}
	return resolved, nil
}

// CleanupExpiredSessions deletes every session whose TTL has elapsed as
// of now. Idempotent and safe to call while readers are active.
func (m *Manager) CleanupExpiredSessions(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.sessions {
		if e.session.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func isFollowUp(query string) bool {
	lower := strings.ToLower(query)
	for _, phrase := range followUpLexicon {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
