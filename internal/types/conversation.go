package types

import "time"

// SessionTTL is the default lifetime of a conversation session, per spec
// §3/§6.4 (SESSION_TTL_MINUTES default 30).
const SessionTTL = 30 * time.Minute

// ContextWindowSize bounds the number of turns a ConversationContext keeps,
// per spec §3/§6.4 (CONTEXT_WINDOW_SIZE default 5).
const ContextWindowSize = 5

// Session is a conversational session scoped to one patient.
type Session struct {
	SessionID string
	PatientID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session's TTL has elapsed as of now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ConversationTurn is one question/answer pair within a session.
type ConversationTurn struct {
	Query      *StructuredQuery
	Response   *UIResponse
	AskedAt    time.Time
	AnsweredAt time.Time
}

// ConversationContext is the sliding-window memory for a session: the most
// recent turns (bounded at ContextWindowSize, oldest evicted first) plus the
// fields follow-up resolution inherits from.
type ConversationContext struct {
	Turns              []*ConversationTurn
	LastEntities       []QueryEntity
	LastTemporalFilter *TemporalFilter
	LastIntent         Intent
	UpdatedAt          time.Time
}

// AppendTurn appends a turn, evicting the oldest if the window would
// otherwise exceed ContextWindowSize.
func (c *ConversationContext) AppendTurn(t *ConversationTurn) {
	c.Turns = append(c.Turns, t)
	if len(c.Turns) > ContextWindowSize {
		c.Turns = c.Turns[len(c.Turns)-ContextWindowSize:]
	}
}
