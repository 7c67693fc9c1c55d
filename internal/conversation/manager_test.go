package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

func TestCreateSession_GeneratesExpiringSession(t *testing.T) {
	m := NewManager()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	session, err := m.CreateSession("P1", now)
	require.NoError(t, err)
	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, "P1", session.PatientID)
	assert.Equal(t, now.Add(types.SessionTTL), session.ExpiresAt)
}

func TestCreateSession_RejectsEmptyPatientID(t *testing.T) {
	m := NewManager()
	_, err := m.CreateSession("", time.Now())
	require.Error(t, err)
	assert.Equal(t, xerrors.KindValidation, xerrors.KindOf(err))
}

func TestUpdateContext_AppendsTurnAndRefreshesLastFields(t *testing.T) {
	m := NewManager()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	session, err := m.CreateSession("P1", now)
	require.NoError(t, err)

	query := &types.StructuredQuery{
		OriginalQuery: "what medications is the patient on",
		Intent:        types.IntentRetrieveMedications,
		Entities:      []types.QueryEntity{{Text: "metformin", Type: "MEDICATION"}},
		ProcessedAt:   now,
	}
	response := &types.UIResponse{ShortAnswer: "metformin 500mg"}

	err = m.UpdateContext(session.SessionID, query, response, now.Add(time.Second))
	require.NoError(t, err)

	ctx, err := m.GetContext(session.SessionID)
	require.NoError(t, err)
	require.Len(t, ctx.Turns, 1)
	assert.Equal(t, response, ctx.Turns[0].Response)
	assert.Equal(t, types.IntentRetrieveMedications, ctx.LastIntent)
	require.Len(t, ctx.LastEntities, 1)
	assert.Equal(t, "metformin", ctx.LastEntities[0].Text)
}

func TestUpdateContext_EvictsOldestTurnPastWindowSize(t *testing.T) {
	m := NewManager()
	now := time.Now()
	session, err := m.CreateSession("P1", now)
	require.NoError(t, err)

	for i := 0; i < types.ContextWindowSize+2; i++ {
		q := &types.StructuredQuery{OriginalQuery: "q", ProcessedAt: now}
		require.NoError(t, m.UpdateContext(session.SessionID, q, &types.UIResponse{}, now))
	}

	ctx, err := m.GetContext(session.SessionID)
	require.NoError(t, err)
	assert.Len(t, ctx.Turns, types.ContextWindowSize)
}

func TestUpdateContext_RejectsExpiredSession(t *testing.T) {
	m := NewManager()
	now := time.Now()
	session, err := m.CreateSession("P1", now)
	require.NoError(t, err)

	q := &types.StructuredQuery{OriginalQuery: "q", ProcessedAt: now}
	err = m.UpdateContext(session.SessionID, q, &types.UIResponse{}, now.Add(types.SessionTTL+time.Minute))
	require.Error(t, err)
	assert.Equal(t, xerrors.KindValidation, xerrors.KindOf(err))
}

func TestUpdateContext_UnknownSessionReturnsNotFound(t *testing.T) {
	m := NewManager()
	q := &types.StructuredQuery{OriginalQuery: "q"}
	err := m.UpdateContext("missing", q, &types.UIResponse{}, time.Now())
	require.Error(t, err)
	assert.Equal(t, xerrors.KindNotFound, xerrors.KindOf(err))
}

func TestResolveFollowUp_InheritsEntitiesWhenNewQueryCarriesNone(t *testing.T) {
	m := NewManager()
	now := time.Now()
	session, err := m.CreateSession("P1", now)
	require.NoError(t, err)

	priorEntities := []types.QueryEntity{{Text: "lisinopril", Type: "MEDICATION"}}
	priorQuery := &types.StructuredQuery{
		OriginalQuery: "what medications is the patient on",
		Intent:        types.IntentRetrieveMedications,
		Entities:      priorEntities,
		ProcessedAt:   now,
	}
	require.NoError(t, m.UpdateContext(session.SessionID, priorQuery, &types.UIResponse{}, now))

	followUp := types.StructuredQuery{OriginalQuery: "what about the dosage", ProcessedAt: now}
	resolved, err := m.ResolveFollowUp(session.SessionID, followUp, now)
	require.NoError(t, err)
	assert.Equal(t, priorEntities, resolved.Entities)
	assert.Equal(t, types.IntentRetrieveMedications, resolved.Intent)
}

func TestResolveFollowUp_NewEntitiesTakePrecedenceOverInherited(t *testing.T) {
	m := NewManager()
	now := time.Now()
	session, err := m.CreateSession("P1", now)
	require.NoError(t, err)

	priorQuery := &types.StructuredQuery{
		OriginalQuery: "what medications is the patient on",
		Entities:      []types.QueryEntity{{Text: "lisinopril", Type: "MEDICATION"}},
		ProcessedAt:   now,
	}
	require.NoError(t, m.UpdateContext(session.SessionID, priorQuery, &types.UIResponse{}, now))

	followUp := types.StructuredQuery{
		OriginalQuery: "what about her blood pressure readings",
		Entities:      []types.QueryEntity{{Text: "blood pressure", Type: "VITAL"}},
		ProcessedAt:   now,
	}
	resolved, err := m.ResolveFollowUp(session.SessionID, followUp, now)
	require.NoError(t, err)
	require.Len(t, resolved.Entities, 1)
	assert.Equal(t, "blood pressure", resolved.Entities[0].Text)
}

func TestResolveFollowUp_NonFollowUpQueryIsReturnedUnchanged(t *testing.T) {
	m := NewManager()
	now := time.Now()
	session, err := m.CreateSession("P1", now)
	require.NoError(t, err)

	priorQuery := &types.StructuredQuery{
		OriginalQuery: "what medications is the patient on",
		Entities:      []types.QueryEntity{{Text: "lisinopril", Type: "MEDICATION"}},
		ProcessedAt:   now,
	}
	require.NoError(t, m.UpdateContext(session.SessionID, priorQuery, &types.UIResponse{}, now))

	fresh := types.StructuredQuery{OriginalQuery: "list all active conditions", ProcessedAt: now}
	resolved, err := m.ResolveFollowUp(session.SessionID, fresh, now)
	require.NoError(t, err)
	assert.Empty(t, resolved.Entities)
}

func TestResolveFollowUp_RejectsExpiredSession(t *testing.T) {
	m := NewManager()
	now := time.Now()
	session, err := m.CreateSession("P1", now)
	require.NoError(t, err)

	q := types.StructuredQuery{OriginalQuery: "what about that"}
	_, err = m.ResolveFollowUp(session.SessionID, q, now.Add(types.SessionTTL+time.Minute))
	require.Error(t, err)
	assert.Equal(t, xerrors.KindValidation, xerrors.KindOf(err))
}

func TestCleanupExpiredSessions_RemovesOnlyExpiredSessions(t *testing.T) {
	m := NewManager()
	now := time.Now()
	fresh, err := m.CreateSession("P1", now)
	require.NoError(t, err)
	stale, err := m.CreateSession("P2", now.Add(-types.SessionTTL-time.Minute))
	require.NoError(t, err)

	removed := m.CleanupExpiredSessions(now)
	assert.Equal(t, 1, removed)

	_, err = m.GetSession(fresh.SessionID)
	assert.NoError(t, err)
	_, err = m.GetSession(stale.SessionID)
	assert.Error(t, err)
}

func TestCleanupExpiredSessions_IsIdempotent(t *testing.T) {
	m := NewManager()
	now := time.Now()
	_, err := m.CreateSession("P1", now.Add(-types.SessionTTL-time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, m.CleanupExpiredSessions(now))
	assert.Equal(t, 0, m.CleanupExpiredSessions(now))
}

func TestIsFollowUp_DetectsLexiconPhrases(t *testing.T) {
	assert.True(t, isFollowUp("What about her allergies?"))
	assert.True(t, isFollowUp("And when was the last visit?"))
	assert.True(t, isFollowUp("Tell me more about that condition"))
	assert.False(t, isFollowUp("List all active medications"))
}
