package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/types"
)

func TestQueryResultCache_PutThenGetReturnsStoredResponse(t *testing.T) {
	c := NewQueryResultCache()
	resp := &types.UIResponse{QueryID: "q1", ShortAnswer: "metformin 500mg"}
	filters := map[string]any{"artifact_type": "medication"}

	c.Put("what medications", "P1", filters, resp)
	got, ok := c.Get("what medications", "P1", filters)
	require.True(t, ok)
	assert.Same(t, resp, got)
}

func TestQueryResultCache_DifferentPatientIsDifferentKey(t *testing.T) {
	c := NewQueryResultCache()
	c.Put("what medications", "P1", nil, &types.UIResponse{QueryID: "q1"})
	_, ok := c.Get("what medications", "P2", nil)
	assert.False(t, ok)
}

func TestQueryKey_SameFiltersDifferentMapInstanceSameKey(t *testing.T) {
	k1 := QueryKey("q", "P1", map[string]any{"a": "1", "b": "2"})
	k2 := QueryKey("q", "P1", map[string]any{"b": "2", "a": "1"})
	assert.Equal(t, k1, k2)
}

func TestQueryKey_NilFiltersDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { QueryKey("q", "P1", nil) })
}
