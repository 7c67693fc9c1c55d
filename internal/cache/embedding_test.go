package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_PutThenGetReturnsStoredVector(t *testing.T) {
	c := NewEmbeddingCache()
	c.Put("what medications is the patient on", []float32{0.1, 0.2, 0.3})

	vec, ok := c.Get("what medications is the patient on")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbeddingCache_GetMissReturnsFalse(t *testing.T) {
	c := NewEmbeddingCache()
	_, ok := c.Get("never stored")
	assert.False(t, ok)
}

func TestEmbeddingKey_NormalizesWhitespaceAndCase(t *testing.T) {
	assert.Equal(t, EmbeddingKey("Blood  Pressure"), EmbeddingKey("blood pressure"))
	assert.Equal(t, EmbeddingKey(" metformin "), EmbeddingKey("metformin"))
}

func TestEmbeddingKey_DifferentTextDifferentKey(t *testing.T) {
	assert.NotEqual(t, EmbeddingKey("metformin"), EmbeddingKey("lisinopril"))
}

func TestEmbeddingCache_LenReflectsStoredEntries(t *testing.T) {
	c := NewEmbeddingCache()
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	assert.Equal(t, 2, c.Len())
}
