// Package embedder declares the external embedding-model collaborator
// contract and its OpenAI-backed adapter, the vector half of the
// retrieval pipeline's dependency surface (the Generator is the other
// half, in internal/generator).
package embedder

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// Embedder converts text into dense vectors for similarity search.
// Implementations must return one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// OpenAIEmbedder is the default Embedder, backed by the OpenAI embeddings
// API. Like the teacher's OpenAIEmbeddingModel, it wraps a vendor client and
// only translates requests/responses — no retry or circuit-breaking logic
// lives here, that is the Circuit Breaker/Cache Manager's job higher up the
// call chain.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder for the given model and its
// known output dimensionality (OpenAI doesn't report this at call time).
func NewOpenAIEmbedder(client *openai.Client, model string, dimensions int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model, dimensions: dimensions}
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "embedder.Embed", "openai embeddings request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, xerrors.New(xerrors.KindInternal, "embedder.Embed",
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}
