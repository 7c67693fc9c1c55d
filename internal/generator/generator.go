// Package generator declares the external language-model collaborator
// contract and its OpenAI-backed adapter, used by the Answer pipeline
// (spec §4.9) to turn retrieved, highlighted chunks into a short answer
// and a detailed summary.
package generator

import (
	"context"

	"github.com/openai/openai-go/v3"

	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// Request is everything the Generator needs to produce an answer: the
// user's question and the retrieved context it must ground the answer in.
type Request struct {
	Question      string
	ContextChunks []string
	SystemPrompt  string
}

// Result is the Generator's raw output, before the Response Builder
// attaches confidence and provenance.
type Result struct {
	ShortAnswer     string
	DetailedSummary string
}

// Generator produces a grounded answer from a question and retrieved
// context. Implementations must not fabricate facts absent from
// req.ContextChunks; that invariant is enforced by the system prompt, not
// by this interface.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// OpenAIGenerator is the default Generator, backed by the OpenAI chat
// completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator constructs an OpenAIGenerator for the given chat model.
func NewOpenAIGenerator(client *openai.Client, model string) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.SystemPrompt),
	}
	for _, chunk := range req.ContextChunks {
		messages = append(messages, openai.SystemMessage("Context: "+chunk))
	}
	messages = append(messages, openai.UserMessage(req.Question))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		return Result{}, xerrors.Wrap(xerrors.KindUnavailable, "generator.Generate", "openai chat request failed", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, xerrors.New(xerrors.KindInternal, "generator.Generate", "no choices returned")
	}

	content := resp.Choices[0].Message.Content
	return Result{
		ShortAnswer:     firstSentence(content),
		DetailedSummary: content,
	}, nil
}

// firstSentence extracts the short answer spec §4.9 wants as a distinct
// field, by taking the generator's response up to its first sentence
// terminator; the full response still carries the detailed summary.
func firstSentence(text string) string {
	for i, r := range text {
		if r == '.' || r == '\n' {
			return text[:i+1]
		}
	}
	return text
}
