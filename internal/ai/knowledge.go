package ai

import (
	"context"
	"math"

	"github.com/openai/openai-go/v3"

	"concierge/internal/store"
)

// Embedder turns text into a vector comparable with the stored snippet
// embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SnippetSource provides a salon's knowledge corpus.
type SnippetSource interface {
	KnowledgeSnippets(ctx context.Context, salonID string) ([]store.KnowledgeSnippet, error)
}

// Retriever picks the best-matching knowledge snippet for an inbound message.
// Below Threshold the snippet is omitted entirely rather than injecting
// irrelevant content into the prompt.
type Retriever struct {
	Embedder  Embedder
	Source    SnippetSource
	Threshold float64
}

// Context returns the snippet to include in the system prompt, or "" when
// nothing clears the threshold (or the corpus is empty).
func (r *Retriever) Context(ctx context.Context, salonID, query string) (string, float64, error) {
	snippets, err := r.Source.KnowledgeSnippets(ctx, salonID)
	if err != nil {
		return "", 0, err
	}
	if len(snippets) == 0 {
		return "", 0, nil
	}

	qv, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return "", 0, err
	}

	best, bestScore := "", -1.0
	for _, sn := range snippets {
		score := cosine(qv, sn.Embedding)
		if score > bestScore {
			best, bestScore = sn.Content, score
		}
	}
	if bestScore < r.Threshold {
		return "", bestScore, nil
	}
	return best, bestScore, nil
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// OpenAIEmbedder implements Embedder on the OpenAI embeddings API.
type OpenAIEmbedder struct {
	Client openai.Client
	Model  openai.EmbeddingModel
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	model := e.Model
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	res, err := e.Client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, errNoEmbedding
	}
	return res.Data[0].Embedding, nil
}
