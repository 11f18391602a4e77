package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	batchSize int
}

// NewGeminiEmbedder reuses an existing client. A positive dimension asks the
// model for truncated output vectors.
func NewGeminiEmbedder(client *genai.Client, model string, dimension, batchSize int) *GeminiEmbedder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &GeminiEmbedder{client: client, model: model, dimension: dimension, batchSize: batchSize}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cfg := &genai.EmbedContentConfig{TaskType: string(task)}
	if e.dimension > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(e.dimension))
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		contents := make([]*genai.Content, 0, end-i)
		for _, t := range texts[i:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(resp.Embeddings) != end-i {
			return nil, fmt.Errorf("gemini embed: got %d vectors for %d texts", len(resp.Embeddings), end-i)
		}
		for _, emb := range resp.Embeddings {
			// truncated vectors are not unit length
			out = append(out, normalize(emb.Values))
		}
	}
	return out, nil
}

func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

func (e *GeminiEmbedder) ModelName() string {
	return e.model
}
