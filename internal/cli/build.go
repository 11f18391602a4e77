package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casebeam/internal/config"
	"casebeam/internal/embedding"
	"casebeam/internal/llm"
	"casebeam/internal/mailer"
	"casebeam/internal/rag"
	"casebeam/internal/vectordb"
)

// vectorStore is a vectordb.Store plus whatever must be released on exit.
type vectorStore struct {
	vectordb.Store
	close func() error
}

func (v vectorStore) Close() error {
	if v.close == nil {
		return nil
	}
	return v.close()
}

func newModel(ctx context.Context, c *config.Config) (*llm.Gemini, error) {
	key := config.Secret(c.LLM.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%s is not set", c.LLM.APIKeyEnv)
	}
	return llm.NewGemini(ctx, key, c.LLM.Model, c.LLM.Temperature)
}

// newEmbedder builds the configured embedder. model may be nil when the
// provider does not need the Gemini client.
func newEmbedder(ctx context.Context, c *config.Config, model *llm.Gemini) (embedding.Embedder, error) {
	e := c.Embedding
	switch e.Provider {
	case "gemini":
		if model == nil {
			key := config.Secret(e.APIKeyEnv)
			if key == "" {
				return nil, fmt.Errorf("%s is not set", e.APIKeyEnv)
			}
			var err error
			model, err = llm.NewGemini(ctx, key, c.LLM.Model, c.LLM.Temperature)
			if err != nil {
				return nil, err
			}
		}
		return embedding.NewGeminiEmbedder(model.Client(), e.Model, e.Dimension, e.BatchSize), nil
	case "openai":
		return embedding.NewOpenAIEmbedder(config.Secret(e.APIKeyEnv), e.Model, e.BaseURL,
			e.Dimension, e.BatchSize, time.Duration(e.TimeoutSecs)*time.Second)
	case "mock":
		return embedding.NewMockEmbedder(e.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", e.Provider)
	}
}

func newVectorStore(c *config.Config) (vectorStore, error) {
	v := c.VectorDB
	switch v.Provider {
	case "qdrant":
		return vectorStore{Store: vectordb.NewQdrant(vectordb.QdrantConfig{
			URL:        v.URL,
			APIKey:     config.Secret(v.APIKeyEnv),
			Collection: v.Collection,
			Timeout:    time.Duration(v.TimeoutSecs) * time.Second,
		})}, nil
	case "local":
		s, err := vectordb.OpenLocal(v.Path)
		if err != nil {
			return vectorStore{}, fmt.Errorf("open %s: %w", v.Path, err)
		}
		return vectorStore{Store: s, close: s.Close}, nil
	case "memory":
		return vectorStore{Store: vectordb.NewMemory()}, nil
	default:
		return vectorStore{}, fmt.Errorf("unsupported vectordb provider: %s", v.Provider)
	}
}

func newRetriever(c *config.Config, e embedding.Embedder, s vectordb.Store) *rag.Retriever {
	r := c.Retrieval
	return rag.NewRetriever(e, s, rag.NewQueryCache(r.CacheSize, r.CacheTTL), r.Overfetch, r.MinScore)
}

func newMailer(c *config.Config) (mailer.Sender, error) {
	m := c.Mail
	switch m.Provider {
	case "resend":
		return mailer.NewResend(config.Secret(m.APIKeyEnv), m.BaseURL, m.From)
	case "log":
		return mailer.Log{}, nil
	default:
		return nil, errors.New("unsupported mail provider: " + m.Provider)
	}
}
