package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Task tells the model what the vector will be used for.
type Task string

const (
	TaskQuery    Task = "RETRIEVAL_QUERY"
	TaskDocument Task = "RETRIEVAL_DOCUMENT"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string, task Task) ([][]float32, error)

	Dimension() int

	ModelName() string
}

// MockEmbedder hashes words into a fixed-size normalized vector. Texts that
// share words get similar vectors, which is enough for offline development
// and tests.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, e.dimension)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,;:!?\"'()[]")
			if word == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(word))
			v[h.Sum32()%uint32(e.dimension)] += 1
		}
		embeddings[i] = normalize(v)
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}
