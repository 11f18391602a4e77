package rag

import (
	"context"
	"fmt"
	"strings"

	"casebeam/internal/embedding"
	"casebeam/internal/vectordb"
)

// Query is a filtered similarity search over the legal corpus.
type Query struct {
	Text   string          `json:"text"`
	Filter vectordb.Filter `json:"filter"`
	Limit  int             `json:"limit"`
}

// Document is the best-matching chunk of one source document.
type Document struct {
	DocumentID   string  `json:"document_id"`
	Title        string  `json:"title"`
	Citation     string  `json:"citation"`
	Jurisdiction string  `json:"jurisdiction"`
	DocType      string  `json:"doc_type"`
	Year         int     `json:"year"`
	URL          string  `json:"url"`
	Excerpt      string  `json:"excerpt"`
	ChunkIndex   int     `json:"chunk_index"`
	Score        float32 `json:"score"`
}

type Retriever struct {
	embedder  embedding.Embedder
	store     vectordb.Store
	cache     *QueryCache
	overfetch int
	minScore  float32
}

// NewRetriever returns a retriever. cache may be nil. overfetch is the number
// of chunks fetched per requested document before grouping.
func NewRetriever(e embedding.Embedder, s vectordb.Store, cache *QueryCache, overfetch int, minScore float32) *Retriever {
	if overfetch <= 0 {
		overfetch = 4
	}
	return &Retriever{embedder: e, store: s, cache: cache, overfetch: overfetch, minScore: minScore}
}

// Search embeds the query text, runs the filtered vector search and returns
// at most q.Limit documents, best first.
func (r *Retriever) Search(ctx context.Context, q Query) ([]Document, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("empty query")
	}
	if q.Limit <= 0 {
		q.Limit = 5
	}
	if r.cache != nil {
		if docs, ok := r.cache.Get(q); ok {
			return docs, nil
		}
	}

	vecs, err := r.embedder.Embed(ctx, []string{q.Text}, embedding.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	hits, err := r.store.Search(ctx, vectordb.SearchRequest{
		Vector:   vecs[0],
		Filter:   q.Filter,
		Limit:    q.Limit * r.overfetch,
		MinScore: r.minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	docs := groupByDocument(hits, q.Limit)
	if r.cache != nil {
		r.cache.Put(q, docs)
	}
	return docs, nil
}

// Invalidate drops cached results, typically after an ingest.
func (r *Retriever) Invalidate() {
	if r.cache != nil {
		r.cache.Invalidate()
	}
}

// Chunks returns every chunk of a document in order.
func (r *Retriever) Chunks(ctx context.Context, documentID string) ([]vectordb.Hit, error) {
	hits, err := r.store.Document(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	return hits, nil
}

// groupByDocument keeps the first (best) hit of each document. hits must be
// sorted best first.
func groupByDocument(hits []vectordb.Hit, limit int) []Document {
	seen := make(map[string]bool)
	docs := []Document{}
	for _, h := range hits {
		p := h.Payload
		if p.DocumentID == "" || seen[p.DocumentID] {
			continue
		}
		seen[p.DocumentID] = true
		docs = append(docs, Document{
			DocumentID:   p.DocumentID,
			Title:        p.Title,
			Citation:     p.Citation,
			Jurisdiction: p.Jurisdiction,
			DocType:      p.DocType,
			Year:         p.Year,
			URL:          p.URL,
			Excerpt:      p.Text,
			ChunkIndex:   p.ChunkIndex,
			Score:        h.Score,
		})
		if len(docs) == limit {
			break
		}
	}
	return docs
}
