package vectordb

import (
	"context"
	"slices"
)

// Payload is stored with every chunk vector.
type Payload struct {
	DocumentID   string `json:"document_id"`
	ChunkIndex   int    `json:"chunk_index"`
	Text         string `json:"text"`
	Title        string `json:"title"`
	Citation     string `json:"citation,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	DocType      string `json:"doc_type,omitempty"`
	Year         int    `json:"year,omitempty"`
	URL          string `json:"url,omitempty"`
}

type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type Hit struct {
	ID      string
	Score   float32
	Payload Payload
}

// Filter restricts a search. Zero values are not applied.
type Filter struct {
	Jurisdictions    []string `json:"jurisdictions,omitempty"`
	DocTypes         []string `json:"doc_types,omitempty"`
	YearFrom         int      `json:"year_from,omitempty"`
	YearTo           int      `json:"year_to,omitempty"`
	ExcludeDocuments []string `json:"-"`
}

// Matches reports whether the payload passes the filter.
func (f Filter) Matches(p Payload) bool {
	if len(f.Jurisdictions) > 0 && !slices.Contains(f.Jurisdictions, p.Jurisdiction) {
		return false
	}
	if len(f.DocTypes) > 0 && !slices.Contains(f.DocTypes, p.DocType) {
		return false
	}
	if f.YearFrom > 0 && p.Year < f.YearFrom {
		return false
	}
	if f.YearTo > 0 && p.Year > f.YearTo {
		return false
	}
	return !slices.Contains(f.ExcludeDocuments, p.DocumentID)
}

type SearchRequest struct {
	Vector   []float32
	Filter   Filter
	Limit    int
	MinScore float32
}

// Store is a collection of chunk vectors.
type Store interface {
	// EnsureCollection creates the collection when it does not exist.
	EnsureCollection(ctx context.Context, dimension int) error

	Upsert(ctx context.Context, points []Point) error

	// Search returns the nearest chunks, best first.
	Search(ctx context.Context, req SearchRequest) ([]Hit, error)

	// Document returns every chunk of a document in chunk order.
	Document(ctx context.Context, documentID string) ([]Hit, error)

	DeleteDocument(ctx context.Context, documentID string) error
}

func sortByChunk(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		return a.Payload.ChunkIndex - b.Payload.ChunkIndex
	})
}
