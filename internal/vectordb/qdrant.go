package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Qdrant is a minimal REST client to Qdrant using cosine distance.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

var errNotFound = errors.New("qdrant: not found")

func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (q *Qdrant) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", q.url, q.collection, suffix)
}

// EnsureCollection creates the collection and its payload indexes if the
// collection is missing.
func (q *Qdrant) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	err := q.do(ctx, http.MethodGet, q.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errNotFound) {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, q.collectionURL(""), body, nil); err != nil {
		return err
	}

	indexes := map[string]string{
		"document_id":  "keyword",
		"jurisdiction": "keyword",
		"doc_type":     "keyword",
		"year":         "integer",
	}
	for field, schema := range indexes {
		idx := map[string]any{"field_name": field, "field_schema": schema}
		if err := q.do(ctx, http.MethodPut, q.collectionURL("/index?wait=true"), idx, nil); err != nil {
			return fmt.Errorf("create index %s: %w", field, err)
		}
	}
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, len(points))
	for i, p := range points {
		body[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	return q.do(ctx, http.MethodPut, q.collectionURL("/points?wait=true"), map[string]any{"points": body}, nil)
}

type qdrantPoint struct {
	ID      any     `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

func (p qdrantPoint) hit() Hit {
	return Hit{ID: fmt.Sprint(p.ID), Score: p.Score, Payload: p.Payload}
}

func (q *Qdrant) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := filterJSON(req.Filter); f != nil {
		body["filter"] = f
	}
	if req.MinScore > 0 {
		body["score_threshold"] = req.MinScore
	}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.collectionURL("/points/search"), body, &resp); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, p := range resp.Result {
		hits = append(hits, p.hit())
	}
	return hits, nil
}

// Document pages through the scroll API.
func (q *Qdrant) Document(ctx context.Context, documentID string) ([]Hit, error) {
	var hits []Hit
	var offset any
	for {
		body := map[string]any{
			"filter":       documentFilter(documentID),
			"limit":        256,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := q.do(ctx, http.MethodPost, q.collectionURL("/points/scroll"), body, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			hits = append(hits, p.hit())
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sortByChunk(hits)
	return hits, nil
}

func (q *Qdrant) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]any{"filter": documentFilter(documentID)}
	return q.do(ctx, http.MethodPost, q.collectionURL("/points/delete?wait=true"), body, nil)
}

func documentFilter(documentID string) map[string]any {
	return map[string]any{
		"must": []any{
			map[string]any{"key": "document_id", "match": map[string]any{"value": documentID}},
		},
	}
}

// filterJSON translates a Filter into Qdrant's filter syntax, or nil when
// nothing is set.
func filterJSON(f Filter) map[string]any {
	var must, mustNot []any
	if len(f.Jurisdictions) > 0 {
		must = append(must, map[string]any{"key": "jurisdiction", "match": map[string]any{"any": f.Jurisdictions}})
	}
	if len(f.DocTypes) > 0 {
		must = append(must, map[string]any{"key": "doc_type", "match": map[string]any{"any": f.DocTypes}})
	}
	if f.YearFrom > 0 || f.YearTo > 0 {
		r := map[string]any{}
		if f.YearFrom > 0 {
			r["gte"] = f.YearFrom
		}
		if f.YearTo > 0 {
			r["lte"] = f.YearTo
		}
		must = append(must, map[string]any{"key": "year", "range": r})
	}
	if len(f.ExcludeDocuments) > 0 {
		mustNot = append(mustNot, map[string]any{"key": "document_id", "match": map[string]any{"any": f.ExcludeDocuments}})
	}
	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	out := map[string]any{}
	if len(must) > 0 {
		out["must"] = must
	}
	if len(mustNot) > 0 {
		out["must_not"] = mustNot
	}
	return out
}

func (q *Qdrant) do(ctx context.Context, method, url string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
