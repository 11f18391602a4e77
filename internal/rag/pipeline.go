package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"casebeam/internal/llm"
	"casebeam/internal/models"
	"casebeam/internal/vectordb"
)

const (
	maxExcerptChars = 1500
	maxDetailChars  = 60000
	maxHistoryTurns = 10
)

var ErrDocumentNotFound = errors.New("document not found in vector collection")

// Searcher is the retrieval side of the pipeline.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Document, error)
	Chunks(ctx context.Context, documentID string) ([]vectordb.Hit, error)
}

// Pipeline turns questions into summarized search results and grounded
// answers.
type Pipeline struct {
	search Searcher
	model  llm.Model
	topK   int
}

func NewPipeline(s Searcher, m llm.Model, topK int) *Pipeline {
	if topK <= 0 {
		topK = 8
	}
	return &Pipeline{search: s, model: m, topK: topK}
}

// Results retrieves documents for the question and has the model summarize
// and score them. Rows come back without ids or owners.
func (p *Pipeline) Results(ctx context.Context, question string, q Query) ([]models.SearchResult, error) {
	if q.Limit <= 0 {
		q.Limit = p.topK
	}
	if q.Text == "" {
		q.Text = question
	}
	docs, err := p.search.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []models.SearchResult{}, nil
	}

	summaries, err := p.summarize(ctx, question, docs)
	if err != nil {
		log.Printf("[rag] summarize failed, using excerpts: %v", err)
	}

	results := make([]models.SearchResult, 0, len(docs))
	for _, d := range docs {
		r := models.SearchResult{
			DocumentID:   d.DocumentID,
			Title:        d.Title,
			Citation:     d.Citation,
			Jurisdiction: d.Jurisdiction,
			DocType:      d.DocType,
			Year:         d.Year,
			URL:          d.URL,
			Excerpt:      clip(d.Excerpt, maxExcerptChars),
			Summary:      clip(d.Excerpt, 400),
			Relevance:    scoreToRelevance(d.Score),
		}
		if s, ok := summaries[d.DocumentID]; ok {
			if s.Summary != "" {
				r.Summary = s.Summary
			}
			if s.scored {
				r.Relevance = s.Relevance
			}
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	return results, nil
}

// More is Results with already shown documents excluded.
func (p *Pipeline) More(ctx context.Context, question string, q Query, seen []string) ([]models.SearchResult, error) {
	q.Filter.ExcludeDocuments = append(append([]string{}, q.Filter.ExcludeDocuments...), seen...)
	return p.Results(ctx, question, q)
}

type docSummary struct {
	DocumentID string
	Summary    string
	Relevance  int
	// scored is false when the model gave no usable relevance.
	scored bool
}

type rawSummary struct {
	DocumentID string          `json:"document_id"`
	Summary    string          `json:"summary"`
	Relevance  json.RawMessage `json:"relevance"`
}

func (p *Pipeline) summarize(ctx context.Context, question string, docs []Document) (map[string]docSummary, error) {
	text, err := p.model.Generate(ctx, llm.Request{
		System: summarizeSystem,
		Prompt: summarizePrompt(question, docs),
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return parseSummaries(text)
}

// parseSummaries accepts {"results":[...]} or a bare array, optionally in a
// markdown code fence. Entries that do not decode are skipped so the rest of
// the batch survives.
func parseSummaries(text string) (map[string]docSummary, error) {
	text = stripFence(text)

	var list []json.RawMessage
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return nil, fmt.Errorf("parse summaries: %w", err)
		}
	} else {
		var wrapped struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil, fmt.Errorf("parse summaries: %w", err)
		}
		list = wrapped.Results
	}

	out := make(map[string]docSummary, len(list))
	for i, raw := range list {
		var rs rawSummary
		if err := json.Unmarshal(raw, &rs); err != nil {
			log.Printf("[rag] summary %d skipped: %v", i, err)
			continue
		}
		if rs.DocumentID == "" {
			continue
		}
		s := docSummary{DocumentID: rs.DocumentID, Summary: rs.Summary}
		s.Relevance, s.scored = parseRelevance(rs.Relevance)
		out[rs.DocumentID] = s
	}
	return out, nil
}

// parseRelevance reads a number or a quoted number, rounded and clamped.
func parseRelevance(raw json.RawMessage) (int, bool) {
	v := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(raw)), `"`))
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return int(math.Round(math.Max(0, math.Min(100, f)))), true
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func scoreToRelevance(score float32) int {
	return clampRelevance(int(score*100 + 0.5))
}

func clampRelevance(n int) int {
	return max(0, min(100, n))
}

// Detail writes a long-form analysis of one result from all of its chunks.
func (p *Pipeline) Detail(ctx context.Context, question string, r models.SearchResult) (string, error) {
	chunks, err := p.search.Chunks(ctx, r.DocumentID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", ErrDocumentNotFound
	}

	var doc strings.Builder
	for _, c := range chunks {
		if doc.Len() > 0 {
			doc.WriteString("\n\n")
		}
		doc.WriteString(c.Payload.Text)
	}
	if question == "" {
		question = r.Title
	}

	text, err := p.model.Generate(ctx, llm.Request{
		System: detailSystem,
		Prompt: detailPrompt(question, r, clip(doc.String(), maxDetailChars)),
	})
	if err != nil {
		return "", fmt.Errorf("detail: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Condense turns a follow-up question into a standalone search query. It
// falls back to the question itself.
func (p *Pipeline) Condense(ctx context.Context, history []llm.Turn, question string) string {
	if len(history) == 0 {
		return question
	}

	var convo strings.Builder
	for _, t := range trimHistory(history) {
		fmt.Fprintf(&convo, "%s: %s\n", t.Role, clip(t.Text, 800))
	}
	fmt.Fprintf(&convo, "\nLatest message: %s", question)

	text, err := p.model.Generate(ctx, llm.Request{
		System:      condenseSystem,
		Prompt:      convo.String(),
		Temperature: new(float32),
	})
	if err != nil {
		log.Printf("[rag] condense failed, using question: %v", err)
		return question
	}
	query := strings.Trim(strings.TrimSpace(text), `"`)
	if query == "" || strings.Contains(query, "\n") {
		return question
	}
	return query
}

// Answer streams a grounded reply. onText receives each delta; the full
// text is returned even when the stream is cut short.
func (p *Pipeline) Answer(ctx context.Context, history []llm.Turn, question string, results []models.SearchResult, onText func(string) error) (string, error) {
	return p.model.Stream(ctx, llm.Request{
		System:  answerSystem + "\n\n" + sourcesBlock(results),
		History: trimHistory(history),
		Prompt:  question,
	}, onText)
}

func trimHistory(history []llm.Turn) []llm.Turn {
	if len(history) > maxHistoryTurns {
		return history[len(history)-maxHistoryTurns:]
	}
	return history
}
