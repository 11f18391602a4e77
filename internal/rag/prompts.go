package rag

import (
	"fmt"
	"strings"

	"casebeam/internal/models"
)

const summarizeSystem = `You are a legal research assistant. For each retrieved document, write a two to three sentence summary of what it holds or provides, focused on the user's question, and rate its relevance to the question from 0 to 100.
Respond with JSON only, in the form {"results":[{"document_id":"...","summary":"...","relevance":0}]}. Include every document id you were given. Do not invent documents.`

const condenseSystem = `Rewrite the user's latest message as a standalone search query for a legal document database. Resolve pronouns and references using the conversation. Reply with the query only, without quotes or explanation.`

const answerSystem = `You are CaseBeam, a legal research assistant for practicing lawyers.
Answer the question using only the numbered sources below. Cite sources inline as [n]. If the sources do not answer the question, say so plainly and suggest how to refine the search. Do not present the answer as legal advice.`

const detailSystem = `You are a legal research assistant. Analyze the full document below and write a markdown brief with these sections: Facts, Issues, Holding, Reasoning, Relevance. The Relevance section explains how the document bears on the user's question. Quote sparingly and only from the document.`

func summarizePrompt(question string, docs []Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nDocuments:\n", question)
	for _, d := range docs {
		fmt.Fprintf(&b, "\n--- document_id: %s ---\nTitle: %s\n", d.DocumentID, d.Title)
		if d.Citation != "" {
			fmt.Fprintf(&b, "Citation: %s\n", d.Citation)
		}
		if d.Jurisdiction != "" || d.Year != 0 {
			fmt.Fprintf(&b, "Jurisdiction: %s  Year: %d\n", d.Jurisdiction, d.Year)
		}
		fmt.Fprintf(&b, "Excerpt:\n%s\n", clip(d.Excerpt, maxExcerptChars))
	}
	return b.String()
}

func sourcesBlock(results []models.SearchResult) string {
	if len(results) == 0 {
		return "Sources: none were found."
	}
	var b strings.Builder
	b.WriteString("Sources:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, r.Title)
		if r.Citation != "" {
			fmt.Fprintf(&b, ", %s", r.Citation)
		}
		if r.Jurisdiction != "" {
			fmt.Fprintf(&b, " (%s", r.Jurisdiction)
			if r.Year != 0 {
				fmt.Fprintf(&b, " %d", r.Year)
			}
			b.WriteString(")")
		}
		fmt.Fprintf(&b, "\nSummary: %s\nExcerpt: %s\n", r.Summary, clip(r.Excerpt, maxExcerptChars))
	}
	return b.String()
}

func detailPrompt(question string, r models.SearchResult, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nTitle: %s\n", question, r.Title)
	if r.Citation != "" {
		fmt.Fprintf(&b, "Citation: %s\n", r.Citation)
	}
	fmt.Fprintf(&b, "\nDocument:\n%s\n", text)
	return b.String()
}

// clip cuts s to at most n bytes on a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
