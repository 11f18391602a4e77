package ingest

import (
	"regexp"
	"strings"
)

// Chunk is a run of consecutive sentences of one document.
type Chunk struct {
	Index int
	Text  string
}

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	// overlap must leave room to advance
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?s)[^.!?]+(?:[.!?]+["')\]]*|$)`),
	}
}

func (c *SentenceChunker) sentences(content string) []string {
	content = strings.Join(strings.Fields(content), " ")
	var out []string
	for _, s := range c.splitter.FindAllString(content, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *SentenceChunker) Chunk(content string) []Chunk {
	sentences := c.sentences(content)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	i := 0
	for i < len(sentences) {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(sentences[i:end], " "),
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}
