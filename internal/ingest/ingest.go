// Package ingest loads legal source documents into the vector collection.
package ingest

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"casebeam/internal/embedding"
	"casebeam/internal/vectordb"
)

// pointNamespace seeds deterministic point ids so re-ingesting a file
// overwrites its previous points.
var pointNamespace = uuid.MustParse("5b6f1c52-7e0a-4c1d-9a43-2f8d1e6b9c07")

var defaultExtensions = []string{".txt", ".md"}

// Options control one ingest run.
type Options struct {
	// Force re-ingests files whose content has not changed.
	Force bool
	// Prune removes documents whose files are no longer matched.
	Prune bool
	// Progress is called after each file.
	Progress func(done, total int, file string)
}

// Result summarizes an ingest run.
type Result struct {
	FilesScanned int
	FilesIndexed int
	FilesSkipped int
	FilesPruned  int
	Chunks       int
	Errors       []string
	Duration     time.Duration
}

type Ingester struct {
	embedder  embedding.Embedder
	store     vectordb.Store
	chunker   *SentenceChunker
	manifest  *Manifest
	batchSize int

	ensured bool
}

func New(e embedding.Embedder, s vectordb.Store, c *SentenceChunker, m *Manifest, batchSize int) *Ingester {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Ingester{embedder: e, store: s, chunker: c, manifest: m, batchSize: batchSize}
}

// DocumentID derives a stable id from a slash-separated relative path.
func DocumentID(relPath string) string {
	sum := sha1.Sum([]byte(relPath))
	return hex.EncodeToString(sum[:])[:16]
}

// PointID is the vector point id of one chunk.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID+":"+strconv.Itoa(chunkIndex))).String()
}

// Match walks root and returns the sorted, slash-separated relative paths
// of ingestible files matched by any of the glob patterns.
func Match(root string, patterns []string) ([]string, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(defaultExtensions, strings.ToLower(filepath.Ext(p))) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				out = append(out, rel)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Run ingests every file under root matched by patterns.
func (ing *Ingester) Run(ctx context.Context, root string, patterns []string, opts Options) (*Result, error) {
	start := time.Now()
	files, err := Match(root, patterns)
	if err != nil {
		return nil, err
	}

	res := &Result{FilesScanned: len(files)}
	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		indexed, chunks, err := ing.ingestFile(ctx, root, rel, opts.Force)
		switch {
		case err != nil:
			log.Printf("[ingest] %s: %v", rel, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rel, err))
		case indexed:
			res.FilesIndexed++
			res.Chunks += chunks
		default:
			res.FilesSkipped++
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(files), rel)
		}
	}

	if opts.Prune {
		n, err := ing.prune(ctx, files)
		if err != nil {
			return res, err
		}
		res.FilesPruned = n
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (ing *Ingester) ingestFile(ctx context.Context, root, rel string, force bool) (bool, int, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))
	content, err := os.ReadFile(full)
	if err != nil {
		return false, 0, err
	}
	md, rawMeta, err := loadMetadata(full)
	if err != nil {
		return false, 0, err
	}

	h := sha256.New()
	h.Write(content)
	h.Write(rawMeta)
	hash := hex.EncodeToString(h.Sum(nil))

	prev, found, err := ing.manifest.Get(rel)
	if err != nil {
		return false, 0, err
	}
	if found && !force && prev.Hash == hash {
		return false, 0, nil
	}

	docID := DocumentID(rel)
	chunks := ing.chunker.Chunk(string(content))
	if len(chunks) == 0 {
		return false, 0, fmt.Errorf("no text")
	}

	if found {
		if err := ing.store.DeleteDocument(ctx, docID); err != nil {
			return false, 0, fmt.Errorf("delete old chunks: %w", err)
		}
	}

	for i := 0; i < len(chunks); i += ing.batchSize {
		batch := chunks[i:min(i+ing.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}
		vectors, err := ing.embedder.Embed(ctx, texts, embedding.TaskDocument)
		if err != nil {
			return false, 0, fmt.Errorf("embed: %w", err)
		}
		if len(vectors) != len(batch) {
			return false, 0, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(batch))
		}
		if !ing.ensured {
			if err := ing.store.EnsureCollection(ctx, len(vectors[0])); err != nil {
				return false, 0, err
			}
			ing.ensured = true
		}

		points := make([]vectordb.Point, len(batch))
		for j, c := range batch {
			points[j] = vectordb.Point{
				ID:     PointID(docID, c.Index),
				Vector: vectors[j],
				Payload: vectordb.Payload{
					DocumentID:   docID,
					ChunkIndex:   c.Index,
					Text:         c.Text,
					Title:        md.Title,
					Citation:     md.Citation,
					Jurisdiction: md.Jurisdiction,
					DocType:      md.DocType,
					Year:         md.Year,
					URL:          md.URL,
				},
			}
		}
		if err := ing.store.Upsert(ctx, points); err != nil {
			return false, 0, fmt.Errorf("upsert: %w", err)
		}
	}

	err = ing.manifest.Put(rel, Entry{
		Hash:       hash,
		DocumentID: docID,
		Chunks:     len(chunks),
		IngestedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, 0, err
	}
	return true, len(chunks), nil
}

func (ing *Ingester) prune(ctx context.Context, matched []string) (int, error) {
	keep := make(map[string]bool, len(matched))
	for _, m := range matched {
		keep[m] = true
	}
	entries, err := ing.manifest.Entries()
	if err != nil {
		return 0, err
	}
	n := 0
	for rel, e := range entries {
		if keep[rel] {
			continue
		}
		if err := ing.store.DeleteDocument(ctx, e.DocumentID); err != nil {
			return n, fmt.Errorf("prune %s: %w", rel, err)
		}
		if err := ing.manifest.Delete(rel); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
