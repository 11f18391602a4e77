package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var bucketPoints = []byte("points")

// Local is a brute-force cosine store for development. Vectors live in
// memory; when opened with a path they are persisted to a bbolt file and
// reloaded on open.
type Local struct {
	db        *bbolt.DB
	dimension int
	mu        sync.RWMutex
	points    map[string]storedPoint
}

type storedPoint struct {
	Vector  []float32 `json:"v"`
	Payload Payload   `json:"p"`
}

// NewMemory returns a Local store with no persistence.
func NewMemory() *Local {
	return &Local{points: make(map[string]storedPoint)}
}

// OpenLocal opens (or creates) a bbolt-backed store at path.
func OpenLocal(path string) (*Local, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector file: %w", err)
	}
	s := &Local{db: db, points: make(map[string]storedPoint)}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketPoints)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var p storedPoint
			if err := json.Unmarshal(v, &p); err != nil {
				return nil // Skip corrupted entries
			}
			s.points[string(k)] = p
			if s.dimension == 0 {
				s.dimension = len(p.Vector)
			}
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Local) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Len returns the number of stored points.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func (s *Local) EnsureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = dimension
	}
	if s.dimension != dimension {
		return fmt.Errorf("collection has dimension %d, want %d", s.dimension, dimension)
	}
	return nil
}

func (s *Local) Upsert(ctx context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if s.dimension != 0 && len(p.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(p.Vector))
		}
	}
	if s.db != nil {
		err := s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket(bucketPoints)
			for _, p := range points {
				data, err := json.Marshal(storedPoint{Vector: p.Vector, Payload: p.Payload})
				if err != nil {
					return err
				}
				if err := b.Put([]byte(p.ID), data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	for _, p := range points {
		s.points[p.ID] = storedPoint{Vector: p.Vector, Payload: p.Payload}
		if s.dimension == 0 {
			s.dimension = len(p.Vector)
		}
	}
	return nil
}

func (s *Local) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(req.Vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(req.Vector))
	}

	hits := make([]Hit, 0, len(s.points))
	for id, p := range s.points {
		if !req.Filter.Matches(p.Payload) {
			continue
		}
		score := float32(cosineSimilarity(req.Vector, p.Vector))
		if req.MinScore > 0 && score < req.MinScore {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score, Payload: p.Payload})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Local) Document(ctx context.Context, documentID string) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Hit
	for id, p := range s.points {
		if p.Payload.DocumentID == documentID {
			hits = append(hits, Hit{ID: id, Payload: p.Payload})
		}
	}
	sortByChunk(hits)
	return hits, nil
}

func (s *Local) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, p := range s.points {
		if p.Payload.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	if s.db != nil {
		err := s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket(bucketPoints)
			for _, id := range ids {
				if err := b.Delete([]byte(id)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
