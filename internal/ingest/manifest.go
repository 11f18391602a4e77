package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketFiles = []byte("files")

// Entry records what was ingested for one file.
type Entry struct {
	Hash       string    `json:"hash"`
	DocumentID string    `json:"document_id"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Manifest maps relative file paths to their last ingest.
type Manifest struct {
	db *bbolt.DB
}

func OpenManifest(path string) (*Manifest, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFiles)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Manifest{db: db}, nil
}

func (m *Manifest) Close() error {
	return m.db.Close()
}

func (m *Manifest) Get(path string) (Entry, bool, error) {
	var e Entry
	var found bool
	err := m.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get([]byte(path))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})
	return e, found, err
}

func (m *Manifest) Put(path string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(path), data)
	})
}

func (m *Manifest) Delete(path string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(path))
	})
}

// Entries returns every recorded file.
func (m *Manifest) Entries() (map[string]Entry, error) {
	out := make(map[string]Entry)
	err := m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil // Skip corrupted entries
			}
			out[string(k)] = e
			return nil
		})
	})
	return out, err
}
