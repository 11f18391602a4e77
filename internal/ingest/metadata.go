package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata describes a source document. It is read from an optional
// "<file>.yaml" sidecar next to the document.
type Metadata struct {
	Title        string `yaml:"title"`
	Citation     string `yaml:"citation"`
	Jurisdiction string `yaml:"jurisdiction"`
	DocType      string `yaml:"doc_type"`
	Year         int    `yaml:"year"`
	URL          string `yaml:"url"`
}

// loadMetadata returns the sidecar metadata and its raw bytes. A missing
// sidecar yields a title derived from the file name.
func loadMetadata(path string) (Metadata, []byte, error) {
	var md Metadata
	raw, err := os.ReadFile(path + ".yaml")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return md, nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(raw, &md); err != nil {
			return md, nil, fmt.Errorf("parse %s.yaml: %w", filepath.Base(path), err)
		}
	}
	if md.Title == "" {
		md.Title = titleFromPath(path)
	}
	return md, raw, nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' }), " ")
}
