package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SnapshotWriter writes record batches to timestamped JSON files for audit.
// It is safe for concurrent use.
type SnapshotWriter struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewSnapshotWriter creates the output directory if needed.
func NewSnapshotWriter(dir string) (*SnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("snapshot: create output dir: %w", err)
	}
	return &SnapshotWriter{dir: dir, now: time.Now}, nil
}

// Write stores v as indented JSON and returns the file path.
// File names look like damai_shows_<artist>_<stage>_<20060102_150405>_<run>.json.
func (w *SnapshotWriter) Write(artist, stage, runID string, v any) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("damai_shows_%s_%s_%s_%s.json",
		safeFileComponent(artist), stage, w.now().Format("20060102_150405"), short)
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("snapshot: create file %q: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}
	return path, nil
}

func safeFileComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}
