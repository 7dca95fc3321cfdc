package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Persistence handles the disk I/O for the MemStore. Each collection lives
// in its own <collection>.json file holding a map of id to document.
type Persistence struct {
	DataDir string
	log     zerolog.Logger
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	written map[string]uint64
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string, log zerolog.Logger) (*Persistence, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Persistence{
		DataDir: dir,
		log:     log.With().Str("component", "persistence").Logger(),
		written: make(map[string]uint64),
	}, nil
}

// SaveCollection writes a collection snapshot atomically. Snapshots are
// numbered by the store; one older than the last written is discarded so
// out-of-order background writers never roll a file back. A nil snapshot
// removes the file.
func (p *Persistence) SaveCollection(collection string, seq uint64, docs map[string]map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seq != 0 && seq < p.written[collection] {
		return nil
	}
	p.written[collection] = seq

	filePath := filepath.Join(p.DataDir, collection+".json")
	if docs == nil {
		if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Error().Err(err).Str("collection", collection).Msg("remove collection file")
			return err
		}
		return nil
	}

	err := writeAtomic(filePath, docs)
	if err != nil {
		p.log.Error().Err(err).Str("collection", collection).Msg("save collection")
	}
	return err
}

func writeAtomic(filePath string, docs map[string]map[string]any) error {
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(filePath), err)
	}

	// Write to a temporary file first, then rename over the old one.
	// Readers see either the old file or the new one, never a partial write.
	if err := os.WriteFile(tempPath, bytes, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, filePath)
}

// LoadAll returns all collections found in the data directory. Unreadable
// files are logged and skipped.
func (p *Persistence) LoadAll() (map[string]map[string]map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string]map[string]map[string]any)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		collection := strings.TrimSuffix(file.Name(), ".json")

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.log.Warn().Err(err).Str("file", file.Name()).Msg("could not read collection file")
			continue
		}

		var docs map[string]map[string]any
		if err := json.Unmarshal(content, &docs); err != nil {
			p.log.Warn().Err(err).Str("file", file.Name()).Msg("could not decode collection file")
			continue
		}
		if len(docs) > 0 {
			allData[collection] = docs
		}
	}
	return allData, nil
}

// Open loads dir and returns a store persisting into it.
func Open(dir string, log zerolog.Logger) (*MemStore, error) {
	p, err := NewPersistence(dir, log)
	if err != nil {
		return nil, err
	}
	allData, err := p.LoadAll()
	if err != nil {
		return nil, err
	}
	return NewMemStore(allData, p), nil
}
