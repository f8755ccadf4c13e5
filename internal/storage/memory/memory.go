// Package memory serves milestones from a local JSON or YAML file, held in
// memory after the first read.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/storage"
	"github.com/folio-labs/journey/pkg/core"
	"gopkg.in/yaml.v3"
)

// document is the object form of a content file. A bare list of milestones
// is accepted as well.
type document struct {
	Milestones []core.Milestone `json:"milestones" yaml:"milestones"`
}

// Store holds the parsed content file.
type Store struct {
	cfg config.MemoryConfig

	mu         sync.RWMutex
	milestones []core.Milestone
	loaded     bool
}

var _ storage.Store = (*Store)(nil)
var _ storage.Writer = (*Store)(nil)
var _ storage.Reloader = (*Store)(nil)

// New creates a store over cfg.Path. Nothing is read until Init or the first
// Milestones call.
func New(cfg config.MemoryConfig) *Store {
	return &Store{cfg: cfg}
}

// NewFromSlice creates a store over an in-process list.
func NewFromSlice(milestones []core.Milestone) *Store {
	ms := make([]core.Milestone, len(milestones))
	copy(ms, milestones)
	return &Store{milestones: ms, loaded: true}
}

// Init reads the content file.
func (s *Store) Init() error {
	if s.cfg.Path == "" {
		return nil
	}
	return s.Reload()
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// Reload re-reads the content file. Stores built from a slice have nothing
// to reload.
func (s *Store) Reload() error {
	if s.cfg.Path == "" {
		return nil
	}
	ms, err := ReadFile(s.cfg.Path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.milestones = ms
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Milestones returns a copy of the held list.
func (s *Store) Milestones(ctx context.Context) ([]core.Milestone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if !loaded {
		if err := s.Reload(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.milestones) == 0 {
		return nil, storage.ErrNoMilestones
	}
	out := make([]core.Milestone, len(s.milestones))
	copy(out, s.milestones)
	return out, nil
}

// SaveMilestones replaces the held list and writes it to the content file
// when one is configured.
func (s *Store) SaveMilestones(ctx context.Context, milestones []core.Milestone) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.Path != "" {
		if err := WriteFile(s.cfg.Path, milestones); err != nil {
			return err
		}
	}
	ms := make([]core.Milestone, len(milestones))
	copy(ms, milestones)
	s.mu.Lock()
	s.milestones = ms
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// ReadFile parses a content file. The format follows the extension: .yaml
// and .yml are YAML, everything else is JSON.
func ReadFile(path string) ([]core.Milestone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	ms, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return ms, nil
}

// Parse decodes a bare list or a {"milestones": [...]} document.
func Parse(data []byte, asYAML bool) ([]core.Milestone, error) {
	unmarshal := json.Unmarshal
	if asYAML {
		unmarshal = yaml.Unmarshal
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	var list []core.Milestone
	listErr := unmarshal(data, &list)
	if listErr == nil {
		return list, nil
	}

	var doc document
	if err := unmarshal(data, &doc); err != nil {
		return nil, errors.Join(listErr, err)
	}
	return doc.Milestones, nil
}

// WriteFile encodes milestones as an object document in the format named by
// the extension.
func WriteFile(path string, milestones []core.Milestone) error {
	doc := document{Milestones: milestones}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode content file: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create content dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write content file: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
