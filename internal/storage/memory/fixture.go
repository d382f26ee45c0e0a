package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/relgraph/pkg/types"
)

// Fixture is a serialized graph: a list of entities and a list of edges.
type Fixture struct {
	Entities []types.Entity `json:"entities" yaml:"entities"`
	Edges    []types.Edge   `json:"edges" yaml:"edges"`
}

// ParseFixture decodes a fixture. ext selects the format (".json", ".yaml"
// or ".yml").
func ParseFixture(data []byte, ext string) (*Fixture, error) {
	var f Fixture
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("invalid JSON fixture: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("invalid YAML fixture: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported fixture format %q", ext)
	}
	return &f, nil
}

// LoadFixture reads a fixture file, or every fixture file under a directory
// in lexical path order. Later files override earlier entities and edges with
// the same key.
func LoadFixture(path string) (*Fixture, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("memory: fixture %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		files = files[:0]
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && p != path {
					return filepath.SkipDir
				}
				return nil
			}
			switch strings.ToLower(filepath.Ext(p)) {
			case ".json", ".yaml", ".yml":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("memory: walk %s: %w", path, err)
		}
		sort.Strings(files)
	}

	merged := &Fixture{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("memory: read %s: %w", file, err)
		}
		f, err := ParseFixture(data, filepath.Ext(file))
		if err != nil {
			return nil, fmt.Errorf("memory: %s: %w", file, err)
		}
		merged.Entities = append(merged.Entities, f.Entities...)
		merged.Edges = append(merged.Edges, f.Edges...)
	}
	return merged, nil
}

// NewStoreFromFixture loads path into a new Store.
func NewStoreFromFixture(ctx context.Context, path string) (*Store, error) {
	f, err := LoadFixture(path)
	if err != nil {
		return nil, err
	}
	s := NewStore()
	if err := s.Seed(ctx, f); err != nil {
		return nil, err
	}
	return s, nil
}

// Seed upserts every entity and edge of f.
func (s *Store) Seed(ctx context.Context, f *Fixture) error {
	if err := s.UpsertEntities(ctx, f.Entities); err != nil {
		return err
	}
	return s.UpsertEdges(ctx, f.Edges)
}

// Replace discards every entity and edge and loads f instead, in one step
// visible to readers. Published results are kept.
func (s *Store) Replace(ctx context.Context, f *Fixture) error {
	next := NewStore()
	if err := next.Seed(ctx, f); err != nil {
		return err
	}
	s.mu.Lock()
	s.entities = next.entities
	s.edges = next.edges
	s.mu.Unlock()
	return nil
}
