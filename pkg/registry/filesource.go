package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileSource loads definition documents from YAML files. Each path may be a
// file or a directory searched for *.yaml / *.yml entries. A single document
// can carry any mix of the three definition kinds.
type FileSource struct {
	paths  []string
	logger *zap.Logger
}

func NewFileSource(logger *zap.Logger, paths ...string) *FileSource {
	return &FileSource{paths: paths, logger: logger}
}

// document mirrors the top-level shape of a definition file. Entries stay as
// raw maps so decoding can report the offending key.
type document struct {
	Databases map[string]map[string]any `yaml:"databases"`
	Queries   map[string]map[string]any `yaml:"queries"`
	Endpoints map[string]map[string]any `yaml:"endpoints"`
}

func (s *FileSource) Load(ctx context.Context) (*Definitions, error) {
	files, err := s.collectFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no definition files found under %v", s.paths)
	}

	defs := NewDefinitions()
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.loadFile(file, defs); err != nil {
			return nil, err
		}
	}

	if err := defs.checkComplete(); err != nil {
		return nil, err
	}
	s.logger.Info("loaded definition files",
		zap.Int("files", len(files)),
		zap.Int("databases", len(defs.Databases)),
		zap.Int("queries", len(defs.Queries)),
		zap.Int("endpoints", len(defs.Endpoints)),
	)
	return defs, nil
}

func (s *FileSource) loadFile(file string, defs *Definitions) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	for _, name := range sortedKeys(doc.Databases) {
		def, err := decodeDatabase(name, doc.Databases[name])
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if err := defs.AddDatabase(file, def); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(doc.Queries) {
		def, err := decodeQuery(name, doc.Queries[name])
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if err := defs.AddQuery(file, def); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(doc.Endpoints) {
		def, err := decodeEndpoint(name, doc.Endpoints[name])
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if err := defs.AddEndpoint(file, def); err != nil {
			return err
		}
	}
	return nil
}

// collectFiles expands the configured paths into a sorted file list so load
// order, and therefore duplicate reporting, is deterministic.
func (s *FileSource) collectFiles() ([]string, error) {
	var files []string
	for _, p := range s.paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("definitions path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
