package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// DirLoader reads one document per file from a directory.
// Files without a known extension are ignored.
type DirLoader struct {
	Dir string
}

// Load implements Loader.
func (l DirLoader) Load(ctx context.Context) ([]*SchemaDoc, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsSchemaFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	docs := make([]*SchemaDoc, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(l.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		doc, err := DecodeFile(name, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadDir reads every schema file in dir.
func LoadDir(ctx context.Context, dir string) ([]*SchemaDoc, error) {
	return DirLoader{Dir: dir}.Load(ctx)
}
