package schema

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"crudschema/internal/core/apperror"
)

// Loader produces the full set of documents for a reload.
type Loader interface {
	Load(ctx context.Context) ([]*SchemaDoc, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]*SchemaDoc, error)

func (f LoaderFunc) Load(ctx context.Context) ([]*SchemaDoc, error) { return f(ctx) }

type snapshot struct {
	docs     map[string]*SchemaDoc
	version  uint64
	loadedAt time.Time
}

// Store maps model names to documents. Readers always see a complete
// snapshot; Replace and Reload swap the whole snapshot at once.
type Store struct {
	loader  Loader
	current atomic.Pointer[snapshot]

	// mu serializes writers so each Replace bumps the version exactly once.
	mu sync.Mutex
}

// NewStore creates an empty store. loader may be nil when documents are only
// installed through Replace.
func NewStore(loader Loader) *Store {
	s := &Store{loader: loader}
	s.current.Store(&snapshot{docs: map[string]*SchemaDoc{}})
	return s
}

// Get returns the document for model.
func (s *Store) Get(model string) (*SchemaDoc, error) {
	doc, ok := s.current.Load().docs[model]
	if !ok {
		return nil, apperror.NewSchemaNotFound(model)
	}
	return doc, nil
}

// Replace installs docs as the new snapshot.
func (s *Store) Replace(docs ...*SchemaDoc) error {
	next := make(map[string]*SchemaDoc, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		if _, dup := next[d.Model]; dup {
			return fmt.Errorf("%w: model %q is defined twice", ErrInvalid, d.Model)
		}
		next[d.Model] = d
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current.Load()
	s.current.Store(&snapshot{docs: next, version: prev.version + 1, loadedAt: time.Now()})
	return nil
}

// Reload fetches every document from the loader and swaps them in. On error
// the previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) ([]Issue, error) {
	if s.loader == nil {
		return nil, errors.New("schema store has no loader")
	}
	docs, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	if err := s.Replace(docs...); err != nil {
		return nil, err
	}
	return Lint(docs), nil
}

// Models returns the registered model names sorted.
func (s *Store) Models() []string {
	docs := s.current.Load().docs
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Version increments on every successful Replace.
func (s *Store) Version() uint64 { return s.current.Load().version }

// LoadedAt is the time of the last successful Replace.
func (s *Store) LoadedAt() time.Time { return s.current.Load().loadedAt }
