package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LoadPolicy decides what JsonFileStore does when the items file cannot be
// read, parsed or written.
type LoadPolicy int

const (
	// ResetOnError logs the failure and carries on: a failed load leaves the
	// collection empty and a failed save is dropped.
	ResetOnError LoadPolicy = iota
	// FailOnError returns the failure to the caller.
	FailOnError
)

// JsonFileStore keeps the collection as a single JSON array on disk. The file
// is re-read before every operation and rewritten after every mutation, so
// edits made to it by hand are picked up.
//
// Layout:
//
//	data_dir/
//	  items.json   # [{"id": 1, "lastUpdate": "...", ...}, ...]
type JsonFileStore struct {
	mu     sync.Mutex
	path   string
	policy LoadPolicy
	items  []Item
	settings
}

func NewJsonFileStore(path string, policy LoadPolicy, opts ...Option) (*JsonFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{path: path, policy: policy, settings: newSettings(opts)}, nil
}

// Path returns the items file location.
func (s *JsonFileStore) Path() string {
	return s.path
}

// load replaces the in-memory view with the file contents. A missing file is
// an empty collection.
func (s *JsonFileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.items = nil
			return nil
		}
		return s.failed("load", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return s.failed("load", err)
	}
	items := make([]Item, 0, len(docs))
	for _, doc := range docs {
		if doc != nil {
			items = append(items, normalize(doc))
		}
	}
	s.items = items
	return nil
}

func (s *JsonFileStore) save() error {
	items := s.items
	if items == nil {
		items = []Item{}
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return s.failed("save", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return s.failed("save", err)
	}
	return nil
}

// failed applies the load policy to an I/O error.
func (s *JsonFileStore) failed(op string, err error) error {
	s.logger.Error("items file "+op+" failed", "path", s.path, "error", err)
	if s.policy == FailOnError {
		return fmt.Errorf("store: %s %s: %w", op, s.path, err)
	}
	if op == "load" {
		s.items = nil
	}
	return nil
}

func (s *JsonFileStore) Create(_ context.Context, data map[string]any) (Item, error) {
	data, err := s.cast(data, true)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	it, err := newItem(nextID(s.items), data, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.items = append(s.items, it)
	if err := s.save(); err != nil {
		return nil, err
	}
	return cloneItem(it)
}

func (s *JsonFileStore) List(_ context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return cloneItems(s.items)
}

func (s *JsonFileStore) FindByID(_ context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	if i := indexOf(s.items, id); i >= 0 {
		return cloneItem(s.items[i])
	}
	return nil, nil
}

func (s *JsonFileStore) Update(_ context.Context, id string, data map[string]any) (Item, error) {
	data, err := s.cast(data, false)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	i := indexOf(s.items, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	it, err := mergeItem(s.items[i], data, s.clock.After(s.items[i].LastUpdate()))
	if err != nil {
		return nil, err
	}
	s.items[i] = it
	if err := s.save(); err != nil {
		return nil, err
	}
	return cloneItem(it)
}

func (s *JsonFileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	i := indexOf(s.items, id)
	if i < 0 {
		return nil
	}
	s.items = removeAt(s.items, i)
	return s.save()
}

func (s *JsonFileStore) Close() error {
	return nil
}
