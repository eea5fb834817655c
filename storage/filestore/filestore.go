// Package filestore is the durable storage.Store: a single JSON document on
// disk, rewritten atomically on every change.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/rental-auth-client/storage"
	"github.com/pkg/errors"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	path   string
	mu     sync.Mutex
	loaded bool
	values map[string]string
}

// New returns a store backed by the file at path. The file and its folder are
// created on first write; a missing file reads as empty.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return "", false, err
	}
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	s.values[key] = value
	return s.flush()
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	values := make(map[string]string)
	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return errors.Wrap(err, "[filestore] read")
	case len(data) > 0:
		if err := json.Unmarshal(data, &values); err != nil {
			return errors.Wrap(err, "[filestore] decode")
		}
	}
	s.values = values
	s.loaded = true
	return nil
}

func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[filestore] encode")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "[filestore] mkdir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return errors.Wrap(err, "[filestore] create temp")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore] write")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[filestore] close")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "[filestore] rename")
	}
	return nil
}
