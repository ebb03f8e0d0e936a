// Package filestore keeps the values in one JSON document on disk.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

type Store struct {
	path  string
	mutex sync.Mutex
	table map[string]string
}

// Open loads the document at path; a missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, table: make(map[string]string)}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, errors.Wrapf(err, "filestore: reading %s", path)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.table); err != nil {
			return nil, errors.Wrapf(err, "filestore: decoding %s", path)
		}
	}
	if s.table == nil {
		s.table = make(map[string]string)
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	val, ok := s.table[key]
	return val, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	prev, had := s.table[key]
	s.table[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.table[key] = prev
		} else {
			delete(s.table, key)
		}
		return err
	}
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	removed := make(map[string]string)
	for _, key := range keys {
		if val, ok := s.table[key]; ok {
			removed[key] = val
			delete(s.table, key)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := s.flush(); err != nil {
		for key, val := range removed {
			s.table[key] = val
		}
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

// flush writes the document to a temp file then renames it over the previous one.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.table, "", "  ")
	if err != nil {
		return errors.Wrap(err, "filestore: encoding")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "filestore: creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "filestore: creating temp file")
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "filestore: writing")
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "filestore: chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "filestore: closing")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "filestore: renaming")
}
