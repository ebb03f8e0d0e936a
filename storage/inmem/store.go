package inmemstore

import (
	"context"
	"sync"
)

type Store struct {
	mutex sync.RWMutex
	table map[string]string
}

func New() *Store {
	return &Store{table: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	val, ok := s.table[key]
	return val, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.table[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, key := range keys {
		delete(s.table, key)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.table)
}

func (s *Store) Close() error { return nil }
