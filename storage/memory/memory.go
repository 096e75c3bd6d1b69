// Package memory provides a thread-safe in-memory implementation of
// storage.Repository, suitable for testing and single-process use.
package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tgrimes/keygate/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string][]byte)}
}

func recordKey(kind, key string) string {
	return kind + ":" + key
}

func (r *Repository) Put(namespace, kind, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[namespace]; !ok {
		r.data[namespace] = make(map[string][]byte)
	}
	r.data[namespace][recordKey(kind, key)] = append([]byte(nil), value...)
	return nil
}

func (r *Repository) Get(namespace, kind, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.data[namespace]
	if !ok {
		return nil, fmt.Errorf("%s/%s/%s: %w", namespace, kind, key, storage.ErrNotFound)
	}
	value, ok := ns[recordKey(kind, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s/%s: %w", namespace, kind, key, storage.ErrNotFound)
	}
	return append([]byte(nil), value...), nil
}

func (r *Repository) Delete(namespace, kind, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.data[namespace]
	if !ok {
		return fmt.Errorf("%s/%s/%s: %w", namespace, kind, key, storage.ErrNotFound)
	}
	k := recordKey(kind, key)
	if _, ok := ns[k]; !ok {
		return fmt.Errorf("%s/%s/%s: %w", namespace, kind, key, storage.ErrNotFound)
	}
	delete(ns, k)
	return nil
}

func (r *Repository) List(namespace, kind string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.data[namespace]
	if !ok {
		return nil, nil
	}
	prefix := kind + ":"
	var keys []string
	for k := range ns {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	return keys, nil
}
