// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/tgrimes/keygate/storage"
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(kind, key string) []byte {
	return []byte(kind + ":" + key)
}

func (s *Store) Put(namespace, kind, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return b.Put(recordKey(kind, key), value)
	})
}

func (s *Store) Get(namespace, kind, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("%s/%s/%s: %w", namespace, kind, key, storage.ErrNotFound)
		}
		data := b.Get(recordKey(kind, key))
		if data == nil {
			return fmt.Errorf("%s/%s/%s: %w", namespace, kind, key, storage.ErrNotFound)
		}
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Delete(namespace, kind, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("%s/%s/%s: %w", namespace, kind, key, storage.ErrNotFound)
		}
		k := recordKey(kind, key)
		if b.Get(k) == nil {
			return fmt.Errorf("%s/%s/%s: %w", namespace, kind, key, storage.ErrNotFound)
		}
		return b.Delete(k)
	})
}

func (s *Store) List(namespace, kind string) ([]string, error) {
	var keys []string
	prefix := []byte(kind + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, string(k[len(prefix):]))
		}
		return nil
	})
	return keys, err
}
