// Package storage provides the key-value record table the session and
// account stores are built on. Records are opaque bytes keyed by
// (namespace, kind, key); the engine's own locking makes individual
// operations safe across requests.
package storage

import "errors"

// ErrNotFound is returned when no record exists for the given key.
var ErrNotFound = errors.New("record not found")

// Repository defines the record table contract.
type Repository interface {
	Put(namespace, kind, key string, value []byte) error
	Get(namespace, kind, key string) ([]byte, error)
	// Delete removes a record; deleting a missing record returns ErrNotFound.
	Delete(namespace, kind, key string) error
	// List returns the keys of all records of the given kind.
	List(namespace, kind string) ([]string, error)
}
