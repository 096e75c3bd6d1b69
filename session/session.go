// Package session defines the server-side session record that binds a token
// namespace and principal to hashed replay secrets, and the Store contract
// its backends implement.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no live session exists for the (name, user) pair.
	ErrNotFound = errors.New("session not found")
	// ErrExpired indicates the session row had passed its expiration and was
	// deleted on access.
	ErrExpired = errors.New("session expired")
	// ErrConflict indicates a concurrent rotation won the update race.
	ErrConflict = errors.New("session update conflict")
	// ErrBadAdditionals indicates the caller-supplied payload is not valid
	// JSON. Raised before any existing session is touched.
	ErrBadAdditionals = errors.New("invalid additionals payload")
)

// Record is one persisted session. The three *Hash fields hold hex HMAC
// digests of the client-held secrets; the raw values are never stored.
//
// All fields except RefreshNonceHash, HeaderNonceHash, UpdatedTally,
// UpdatedAt and Additionals are write-once at creation.
type Record struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	UserID           int64           `json:"user_id"`
	NonceHash        string          `json:"nonce_hash"`
	RefreshNonceHash string          `json:"refresh_nonce_hash"`
	HeaderNonceHash  string          `json:"header_nonce_hash"`
	CreatedAt        int64           `json:"created_at"`
	ExpiresAt        int64           `json:"expires_at"`
	UpdatedTally     uint64          `json:"updated_tally"`
	UpdatedAt        int64           `json:"updated_at,omitempty"`
	Additionals      json.RawMessage `json:"additionals,omitempty"`
}

// Expired reports whether the record's absolute expiry has passed at now.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt <= now.Unix()
}

// Store persists session records, at most one per (Name, UserID) pair.
type Store interface {
	// Generate atomically evicts any existing session for (rec.Name,
	// rec.UserID) and inserts rec. It validates rec.Additionals before
	// evicting, so a malformed request never destroys a live session.
	// Returns the created record with its surrogate ID assigned.
	Generate(ctx context.Context, rec Record) (Record, error)

	// Get fetches the live session. An expired row is deleted as a side
	// effect and reported as ErrExpired.
	Get(ctx context.Context, name string, user int64) (Record, error)

	// Update rotates the refresh and header hashes and replaces the
	// additionals payload, incrementing UpdatedTally and stamping
	// UpdatedAt. expectedTally guards against concurrent rotations:
	// ErrConflict is returned when another update got there first.
	Update(ctx context.Context, name string, user int64, additionals json.RawMessage,
		refreshHash, headerHash string, expectedTally uint64) (Record, error)

	// Delete removes the session; ErrNotFound if no row exists.
	Delete(ctx context.Context, name string, user int64) error

	// DeleteExpired removes every row whose expiry precedes before,
	// returning the number of rows deleted.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// FlagStore is a TTL flag used to gate the periodic sweep.
type FlagStore interface {
	// Acquire sets the named flag for ttl if it is not currently set,
	// reporting whether this caller won it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// ValidAdditionals reports whether the opaque payload is acceptable: either
// empty or well-formed JSON. Store implementations check this before any
// destructive step.
func ValidAdditionals(additionals json.RawMessage) bool {
	return len(additionals) == 0 || json.Valid(additionals)
}
