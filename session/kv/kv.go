// Package kv implements session.Store and session.FlagStore over the
// storage.Repository record table, so sessions can live in BBolt or in
// memory with the same code.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tgrimes/keygate/internal/util"
	"github.com/tgrimes/keygate/session"
	"github.com/tgrimes/keygate/storage"
)

const (
	sessionNamespace = "sessions"
	sessionKind      = "SESSION"
	flagKind         = "FLAG"
)

// Option configures the stores in this package.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store implements session.Store over a storage.Repository.
//
// The repository has no compare-and-swap, so rotation atomicity is enforced
// with a process-local mutex. That is sound for the single-process backends
// this package targets (BBolt, memory); multi-process deployments use the
// postgres store.
type Store struct {
	mu   sync.Mutex
	repo storage.Repository
	now  func() time.Time
}

var _ session.Store = (*Store)(nil)

// NewStore creates a session store over the given repository.
func NewStore(repo storage.Repository, opts ...Option) *Store {
	o := newOptions(opts)
	return &Store{repo: repo, now: o.now}
}

func sessionKey(name string, user int64) string {
	return name + "/" + strconv.FormatInt(user, 10)
}

func (s *Store) Generate(ctx context.Context, rec session.Record) (session.Record, error) {
	if !session.ValidAdditionals(rec.Additionals) {
		return session.Record{}, session.ErrBadAdditionals
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Evict any prior session for the pair before inserting.
	key := sessionKey(rec.Name, rec.UserID)
	if err := s.repo.Delete(sessionNamespace, sessionKind, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return session.Record{}, fmt.Errorf("evicting prior session: %w", err)
	}

	id, err := util.RandomInt63()
	if err != nil {
		return session.Record{}, err
	}
	rec.ID = id
	if err := s.putLocked(key, rec); err != nil {
		return session.Record{}, err
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, name string, user int64) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(name, user)
}

func (s *Store) getLocked(name string, user int64) (session.Record, error) {
	key := sessionKey(name, user)
	data, err := s.repo.Get(sessionNamespace, sessionKind, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return session.Record{}, session.ErrNotFound
		}
		return session.Record{}, fmt.Errorf("fetching session: %w", err)
	}
	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return session.Record{}, fmt.Errorf("decoding session: %w", err)
	}
	if rec.Expired(s.now()) {
		// Expired rows are self-cleaning on access.
		_ = s.repo.Delete(sessionNamespace, sessionKind, key)
		return session.Record{}, session.ErrExpired
	}
	return rec, nil
}

func (s *Store) Update(ctx context.Context, name string, user int64, additionals json.RawMessage,
	refreshHash, headerHash string, expectedTally uint64) (session.Record, error) {
	if !session.ValidAdditionals(additionals) {
		return session.Record{}, session.ErrBadAdditionals
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getLocked(name, user)
	if err != nil {
		return session.Record{}, err
	}
	if rec.UpdatedTally != expectedTally {
		return session.Record{}, session.ErrConflict
	}
	rec.RefreshNonceHash = refreshHash
	rec.HeaderNonceHash = headerHash
	rec.Additionals = additionals
	rec.UpdatedTally++
	rec.UpdatedAt = s.now().Unix()
	if err := s.putLocked(sessionKey(name, user), rec); err != nil {
		return session.Record{}, err
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, name string, user int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.repo.Delete(sessionNamespace, sessionKind, sessionKey(name, user))
	if errors.Is(err, storage.ErrNotFound) {
		return session.ErrNotFound
	}
	return err
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.repo.List(sessionNamespace, sessionKind)
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}
	deleted := 0
	for _, key := range keys {
		data, err := s.repo.Get(sessionNamespace, sessionKind, key)
		if err != nil {
			continue
		}
		var rec session.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			// Corrupt entry, remove it.
			if s.repo.Delete(sessionNamespace, sessionKind, key) == nil {
				deleted++
			}
			continue
		}
		if rec.ExpiresAt < before.Unix() {
			if s.repo.Delete(sessionNamespace, sessionKind, key) == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

func (s *Store) putLocked(key string, rec session.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.repo.Put(sessionNamespace, sessionKind, key, data); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}
