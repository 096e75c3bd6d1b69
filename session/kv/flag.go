package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tgrimes/keygate/session"
	"github.com/tgrimes/keygate/storage"
)

// FlagStore implements session.FlagStore over a storage.Repository using
// records that carry their own expiry.
type FlagStore struct {
	mu   sync.Mutex
	repo storage.Repository
	now  func() time.Time
}

var _ session.FlagStore = (*FlagStore)(nil)

type flagRecord struct {
	ExpiresAt int64 `json:"expires_at"`
}

// NewFlagStore creates a TTL flag store over the given repository.
func NewFlagStore(repo storage.Repository, opts ...Option) *FlagStore {
	o := newOptions(opts)
	return &FlagStore{repo: repo, now: o.now}
}

func (f *FlagStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	data, err := f.repo.Get(sessionNamespace, flagKind, key)
	if err == nil {
		var rec flagRecord
		if json.Unmarshal(data, &rec) == nil && rec.ExpiresAt > now.Unix() {
			return false, nil
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("reading flag: %w", err)
	}

	data, err = json.Marshal(flagRecord{ExpiresAt: now.Add(ttl).Unix()})
	if err != nil {
		return false, err
	}
	if err := f.repo.Put(sessionNamespace, flagKind, key, data); err != nil {
		return false, fmt.Errorf("setting flag: %w", err)
	}
	return true, nil
}
