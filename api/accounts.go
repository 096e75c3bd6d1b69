package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tgrimes/keygate/internal/util"
	"github.com/tgrimes/keygate/storage"
)

const (
	accountNamespace  = "accounts"
	accountRecordKind = "ACCOUNT"
)

var (
	// ErrUsernameTaken indicates a registration attempt for an existing name.
	ErrUsernameTaken = errors.New("username already registered")
	// ErrAccountNotFound indicates no account exists under the given name.
	ErrAccountNotFound = errors.New("account not found")
)

// accountRecord is the persisted form of an account. The password digest is
// a PHC-format Argon2id string, never the password itself.
type accountRecord struct {
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username"`
	PasswordDigest string    `json:"password_digest"`
	CreatedAt      time.Time `json:"created_at"`
}

// accountRegistry stores accounts keyed by username.
type accountRegistry struct {
	repo storage.Repository
}

func newAccountRegistry(repo storage.Repository) *accountRegistry {
	return &accountRegistry{repo: repo}
}

func (g *accountRegistry) create(username, passwordDigest string) (accountRecord, error) {
	if _, err := g.repo.Get(accountNamespace, accountRecordKind, username); err == nil {
		return accountRecord{}, ErrUsernameTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return accountRecord{}, fmt.Errorf("checking username: %w", err)
	}

	id, err := util.RandomInt63()
	if err != nil {
		return accountRecord{}, fmt.Errorf("allocating user id: %w", err)
	}
	record := accountRecord{
		UserID:         id,
		Username:       username,
		PasswordDigest: passwordDigest,
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return accountRecord{}, err
	}
	if err := g.repo.Put(accountNamespace, accountRecordKind, username, data); err != nil {
		return accountRecord{}, fmt.Errorf("persisting account: %w", err)
	}
	return record, nil
}

func (g *accountRegistry) find(username string) (accountRecord, error) {
	data, err := g.repo.Get(accountNamespace, accountRecordKind, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return accountRecord{}, ErrAccountNotFound
		}
		return accountRecord{}, fmt.Errorf("loading account: %w", err)
	}
	var record accountRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return accountRecord{}, fmt.Errorf("decoding account: %w", err)
	}
	return record, nil
}
