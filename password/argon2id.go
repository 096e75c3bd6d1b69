// Package password provides Argon2id credential hashing with PHC-encoded
// digests. It shares the token protocol's trust boundary but is independent
// of the token flow: callers verify a credential here, then ask the token
// package to issue a session.
package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"

	"github.com/tgrimes/keygate/internal/util"
)

const (
	// MaxSecretLen caps input length. Argon2id has no intrinsic ceiling,
	// but the limit is kept for parity with bcrypt-era callers.
	MaxSecretLen = 72

	saltLen = 16
)

var (
	ErrEmptySecret   = errors.New("empty secret")
	ErrSecretTooLong = fmt.Errorf("secret exceeds %d bytes", MaxSecretLen)
)

// Params defines the Argon2id cost parameters.
type Params struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

func DefaultParams() Params {
	return Params{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// Hash derives an Argon2id digest of secret and returns it PHC-encoded
// ("$argon2id$v=19$m=...,t=...,p=...$salt$hash"). The secret is NFKD
// normalized first so that visually identical Unicode input verifies.
func Hash(secret string, params Params) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > MaxSecretLen {
		return "", ErrSecretTooLong
	}
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(norm.NFKD.String(secret)), salt,
		params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
	return encodePHC(params, salt, key), nil
}

// Verify reports whether secret matches the PHC-encoded digest. A malformed
// digest and a wrong secret are indistinguishable to the caller: both yield
// false, never an error, so the result cannot be used as a parsing oracle.
func Verify(secret, digest string) bool {
	if secret == "" || len(secret) > MaxSecretLen {
		return false
	}
	params, salt, key, err := decodePHC(digest)
	if err != nil {
		return false
	}
	derived := argon2.IDKey([]byte(norm.NFKD.String(secret)), salt,
		params.Time, params.MemoryKiB, params.Parallelism, uint32(len(key)))
	return util.ConstantTimeEq(derived, key)
}

func encodePHC(p Params, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Time, p.Parallelism,
		util.Base64Encode(salt), util.Base64Encode(key))
}

func decodePHC(digest string) (Params, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, errors.New("malformed digest")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, errors.New("unsupported argon2 version")
	}
	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Parallelism); err != nil {
		return Params{}, nil, nil, errors.New("malformed cost parameters")
	}
	if p.Time == 0 || p.MemoryKiB == 0 || p.Parallelism == 0 {
		return Params{}, nil, nil, errors.New("zero cost parameter")
	}
	salt, err := util.Base64Decode(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, errors.New("malformed salt")
	}
	key, err := util.Base64Decode(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, errors.New("malformed key")
	}
	return p, salt, key, nil
}
