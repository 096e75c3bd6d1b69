package util

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
)

// RandomBytes returns n cryptographically secure random bytes. Every IV and
// nonce in the token protocol is drawn through this function.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// RandomInt63 returns a cryptographically secure random positive int64.
func RandomInt63() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, fmt.Errorf("generating random number: %w", err)
	}
	return n.Int64(), nil
}
