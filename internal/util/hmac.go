package util

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSHA256 returns the HMAC-SHA256 tag of data under key. It is used both
// for transport integrity (over IV||ciphertext) and for one-way hashing of
// nonces before they reach persistent storage.
func HMACSHA256(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// ConstantTimeEq compares two byte slices without leaking the position of
// the first mismatch through timing.
func ConstantTimeEq(a, b []byte) bool {
	return hmac.Equal(a, b)
}
