package token

import "errors"

// Validation failures map one-to-one onto the rejection states of the
// protocol. All of them are safe to log server-side; none should be echoed
// verbatim to untrusted clients as the sole authorization signal.
var (
	// ErrMissingToken indicates the primary or refresh cookie was absent.
	ErrMissingToken = errors.New("authentication token missing")
	// ErrMalformed indicates the token was not a well-formed three-part
	// base64 string.
	ErrMalformed = errors.New("malformed token")
	// ErrIntegrity indicates the MAC did not match.
	ErrIntegrity = errors.New("token failed integrity check")
	// ErrCorrupt indicates the ciphertext could not be decrypted.
	ErrCorrupt = errors.New("token could not be decrypted")
	// ErrStructure indicates the decrypted payload was not a well-formed
	// four-field record.
	ErrStructure = errors.New("malformed token payload")
	// ErrExpired indicates the expiry embedded in the token has passed.
	ErrExpired = errors.New("token expired")
	// ErrStaleToken indicates the token was issued at or before the
	// caller-supplied logout time.
	ErrStaleToken = errors.New("token issued before logout")
	// ErrNoSession indicates no live server-side session backs the token.
	ErrNoSession = errors.New("no session for token")
	// ErrReplay indicates the token's nonce does not match the stored hash.
	ErrReplay = errors.New("token nonce mismatch")
	// ErrHeaderMismatch indicates the header nonce was missing or wrong.
	ErrHeaderMismatch = errors.New("header nonce mismatch")
	// ErrRefreshMismatch indicates the refresh cookie value does not match
	// the stored hash.
	ErrRefreshMismatch = errors.New("refresh nonce mismatch")
	// ErrInsecureTransport indicates token issuance was refused because the
	// channel is not secure and policy requires it.
	ErrInsecureTransport = errors.New("secure channel required")
)
