// Package token implements the client-held authentication token and the
// generate/validate/remove protocol around it. A token is three base64
// segments, IV.ciphertext.MAC; its decrypted payload carries the principal,
// the expiry window and a replay nonce. The server never stores the token,
// only keyed hashes of its secrets, in the session store.
package token

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tgrimes/keygate/internal/util"
)

const (
	tokenSeparator   = "."
	payloadSeparator = "|"
	payloadFields    = 4

	nonceLen         = 16
	rotationNonceLen = 32
	ivLen            = 16
)

// payload is the 4-field plaintext record inside a token.
type payload struct {
	UserID    int64
	ExpiresAt int64
	IssuedAt  int64
	// Nonce is the raw primary replay nonce.
	Nonce []byte
}

func encodeToken(iv, cipherText, mac []byte) string {
	parts := []string{
		util.Base64Encode(iv),
		util.Base64Encode(cipherText),
		util.Base64Encode(mac),
	}
	return strings.Join(parts, tokenSeparator)
}

func decodeToken(s string) (iv, cipherText, mac []byte, err error) {
	parts := strings.Split(s, tokenSeparator)
	if len(parts) != 3 {
		return nil, nil, nil, fmt.Errorf("%w: %d segments", ErrMalformed, len(parts))
	}
	if iv, err = util.Base64Decode(parts[0]); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad IV segment", ErrMalformed)
	}
	if cipherText, err = util.Base64Decode(parts[1]); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad ciphertext segment", ErrMalformed)
	}
	if mac, err = util.Base64Decode(parts[2]); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad MAC segment", ErrMalformed)
	}
	if len(iv) != ivLen || len(cipherText) == 0 || len(mac) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty or misized segment", ErrMalformed)
	}
	return iv, cipherText, mac, nil
}

func encodePayload(p payload) []byte {
	fields := []string{
		strconv.FormatInt(p.UserID, 10),
		strconv.FormatInt(p.ExpiresAt, 10),
		strconv.FormatInt(p.IssuedAt, 10),
		util.HexEncode(p.Nonce),
	}
	return []byte(strings.Join(fields, payloadSeparator))
}

func parsePayload(b []byte) (payload, error) {
	fields := strings.Split(string(b), payloadSeparator)
	if len(fields) != payloadFields {
		return payload{}, fmt.Errorf("%w: %d fields", ErrStructure, len(fields))
	}
	var p payload
	var err error
	if p.UserID, err = strconv.ParseInt(fields[0], 10, 64); err != nil || p.UserID <= 0 {
		return payload{}, fmt.Errorf("%w: bad user field", ErrStructure)
	}
	if p.ExpiresAt, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return payload{}, fmt.Errorf("%w: bad expiry field", ErrStructure)
	}
	if p.IssuedAt, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return payload{}, fmt.Errorf("%w: bad issuance field", ErrStructure)
	}
	if p.Nonce, err = util.HexDecode(fields[3]); err != nil || len(p.Nonce) != nonceLen {
		return payload{}, fmt.Errorf("%w: bad nonce field", ErrStructure)
	}
	return p, nil
}
