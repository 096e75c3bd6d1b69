package token

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/tgrimes/keygate/internal/util"
)

// HKDF context labels. Distinct labels keep the cipher and MAC keys
// independent even though both derive from the same master secret.
const (
	labelEncryption     = "encryption"
	labelAuthentication = "authentication"
)

const minSecretLen = 32

// Keyring holds the derived key material for the token protocol. Keys live
// in memguard enclaves and are only held in plain memory for the duration
// of a single operation.
type Keyring struct {
	encKey  *memguard.Enclave
	macKey  *memguard.Enclave
	hashKey *memguard.Enclave
}

// NewKeyring derives the encryption and MAC keys from masterSecret via
// HKDF-SHA256 and seals them, together with the separate nonce-hashing
// secret, into enclaves. Both secrets must carry at least 32 bytes.
func NewKeyring(masterSecret, nonceHashSecret []byte) (*Keyring, error) {
	if len(masterSecret) < minSecretLen {
		return nil, fmt.Errorf("master secret must be at least %d bytes, got %d", minSecretLen, len(masterSecret))
	}
	if len(nonceHashSecret) < minSecretLen {
		return nil, fmt.Errorf("nonce hash secret must be at least %d bytes, got %d", minSecretLen, len(nonceHashSecret))
	}

	encKey, err := util.HKDF(masterSecret, nil, []byte(labelEncryption))
	if err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}
	macKey, err := util.HKDF(masterSecret, nil, []byte(labelAuthentication))
	if err != nil {
		util.WipeBytes(encKey)
		return nil, fmt.Errorf("deriving mac key: %w", err)
	}

	// NewEnclave wipes its input buffer.
	return &Keyring{
		encKey:  memguard.NewEnclave(encKey),
		macKey:  memguard.NewEnclave(macKey),
		hashKey: memguard.NewEnclave(util.CopyBytes(nonceHashSecret)),
	}, nil
}

func (k *Keyring) encrypt(plainText, iv []byte) ([]byte, error) {
	buf, err := k.encKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening encryption key: %w", err)
	}
	defer buf.Destroy()
	return util.EncryptAESCBC(plainText, buf.Bytes(), iv)
}

func (k *Keyring) decrypt(cipherText, iv []byte) ([]byte, error) {
	buf, err := k.encKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening encryption key: %w", err)
	}
	defer buf.Destroy()
	return util.DecryptAESCBC(cipherText, buf.Bytes(), iv)
}

func (k *Keyring) mac(data []byte) ([]byte, error) {
	buf, err := k.macKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening mac key: %w", err)
	}
	defer buf.Destroy()
	return util.HMACSHA256(data, buf.Bytes()), nil
}

// hashSecret returns the hex HMAC digest under which a raw client-held
// secret is persisted. Only these digests ever reach the session store.
func (k *Keyring) hashSecret(raw []byte) (string, error) {
	buf, err := k.hashKey.Open()
	if err != nil {
		return "", fmt.Errorf("opening hash key: %w", err)
	}
	defer buf.Destroy()
	return util.HexEncode(util.HMACSHA256(raw, buf.Bytes())), nil
}
