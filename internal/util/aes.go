package util

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	AESKeySize = 32
	// AESIVSize is the required IV length for AES-CBC.
	AESIVSize = aes.BlockSize
)

// EncryptAESCBC encrypts plainText with AES-256-CBC using the caller-supplied
// 16-byte IV. The IV must be freshly random for every encryption; it is not
// included in the returned ciphertext.
func EncryptAESCBC(plainText, rawKey, iv []byte) ([]byte, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}
	if len(iv) != AESIVSize {
		return nil, fmt.Errorf("invalid IV size: got %d, want %d", len(iv), AESIVSize)
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	padded := padPKCS7(plainText, aes.BlockSize)
	cipherText := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(cipherText, padded)

	return cipherText, nil
}

// DecryptAESCBC decrypts AES-256-CBC ciphertext produced by EncryptAESCBC.
// A malformed length or bad padding is an ordinary error return: callers
// treat decryption failure as an expected outcome for forged input.
func DecryptAESCBC(cipherText, rawKey, iv []byte) ([]byte, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}
	if len(iv) != AESIVSize {
		return nil, fmt.Errorf("invalid IV size: got %d, want %d", len(iv), AESIVSize)
	}
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a positive multiple of the block size", len(cipherText))
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	padded := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, cipherText)

	plainText, err := unpadPKCS7(padded, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("removing padding: %w", err)
	}
	return plainText, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}
