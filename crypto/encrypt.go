package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// Maximum size of each encrypted chunk of data. NaCl is recommended for
	// encrypting "small" messages, so large data is split into 16KB chunks.
	chunkSize = 16 * 1024 // 16KB
	nonceSize = 24
	// KeySize is the length in bytes of a secret key.
	KeySize = 32
)

// ErrDecrypt is returned when a ciphertext chunk fails authentication.
var ErrDecrypt = errors.New("failed decrypting chunk")

// Seal performs symmetric encryption of plaintext using NaCl primitives
// (XSalsa20 and Poly1305). Each chunk is prefixed with its own random nonce.
func Seal(plaintext []byte, secretKey *[KeySize]byte) ([]byte, error) {
	out := &bytes.Buffer{}
	out.Grow(len(plaintext) + (len(plaintext)/chunkSize+1)*(nonceSize+secretbox.Overhead))

	for start := 0; start < len(plaintext); start += chunkSize {
		end := min(start+chunkSize, len(plaintext))

		nonce, err := generateNonce()
		if err != nil {
			return nil, fmt.Errorf("failed generating nonce: %w", err)
		}

		sealed := secretbox.Seal(nonce[:], plaintext[start:end], nonce, secretKey)
		if _, err = out.Write(sealed); err != nil {
			return nil, fmt.Errorf("failed writing encrypted data: %w", err)
		}
	}

	return out.Bytes(), nil
}

// Open reverses Seal.
func Open(ciphertext []byte, secretKey *[KeySize]byte) ([]byte, error) {
	const sealedChunk = nonceSize + chunkSize + secretbox.Overhead

	out := &bytes.Buffer{}
	for len(ciphertext) > 0 {
		n := min(sealedChunk, len(ciphertext))
		if n < nonceSize+secretbox.Overhead {
			return nil, fmt.Errorf("%w: truncated payload of %d bytes", ErrDecrypt, n)
		}

		var nonce [nonceSize]byte
		copy(nonce[:], ciphertext[:nonceSize])

		decrypted, ok := secretbox.Open(nil, ciphertext[nonceSize:n], &nonce, secretKey)
		if !ok {
			return nil, ErrDecrypt
		}
		out.Write(decrypted)

		ciphertext = ciphertext[n:]
	}

	return out.Bytes(), nil
}

// NewKey generates a random secret key.
func NewKey() (*[KeySize]byte, error) {
	key := new([KeySize]byte)
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("failed generating secret key: %w", err)
	}
	return key, nil
}

// DecodeHexKey decodes and validates a hex encoded secret key.
func DecodeHexKey(keyHex string) (*[KeySize]byte, error) {
	keyDec, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, err
	}
	if len(keyDec) != KeySize {
		return nil, fmt.Errorf("expected key length of %d; got %d", KeySize, len(keyDec))
	}

	var key [KeySize]byte
	copy(key[:], keyDec)

	return &key, nil
}

func generateNonce() (*[nonceSize]byte, error) {
	nonce := new([nonceSize]byte)
	_, err := io.ReadFull(rand.Reader, nonce[:])
	if err != nil {
		return nil, err
	}

	return nonce, nil
}
