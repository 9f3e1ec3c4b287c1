// Package cipher encrypts and decrypts MFA seed secrets at rest.
//
// The key is stretched from a configured passphrase with PBKDF2-SHA512, using
// the hex form of the initialization vector as the salt. The IV is fixed per
// deployment, not per message: every stored ciphertext is bound to it, and
// the plaintexts are single-block random seeds. Do not randomize the IV and
// do not change it once secrets exist; either breaks decryption of every
// secret already stored.
package cipher

import (
	"bytes"
	"crypto/aes"
	cryptocipher "crypto/cipher"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"accountd/internal/config"
)

// ErrMalformedCiphertext is returned when decryption input is not valid hex,
// not block-aligned, or fails padding checks. It is unrecoverable: a stored
// secret that cannot be decrypted must surface as a hard failure, never as an
// empty plaintext.
var ErrMalformedCiphertext = errors.New("cipher: malformed ciphertext")

// Cipher performs symmetric encryption of seed secrets with a derived key and
// a fixed IV. Safe for concurrent use.
type Cipher struct {
	block cryptocipher.Block
	iv    []byte
}

// New derives the symmetric key from cfg and prepares the block cipher.
func New(cfg config.CipherConfig) (*Cipher, error) {
	iv, err := hex.DecodeString(cfg.IV)
	if err != nil {
		return nil, fmt.Errorf("cipher: iv is not hex: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("cipher: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	key := pbkdf2.Key([]byte(cfg.Passphrase), []byte(cfg.IV), cfg.KeyIterations, cfg.KeyLength, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: derived key rejected: %w", err)
	}

	return &Cipher{block: block, iv: iv}, nil
}

// Encrypt returns the hex ciphertext of plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cryptocipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Any defect in the input — bad hex, truncation,
// or a padding mismatch from a wrong key — yields ErrMalformedCiphertext.
func (c *Cipher) Decrypt(ciphertextHex string) (string, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: length %d not block aligned", ErrMalformedCiphertext, len(raw))
	}

	out := make([]byte, len(raw))
	cryptocipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)

	unpadded, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// pad applies PKCS#7 padding.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and validates PKCS#7 padding.
func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrMalformedCiphertext
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrMalformedCiphertext
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrMalformedCiphertext
		}
	}
	return data[:len(data)-n], nil
}
