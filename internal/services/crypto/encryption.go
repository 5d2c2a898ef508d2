// Package crypto provides at-rest encryption for signing key material using
// Argon2id key derivation and AES-256-GCM, encrypting an arbitrary key blob
// rather than any particular wallet format.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	Argon2Time    = 4
	Argon2Memory  = 256 * 1024
	Argon2Threads = 4
	Argon2KeyLen  = 32
	Argon2SaltLen = 16
	AESNonceLen   = 12
)

// EncryptedBlob is a password-encrypted key blob, serializable to the
// on-disk/env-var format FromEnvironment gateways read.
type EncryptedBlob struct {
	Salt          []byte
	Nonce         []byte
	Ciphertext    []byte
	Argon2Time    uint32
	Argon2Memory  uint32
	Argon2Threads uint8
	Version       byte
}

// Encrypt encrypts plaintext using Argon2id + AES-256-GCM under password.
func Encrypt(plaintext []byte, password string) (*EncryptedBlob, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)
	defer ClearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, AESNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return &EncryptedBlob{
		Salt:          salt,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
		Argon2Time:    Argon2Time,
		Argon2Memory:  Argon2Memory,
		Argon2Threads: Argon2Threads,
		Version:       1,
	}, nil
}

// Decrypt decrypts an EncryptedBlob under password, returning the plaintext
// key material. Callers must ClearBytes the result once consumed.
func Decrypt(blob *EncryptedBlob, password string) ([]byte, error) {
	if blob == nil {
		return nil, errors.New("encrypted blob is nil")
	}
	if len(blob.Salt) != Argon2SaltLen {
		return nil, fmt.Errorf("invalid salt length: got %d, want %d", len(blob.Salt), Argon2SaltLen)
	}
	if len(blob.Nonce) != AESNonceLen {
		return nil, fmt.Errorf("invalid nonce length: got %d, want %d", len(blob.Nonce), AESNonceLen)
	}

	key := argon2.IDKey([]byte(password), blob.Salt, blob.Argon2Time, blob.Argon2Memory, blob.Argon2Threads, Argon2KeyLen)
	defer ClearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, errors.New("authentication failed: wrong password or corrupted data")
	}
	return plaintext, nil
}

// Serialize packs an EncryptedBlob into the binary wire format FromEnvironment
// reads: [version:1][time:4][memory:4][threads:1][salt:16][nonce:12][ciphertext...].
func Serialize(blob *EncryptedBlob) []byte {
	size := 1 + 4 + 4 + 1 + len(blob.Salt) + len(blob.Nonce) + len(blob.Ciphertext)
	out := make([]byte, size)
	offset := 0

	out[offset] = blob.Version
	offset++
	binary.BigEndian.PutUint32(out[offset:], blob.Argon2Time)
	offset += 4
	binary.BigEndian.PutUint32(out[offset:], blob.Argon2Memory)
	offset += 4
	out[offset] = blob.Argon2Threads
	offset++
	copy(out[offset:], blob.Salt)
	offset += len(blob.Salt)
	copy(out[offset:], blob.Nonce)
	offset += len(blob.Nonce)
	copy(out[offset:], blob.Ciphertext)

	return out
}

// Deserialize unpacks the binary format Serialize produces.
func Deserialize(data []byte) (*EncryptedBlob, error) {
	minSize := 1 + 4 + 4 + 1 + Argon2SaltLen + AESNonceLen
	if len(data) < minSize {
		return nil, fmt.Errorf("invalid encrypted data: size %d < minimum %d", len(data), minSize)
	}

	offset := 0
	version := data[offset]
	offset++
	t := binary.BigEndian.Uint32(data[offset:])
	offset += 4
	m := binary.BigEndian.Uint32(data[offset:])
	offset += 4
	threads := data[offset]
	offset++

	salt := make([]byte, Argon2SaltLen)
	copy(salt, data[offset:offset+Argon2SaltLen])
	offset += Argon2SaltLen

	nonce := make([]byte, AESNonceLen)
	copy(nonce, data[offset:offset+AESNonceLen])
	offset += AESNonceLen

	ciphertext := make([]byte, len(data)-offset)
	copy(ciphertext, data[offset:])

	return &EncryptedBlob{
		Salt:          salt,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
		Argon2Time:    t,
		Argon2Memory:  m,
		Argon2Threads: threads,
		Version:       version,
	}, nil
}
