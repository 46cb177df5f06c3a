// Package cryptox implements the message envelope used by the vault:
// AES-256-GCM sealing of text payloads under a base64-encoded key, a salted
// PIN digest, and the Argon2id derivation used to wrap the channel key.
//
// All binary material crossing the package boundary (keys, nonces,
// ciphertext, digests) is standard padded base64 of the raw bytes.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the size of a channel key in bytes (AES-256).
	KeySize = 32

	// NonceSize is the GCM nonce size in bytes.
	NonceSize = 12

	// PinSalt is appended to a PIN before hashing in HashPin.
	PinSalt = "salt_aegis_2024"

	// CorruptPayload is what a UI shows in place of a payload that failed to open.
	CorruptPayload = "[DECRYPTION_ERROR: CORRUPT_PAYLOAD]"
)

// ErrIntegrity is returned (wrapped) by Decrypt whenever a payload cannot be
// opened: bad encoding, wrong key, modified ciphertext or nonce.
var ErrIntegrity = errors.New("payload integrity check failed")

// Envelope is a sealed payload. Both fields are base64; the nonce travels
// with the ciphertext so the receiver can open it.
type Envelope struct {
	Data string `json:"data" cbor:"data"`
	IV   string `json:"iv" cbor:"iv"`
}

// GenerateMasterKey returns a fresh random 256-bit key, base64 encoded.
//
// An error here means the platform random source is unusable; callers should
// treat it as fatal rather than continue without keys.
func GenerateMasterKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	if _, err := newGCM(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return Encode(key), nil
}

// importKey decodes a base64 key and builds a GCM instance for it.
// It runs on every operation.
func importKey(encodedKey string) (cipher.AEAD, error) {
	key, err := Decode(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return newGCM(key)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-GCM under encodedKey.
//
// A new random 12-byte nonce is drawn from crypto/rand for every call, so two
// calls with the same key and plaintext produce different envelopes.
//
// Example:
//
//	key, _ := GenerateMasterKey()
//	env, err := Encrypt("rendezvous at grid 7", key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(env.Data, env.IV)
func Encrypt(plaintext, encodedKey string) (Envelope, error) {
	aesgcm, err := importKey(encodedKey)
	if err != nil {
		return Envelope{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)

	return Envelope{Data: Encode(ciphertext), IV: Encode(nonce)}, nil
}

// Decrypt opens an envelope produced by Encrypt.
//
// Every failure, including malformed base64, is reported as an error that
// matches ErrIntegrity with errors.Is. Decrypt never panics on bad input.
func Decrypt(encodedCiphertext, encodedIV, encodedKey string) (string, error) {
	aesgcm, err := importKey(encodedKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	nonce, err := Decode(encodedIV)
	if err != nil {
		return "", fmt.Errorf("%w: decode iv: %v", ErrIntegrity, err)
	}
	if len(nonce) != aesgcm.NonceSize() {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrIntegrity, aesgcm.NonceSize(), len(nonce))
	}

	ciphertext, err := Decode(encodedCiphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode data: %v", ErrIntegrity, err)
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	return string(plaintext), nil
}

// HashPin returns base64(SHA-256(pin + PinSalt)). It is deterministic.
func HashPin(pin string) string {
	sum := sha256.Sum256([]byte(pin + PinSalt))
	return Encode(sum[:])
}

// DeriveWrappingKey derives a 32-byte key from a PIN and a per-role salt
// with Argon2id. The result wraps the channel key in the credential store.
func DeriveWrappingKey(pin []byte, salt []byte) []byte {
	return argon2.IDKey(pin, salt, 1, 64*1024, 4, KeySize)
}

// Fingerprint returns a short, non-secret reference to an encoded key:
// the first 8 bytes of its SHA-256, hex encoded.
func Fingerprint(encodedKey string) string {
	sum := sha256.Sum256([]byte(encodedKey))
	return fmt.Sprintf("%x", sum[:8])
}

// Encode is the text encoding used for all binary material.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
