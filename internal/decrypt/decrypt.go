// Package decrypt implements the unwrap engine for encrypted resource data
// carried inline in change notifications.
//
// The remote service encrypts resource data with a random AES session key in
// CBC mode and wraps that key with the subscriber's certificate using
// RSA-OAEP. The OAEP parameterization is fixed by the remote scheme: SHA-1
// as both the hash and the MGF1 hash. Any other choice fails to unwrap
// valid payloads, so it is matched bit-for-bit here.
//
// The engine is pure and synchronous: no I/O, no state across calls, safe
// for concurrent use from any number of background units.
package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"graphrelay/internal/types"
)

// ivSize is the length of the initialization vector prepended to the
// ciphertext.
const ivSize = 16

var (
	// ErrNoPrivateKey indicates the engine was constructed without key
	// material. This is a configuration error, caught at startup when
	// resource-data encryption is enabled.
	ErrNoPrivateKey = errors.New("decrypt: no private key configured")

	// ErrInvalidPadding indicates the decrypted payload carried malformed
	// PKCS#7 padding. Treated as evidence of tampering or a wrong key, never
	// silently truncated.
	ErrInvalidPadding = errors.New("decrypt: invalid PKCS#7 padding")
)

// Engine unwraps session keys and decrypts notification payloads using the
// deployment's RSA private key. The key is read-only and shared across all
// concurrent calls.
type Engine struct {
	key *rsa.PrivateKey
}

// NewEngine builds an Engine from PEM-encoded private key material.
// PKCS#1 ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings are
// accepted.
func NewEngine(pemKey []byte) (*Engine, error) {
	if len(pemKey) == 0 {
		return nil, ErrNoPrivateKey
	}

	key, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	return &Engine{key: key}, nil
}

// NewEngineWithKey builds an Engine from an already-parsed key. Used by
// tests that generate ephemeral key pairs.
func NewEngineWithKey(key *rsa.PrivateKey) *Engine {
	return &Engine{key: key}
}

// Unwrap recovers the plaintext resource data from an encrypted content
// block. The returned bytes are the UTF-8 JSON text of the resource; the
// caller decides how to structure it further.
func (e *Engine) Unwrap(content *types.EncryptedContent) ([]byte, error) {
	if e == nil || e.key == nil {
		return nil, ErrNoPrivateKey
	}
	if content == nil {
		return nil, types.NewAppError(types.ErrCodeDecryptPayload, "encrypted content is nil", nil)
	}

	sessionKey, err := e.unwrapKey(content.DataKey)
	if err != nil {
		return nil, err
	}

	return decryptPayload(content.Data, sessionKey)
}

// unwrapKey base64-decodes and RSA-OAEP-unwraps the symmetric session key.
func (e *Engine) unwrapKey(wrapped string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeDecryptKeyUnwrap, "wrapped key is not valid base64", err)
	}

	// SHA-1 for both OAEP hash and MGF1 hash, as mandated by the remote
	// encryption scheme.
	key, err := rsa.DecryptOAEP(sha1.New(), nil, e.key, raw, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeDecryptKeyUnwrap, "RSA-OAEP unwrap failed", err)
	}
	return key, nil
}

// decryptPayload base64-decodes the ciphertext, splits off the IV, runs
// AES-CBC, and strips PKCS#7 padding.
func decryptPayload(data string, sessionKey []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeDecryptPayload, "ciphertext is not valid base64", err)
	}
	if len(raw) < ivSize || (len(raw)-ivSize)%aes.BlockSize != 0 || len(raw) == ivSize {
		return nil, types.NewAppError(types.ErrCodeDecryptPayload,
			fmt.Sprintf("ciphertext length %d is not a whole number of blocks after the IV", len(raw)), nil)
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeDecryptKeyUnwrap, "unwrapped key is not a valid AES key", err)
	}

	iv, ciphertext := raw[:ivSize], raw[ivSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return stripPKCS7(plaintext)
}

// stripPKCS7 removes PKCS#7 padding. A padding length of zero or greater
// than the block size is rejected as tampering.
func stripPKCS7(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(plaintext[len(plaintext)-1])
	if n == 0 || n > aes.BlockSize || n > len(plaintext) {
		return nil, types.NewAppError(types.ErrCodeDecryptPadding,
			fmt.Sprintf("padding length %d out of range", n), ErrInvalidPadding)
	}
	return plaintext[:len(plaintext)-n], nil
}

// parsePrivateKey decodes a PEM block and parses PKCS#1 or PKCS#8 RSA key
// material.
func parsePrivateKey(pemKey []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, fmt.Errorf("decrypt: no PEM block found in private key material")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("decrypt: parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("decrypt: private key is %T, want *rsa.PrivateKey", parsed)
	}
	return key, nil
}
