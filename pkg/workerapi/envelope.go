// Package workerapi implements the worker's encrypted HTTP boundary: a
// small set of JSON endpoints the controller drives over the network,
// every request and response body sealed with a per-agent symmetric key.
package workerapi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds derived keys to this protocol so the same agent secret
// can never be reused verbatim as an AEAD key for another purpose.
const hkdfInfo = "ariana-workerapi-envelope-v1"

// DeriveKey derives a 32-byte ChaCha20-Poly1305 key from the per-agent
// secret established at provisioning and stored via AgentRepository.
func DeriveKey(agentSecret []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, agentSecret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive envelope key: %w", err)
	}
	return key, nil
}

// Envelope is the wire shape every WorkerAPI endpoint accepts and returns:
// {"encrypted": "<base64 ciphertext>"}. A plaintext {"error": "..."} with an
// HTTP 4xx is used instead for envelope-level failures (decrypt/validate).
type Envelope struct {
	Encrypted string `json:"encrypted"`
}

// ErrorBody is the plaintext response for envelope-level failures.
type ErrorBody struct {
	Error string `json:"error"`
}

// Seal encrypts plaintext into an Envelope under key, with a fresh random
// nonce prepended to the ciphertext.
func Seal(key []byte, plaintext []byte) (*Envelope, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)
	return &Envelope{Encrypted: base64.StdEncoding.EncodeToString(ciphertext)}, nil
}

// SealJSON marshals v to JSON and seals it.
func SealJSON(key []byte, v any) (*Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope payload: %w", err)
	}
	return Seal(key, plaintext)
}

// Open decrypts an Envelope under key, returning the plaintext bytes.
func Open(key []byte, env *Envelope) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("envelope too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt envelope: %w", err)
	}
	return plaintext, nil
}

// OpenJSON decrypts an Envelope and unmarshals it into v.
func OpenJSON(key []byte, env *Envelope, v any) error {
	plaintext, err := Open(key, env)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("unmarshal envelope payload: %w", err)
	}
	return nil
}
