package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

type EncryptionMethod string

const (
	EncryptionNone   EncryptionMethod = "none"
	EncryptionSSHKey EncryptionMethod = "ssh_key"
)

const keyDerivationMessage = "lumora-record-key-derivation-v1"

var ErrPassphraseRequired = errors.New("SSH key is encrypted - passphrase required")

// RecordCipher seals persisted records with AES-256-GCM. The key is derived
// from an SSH signature over a fixed message, so the same SSH key always
// opens the same records.
type RecordCipher struct {
	aead cipher.AEAD
}

// NewRecordCipher loads the SSH key at keyPath and derives the record key
// from it. An empty passphrase is fine for unencrypted keys; an encrypted key
// without one yields ErrPassphraseRequired.
func NewRecordCipher(keyPath, passphrase string) (*RecordCipher, error) {
	signer, err := LoadSSHSigner(ExpandPath(keyPath), passphrase)
	if err != nil {
		return nil, err
	}

	key, err := DeriveAESKeyFromSSH(signer)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	if Debug && DebugLog != nil {
		DebugLog.Printf("[RecordCipher] key derived from %s (%s)", keyPath, signer.PublicKey().Type())
	}

	return NewRecordCipherFromKey(key)
}

// NewRecordCipherFromKey builds a cipher around a raw 32-byte key.
func NewRecordCipherFromKey(key []byte) (*RecordCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("record key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &RecordCipher{aead: aead}, nil
}

// Seal encrypts plaintext. Output layout: [nonce][ciphertext + tag].
func (c *RecordCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func (c *RecordCipher) Open(sealed []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// DeriveAESKeyFromSSH hashes the signature of a fixed message into a 32-byte
// key. Only key types with deterministic signatures can be used.
func DeriveAESKeyFromSSH(signer ssh.Signer) ([]byte, error) {
	switch signer.PublicKey().Type() {
	case ssh.KeyAlgoED25519, ssh.KeyAlgoRSA:
	default:
		return nil, fmt.Errorf("unsupported key type %s: use an ed25519 or rsa key", signer.PublicKey().Type())
	}

	signature, err := signer.Sign(rand.Reader, []byte(keyDerivationMessage))
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	hash := sha256.Sum256(signature.Blob)
	return hash[:], nil
}
