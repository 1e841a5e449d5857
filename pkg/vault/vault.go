package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32
	iterations = 100000
)

// ErrNoPassphrase indicates the vault was built without a passphrase.
var ErrNoPassphrase = errors.New("vault: passphrase não configurada")

// ErrDecrypt indicates the ciphertext could not be opened with the derived
// key. A wrong passphrase always surfaces here; it never produces garbage.
var ErrDecrypt = errors.New("vault: falha ao decriptar (chave errada ou dado corrompido)")

// Vault encrypts session blobs with AES-GCM. The key is derived once from the
// passphrase via PBKDF2 with a fixed per-install salt, so the same vault can
// reopen blobs written by previous runs.
type Vault struct {
	key []byte
}

// New derives the AES key from the passphrase. Empty passphrase is a hard
// configuration error; callers must refuse to start without one.
func New(passphrase, salt string) (*Vault, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	if salt == "" {
		salt = "hermes-session-vault"
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, keySize, sha256.New)
	return &Vault{key: key}, nil
}

// EncryptString seals a plaintext and returns it base64-encoded with the
// nonce prepended, ready for a TEXT column.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a blob produced by EncryptString.
func (v *Vault) DecryptString(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecrypt
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
