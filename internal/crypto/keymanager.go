// Package crypto resolves the adjudicator's signing key. The key reaches
// the process either as raw hex in configuration or as a password-sealed
// envelope on disk, written by SealKey and opened with OpenKey.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfName  = "pbkdf2-sha256"
	aeadName = "aes-256-gcm"

	// kdfIterations follows the OWASP minimum for PBKDF2-HMAC-SHA256.
	kdfIterations = 600_000
	kdfSaltLen    = 16
	sealedKeyLen  = 32
)

// keyEnvelope is the sealed keyfile layout. The KDF parameters travel with
// the file, so the iteration count can be raised for new files without
// invalidating old ones.
type keyEnvelope struct {
	KDF        string `json:"kdf"`
	AEAD       string `json:"aead"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Sealed     string `json:"sealed"`
}

// KeyConfig names the places the signing key may come from.
type KeyConfig struct {
	// RawPrivateKey is the hex key itself, with or without 0x prefix. It
	// wins over the file when both are set.
	RawPrivateKey string

	// EncryptedKeyPath points at an envelope written by SealKey.
	EncryptedKeyPath string

	// KeyPassword opens the envelope at EncryptedKeyPath.
	KeyPassword string
}

// normalizeKeyHex strips an optional 0x prefix and checks the key decodes
// to the secp256k1 scalar length.
func normalizeKeyHex(s string) ([]byte, string, error) {
	h := strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, "", fmt.Errorf("crypto: private key is not hex: %w", err)
	}
	if len(b) != 32 {
		return nil, "", fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(b))
	}
	return b, h, nil
}

// sealCipher derives the AEAD for a password and salt at the given
// iteration count.
func sealCipher(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, iterations, sealedKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm init: %w", err)
	}
	return gcm, nil
}

// SealKey wraps a hex private key in a password-sealed envelope suitable
// for writing to disk.
func SealKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	keyBytes, _, err := normalizeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	aead, err := sealCipher(password, salt, kdfIterations)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	env := keyEnvelope{
		KDF:        kdfName,
		AEAD:       aeadName,
		Iterations: kdfIterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Sealed:     base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, keyBytes, nil)),
	}
	return json.MarshalIndent(env, "", "  ")
}

// OpenKey opens an envelope written by SealKey and returns the hex key
// without 0x prefix.
func OpenKey(envelope []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var env keyEnvelope
	if err := json.Unmarshal(envelope, &env); err != nil {
		return "", fmt.Errorf("crypto: parsing key envelope: %w", err)
	}
	if env.KDF != kdfName || env.AEAD != aeadName {
		return "", fmt.Errorf("crypto: unsupported envelope scheme %s/%s", env.KDF, env.AEAD)
	}
	if env.Iterations < 1 {
		return "", fmt.Errorf("crypto: invalid iteration count %d", env.Iterations)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Sealed)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding sealed key: %w", err)
	}

	aead, err := sealCipher(password, salt, env.Iterations)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: opening key envelope (wrong password?): %w", err)
	}
	return hex.EncodeToString(plain), nil
}

// LoadKey resolves the signing key from configuration: raw hex first, then
// the sealed envelope file.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		_, h, err := normalizeKeyHex(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return h, nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading key envelope: %w", err)
		}
		return OpenKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no signing key configured (set RawPrivateKey or EncryptedKeyPath)")
}
