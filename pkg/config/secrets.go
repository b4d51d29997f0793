package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"

	"advisor/pkg/logx"
)

//nolint:gochecknoglobals // package logger
var logger = logx.NewLogger("config")

// Layout of the encrypted file: [salt][nonce][AES-256-GCM ciphertext+tag].
const (
	secretsDirName  = ".advisor"
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	gcmTagSize      = 16
	keySize         = 32
	scryptN         = 1 << 15
	scryptR         = 8
	scryptP         = 1
	secretsFileMode = 0o600
)

var errDecrypt = errors.New("decryption failed (wrong password or corrupted file)")

// secretStore holds decrypted provider keys for the life of the process.
type secretStore struct {
	mu     sync.RWMutex
	values map[string]string
}

//nolint:gochecknoglobals // process-wide decrypted secrets
var secrets secretStore

// SetDecryptedSecrets replaces the in-memory secrets. nil clears them.
func SetDecryptedSecrets(values map[string]string) {
	secrets.mu.Lock()
	defer secrets.mu.Unlock()
	secrets.values = values
}

// GetSecret resolves name from the decrypted secrets file first, then the environment.
func GetSecret(name string) (string, error) {
	secrets.mu.RLock()
	value := secrets.values[name]
	secrets.mu.RUnlock()
	if value != "" {
		return value, nil
	}
	if value = os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetDecryptedSecretNames lists the names held in memory, never the values.
func GetDecryptedSecretNames() []string {
	secrets.mu.RLock()
	defer secrets.mu.RUnlock()
	names := make([]string, 0, len(secrets.values))
	for name := range secrets.values {
		names = append(names, name)
	}
	return names
}

// SetSecret stores one secret in memory. Call SaveSecretsToFile to persist it.
func SetSecret(name, value string) error {
	if name == "" {
		return errors.New("secret name must not be empty")
	}
	secrets.mu.Lock()
	defer secrets.mu.Unlock()
	if secrets.values == nil {
		secrets.values = make(map[string]string)
	}
	secrets.values[name] = value
	return nil
}

// DeleteSecret removes one secret from memory.
func DeleteSecret(name string) error {
	secrets.mu.Lock()
	defer secrets.mu.Unlock()
	delete(secrets.values, name)
	return nil
}

// SaveSecretsToFile encrypts the in-memory secrets into the file under dir.
func SaveSecretsToFile(dir, password string) error {
	secrets.mu.RLock()
	snapshot := make(map[string]string, len(secrets.values))
	for k, v := range secrets.values {
		snapshot[k] = v
	}
	secrets.mu.RUnlock()
	return EncryptSecretsFile(dir, password, snapshot)
}

// SecretsFilePath returns the location of the encrypted secrets file under dir.
func SecretsFilePath(dir string) string {
	return filepath.Join(dir, secretsDirName, secretsFileName)
}

// SecretsFileExists reports whether dir holds an encrypted secrets file.
func SecretsFileExists(dir string) bool {
	_, err := os.Stat(SecretsFilePath(dir))
	return err == nil
}

// EncryptSecretsFile writes values to dir, sealed with a key derived from password.
func EncryptSecretsFile(dir, password string, values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	header := make([]byte, saltSize+nonceSize)
	if _, err := rand.Read(header); err != nil {
		return fmt.Errorf("failed to generate salt and nonce: %w", err)
	}
	aead, err := newAEAD(password, header[:saltSize])
	if err != nil {
		return err
	}
	data := aead.Seal(header, header[saltSize:], plaintext, nil)

	if err := os.MkdirAll(filepath.Join(dir, secretsDirName), 0o700); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", secretsDirName, err)
	}
	if err := os.WriteFile(SecretsFilePath(dir), data, secretsFileMode); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and opens the secrets file under dir.
func DecryptSecretsFile(dir, password string) (map[string]string, error) {
	path := SecretsFilePath(dir)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != secretsFileMode {
		logger.Warn("secrets file has permissions %04o, resetting to 0600", perm)
		if err := os.Chmod(path, secretsFileMode); err != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(data) < saltSize+nonceSize+gcmTagSize {
		return nil, errors.New("secrets file is corrupted or invalid format (too small)")
	}

	aead, err := newAEAD(password, data[:saltSize])
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, data[saltSize:saltSize+nonceSize], data[saltSize+nonceSize:], nil)
	if err != nil {
		return nil, errDecrypt
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return values, nil
}

// newAEAD derives an AES-256-GCM cipher from password and salt with scrypt.
func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	pw := []byte(password)
	key, err := scrypt.Key(pw, salt, scryptN, scryptR, scryptP, keySize)
	clear(pw)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// LoadSecrets decrypts the secrets file under dir into memory. A missing file is not an error.
func LoadSecrets(dir, password string) error {
	if !SecretsFileExists(dir) {
		return nil
	}
	values, err := DecryptSecretsFile(dir, password)
	if err != nil {
		return err
	}
	SetDecryptedSecrets(values)
	logger.Info("loaded %d secrets from %s", len(values), SecretsFilePath(dir))
	return nil
}
