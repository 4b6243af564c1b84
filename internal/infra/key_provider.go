package infra

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

const (
	keyFileName = "journal.key"
	keySize     = 32 // 256-bit SQLCipher key

	// KeyEnvVar holds a hex journal key that overrides the key file.
	KeyEnvVar = "DABES_JOURNAL_KEY"
)

// FileKeyProvider implements domain.KeyProvider with a hex key file next to the journal.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, keyFileName),
	}
}

// GetKey reads and decodes the journal key.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeKey(string(encoded))
}

// StoreKey writes the key with 0600 permissions, creating the data directory if needed.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(p.keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnvKeyProvider reads the journal key from an environment variable. It cannot store keys.
type EnvKeyProvider struct {
	name string
}

// NewEnvKeyProvider creates a provider reading the named variable.
func NewEnvKeyProvider(name string) *EnvKeyProvider {
	return &EnvKeyProvider{name: name}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	v, ok := os.LookupEnv(p.name)
	if !ok {
		return nil, fmt.Errorf("%s is not set", p.name)
	}
	return decodeKey(v)
}

func (p *EnvKeyProvider) StoreKey([]byte) error {
	return fmt.Errorf("cannot store a key in %s", p.name)
}

func (p *EnvKeyProvider) KeyExists() bool {
	_, ok := os.LookupEnv(p.name)
	return ok
}

// NewKeyProvider prefers the DABES_JOURNAL_KEY variable and falls back to a key file in dataDir.
func NewKeyProvider(dataDir string) domain.KeyProvider {
	env := NewEnvKeyProvider(KeyEnvVar)
	if env.KeyExists() {
		return env
	}
	return NewFileKeyProvider(dataDir)
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the provider's key, generating and storing one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Ensure both providers implement domain.KeyProvider.
var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*EnvKeyProvider)(nil)
)
