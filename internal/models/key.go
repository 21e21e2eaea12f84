package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sshOrchestrator/internal/crypto"
)

// Key wskazuje klucz prywatny używany do uwierzytelnienia
type Key struct {
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`             // Ścieżka do klucza prywatnego
	Passphrase string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"` // Zaszyfrowane hasło klucza (hex)
}

// IsZero jest używane przez yaml przy omitempty
func (k Key) IsZero() bool {
	return k.Path == "" && k.Passphrase == ""
}

// Validate sprawdza poprawność danych Key
func (k *Key) Validate() error {
	if k.Passphrase != "" && k.Path == "" {
		return errors.New("key passphrase given without key path")
	}
	return nil
}

// IsProtected sprawdza czy klucz wymaga hasła
func (k *Key) IsProtected() bool {
	return k.Passphrase != ""
}

// GetKeyPath zwraca ścieżkę do klucza z rozwiniętym "~"
func (k *Key) GetKeyPath() (string, error) {
	if k.Path == "" {
		return "", errors.New("no key path available")
	}

	if k.Path == "~" || strings.HasPrefix(k.Path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get home directory: %v", err)
		}
		return filepath.Join(homeDir, strings.TrimPrefix(k.Path, "~")), nil
	}

	return k.Path, nil
}

// GetPassphrase zwraca odszyfrowane hasło klucza
func (k *Key) GetPassphrase(cipher *crypto.Cipher) (string, error) {
	if k.Passphrase == "" {
		return "", nil
	}
	if cipher == nil {
		return "", errors.New("key passphrase is encrypted but no cipher is configured")
	}
	return cipher.Decrypt(k.Passphrase)
}

// Clone tworzy kopię klucza
func (k *Key) Clone() *Key {
	return &Key{
		Path:       k.Path,
		Passphrase: k.Passphrase,
	}
}
