// internal/ssh/auth.go

package ssh

import (
	"errors"
	"fmt"
	"os"

	"sshOrchestrator/internal/crypto"
	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"

	"golang.org/x/crypto/ssh"
)

// loadSigner wczytuje klucz prywatny hosta, odszyfrowując hasło klucza jeśli jest ustawione
func loadSigner(key models.Key, cipher *crypto.Cipher) (ssh.Signer, error) {
	keyPath, err := key.GetKeyPath()
	if err != nil {
		return nil, apperr.New(apperr.ConfigError, "no SSH key configured", err)
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("failed to read SSH key %s", keyPath), err)
	}

	if key.IsProtected() {
		passphrase, err := key.GetPassphrase(cipher)
		if err != nil {
			return nil, apperr.New(apperr.CryptoError, "failed to decrypt key passphrase", err)
		}
		signer, err := ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("failed to parse SSH key %s", keyPath), err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("SSH key %s is passphrase protected", keyPath), err)
		}
		return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("failed to parse SSH key %s", keyPath), err)
	}
	return signer, nil
}
