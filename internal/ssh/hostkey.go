// internal/ssh/hostkey.go

package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sshOrchestrator/internal/models"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var knownHostsMu sync.Mutex

// newHostKeyCallback buduje callback weryfikacji klucza hosta według polityki z konfiguracji
func newHostKeyCallback(policy, knownHostsPath string) (ssh.HostKeyCallback, error) {
	switch policy {
	case "", models.HostKeyInsecure:
		return ssh.InsecureIgnoreHostKey(), nil
	case models.HostKeyKnownHosts:
		if knownHostsPath == "" {
			return nil, errors.New("known_hosts file is required")
		}
		return knownhosts.New(knownHostsPath)
	case models.HostKeyAcceptNew:
		if knownHostsPath == "" {
			return nil, errors.New("known_hosts file is required")
		}
		if err := ensureKnownHostsFile(knownHostsPath); err != nil {
			return nil, err
		}
		return acceptNewCallback(knownHostsPath), nil
	}
	return nil, fmt.Errorf("unknown host key policy %q", policy)
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %v", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts file %s: %v", path, err)
	}
	return f.Close()
}

// acceptNewCallback zapisuje klucze nieznanych hostów, a odrzuca zmienione klucze znanych
func acceptNewCallback(path string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		knownHostsMu.Lock()
		defer knownHostsMu.Unlock()

		callback, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("failed to read known_hosts %s: %v", path, err)
		}

		err = callback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			// Klucz się zmienił albo inny błąd - nie nadpisujemy
			return err
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open known_hosts %s: %v", path, err)
		}
		defer f.Close()

		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("failed to write known_hosts %s: %v", path, err)
		}
		return nil
	}
}

// Fingerprint zwraca odcisk SHA256 klucza hosta bez uwierzytelniania
func Fingerprint(addr string, timeout time.Duration) (string, error) {
	var result string
	config := &ssh.ClientConfig{
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			result = ssh.FingerprintSHA256(key)
			return nil
		},
		Timeout: timeout,
	}

	// Wystarczy handshake, błąd uwierzytelnienia jest oczekiwany
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil && result != "" {
		return result, nil
	} else if err != nil {
		return "", fmt.Errorf("failed to get host key: %v", err)
	}
	defer conn.Close()

	if result == "" {
		return "", errors.New("no host key received")
	}
	return result, nil
}
