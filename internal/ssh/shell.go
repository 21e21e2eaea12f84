// internal/ssh/shell.go
//go:build !windows

package ssh

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// Shell to interaktywna sesja na maszynie, otwierana na istniejącym połączeniu
type Shell struct {
	conn       *Connection
	session    *ssh.Session
	termWidth  int
	termHeight int
	keepAlive  time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
}

// NewShell tworzy sesję interaktywną
func (c *Connection) NewShell() (*Shell, error) {
	client := c.Client()
	if client == nil {
		return nil, c.notConnected()
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %v", err)
	}

	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width, height = 80, 24
	}

	return &Shell{
		conn:       c,
		session:    session,
		termWidth:  width,
		termHeight: height,
		keepAlive:  30 * time.Second,
		stopChan:   make(chan struct{}),
	}, nil
}

// Run żąda PTY, przełącza terminal w tryb raw i czeka na zakończenie powłoki
func (s *Shell) Run(termType string) error {
	defer s.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
		ssh.VINTR:         3,  // Ctrl+C
		ssh.VQUIT:         28, // Ctrl+\
		ssh.VERASE:        127,
		ssh.VKILL:         21, // Ctrl+U
		ssh.VEOF:          4,  // Ctrl+D
		ssh.VSUSP:         26, // Ctrl+Z
	}
	if err := s.session.RequestPty(termType, s.termHeight, s.termWidth, modes); err != nil {
		return fmt.Errorf("failed to request PTY: %v", err)
	}

	s.session.Stdin = os.Stdin
	s.session.Stdout = os.Stdout
	s.session.Stderr = os.Stderr

	rawState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to set raw terminal: %v", err)
	}
	defer func() {
		if err := term.Restore(int(os.Stdin.Fd()), rawState); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to restore terminal state: %v\n", err)
		}
	}()

	go s.handleSignals()
	if s.keepAlive > 0 {
		go s.keepAliveLoop()
	}

	if err := s.session.Shell(); err != nil {
		return fmt.Errorf("failed to start shell: %v", err)
	}

	if err := s.session.Wait(); err != nil {
		// Kod wyjścia ostatniego polecenia w powłoce nie jest błędem sesji
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return fmt.Errorf("session ended with error: %v", err)
	}
	return nil
}

func (s *Shell) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGWINCH)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			if err := s.updateTerminalSize(); err != nil {
				s.conn.logger.Debug("Terminal resize failed", "err", err)
			}
		case <-s.stopChan:
			return
		}
	}
}

func (s *Shell) updateTerminalSize() error {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return fmt.Errorf("failed to get terminal size: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if width == s.termWidth && height == s.termHeight {
		return nil
	}
	if err := s.session.WindowChange(height, width); err != nil {
		return fmt.Errorf("failed to update window size: %v", err)
	}
	s.termWidth = width
	s.termHeight = height
	return nil
}

func (s *Shell) keepAliveLoop() {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			client := s.conn.Client()
			if client == nil {
				s.Close()
				return
			}
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				s.conn.logger.Warn("Keepalive failed", "err", err)
				s.Close()
				return
			}
		case <-s.stopChan:
			return
		}
	}
}

// Close zamyka sesję; połączenie pozostaje otwarte
func (s *Shell) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return s.session.Close()
}
