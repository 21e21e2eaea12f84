// internal/ssh/shell_windows.go
//go:build windows

package ssh

import "errors"

// Shell nie jest wspierany na Windows
type Shell struct{}

func (c *Connection) NewShell() (*Shell, error) {
	return nil, errors.New("interactive shell is not supported on windows")
}

func (s *Shell) Run(termType string) error {
	return errors.New("interactive shell is not supported on windows")
}

func (s *Shell) Close() error {
	return nil
}
