// internal/container/container.go

package container

import (
	"context"
	"fmt"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"
	"sshOrchestrator/internal/ssh"
)

// Report opisuje wynik sprzątania kontenerów na maszynie
type Report struct {
	Stopped []string
	Removed []string
}

// Cleaner zatrzymuje i usuwa wszystkie kontenery na maszynie
type Cleaner interface {
	Cleanup(ctx context.Context) (*Report, error)
}

// Runner wykonuje polecenia na zdalnej maszynie
type Runner interface {
	Run(ctx context.Context, job models.Job) (*ssh.CommandResult, error)
	CommandExists(ctx context.Context, name string) (bool, error)
}

// New tworzy Cleaner dla trybu z konfiguracji; tryb "none" zwraca nil
func New(mode string, conn *ssh.Connection, dockerSocket string) (Cleaner, error) {
	switch mode {
	case "", models.ContainerCleanupCLI:
		return NewCLICleaner(conn), nil
	case models.ContainerCleanupAPI:
		if dockerSocket == "" {
			dockerSocket = models.DefaultDockerSocket
		}
		return NewAPICleaner(SSHDockerOpener(conn, dockerSocket)), nil
	case models.ContainerCleanupNone:
		return nil, nil
	}
	return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("unknown container cleanup mode %q", mode), nil)
}
