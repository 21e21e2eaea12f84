// internal/machine/machine.go

package machine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sshOrchestrator/internal/container"
	"sshOrchestrator/internal/crypto"
	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/logging"
	"sshOrchestrator/internal/models"
	"sshOrchestrator/internal/ssh"

	"github.com/charmbracelet/log"
)

// Options to ustawienia wspólne dla wszystkich maszyn w sesji
type Options struct {
	PidFile          string
	LogDir           string
	Sudo             string
	InitialDelay     time.Duration
	ConnectTimeout   time.Duration
	HostKeyPolicy    string
	KnownHostsFile   string
	ContainerCleanup string
	DockerSocket     string
	Transfer         string
	Cipher           *crypto.Cipher
}

// OptionsFromConfig przepisuje ustawienia z konfiguracji
func OptionsFromConfig(cfg *models.Config, cipher *crypto.Cipher) Options {
	return Options{
		PidFile:          cfg.PidFile,
		LogDir:           cfg.LogDir,
		Sudo:             cfg.Sudo,
		InitialDelay:     cfg.InitialDelay,
		ConnectTimeout:   cfg.ConnectTimeout,
		HostKeyPolicy:    cfg.HostKeyPolicy,
		KnownHostsFile:   cfg.KnownHostsFile,
		ContainerCleanup: cfg.ContainerCleanup,
		DockerSocket:     cfg.DockerSocket,
		Transfer:         cfg.Transfer,
		Cipher:           cipher,
	}
}

// RemoteMachine to zdalny hypervisor albo maszyna wirtualna biorąca udział w teście
type RemoteMachine struct {
	host     *models.Host
	parent   *RemoteMachine
	conn     *ssh.Connection
	transfer *ssh.FileTransfer
	cleaner  container.Cleaner
	network  *models.NetworkConfig
	mu       sync.RWMutex
	logger   *log.Logger
}

// New tworzy maszynę; połączenie dziecka używa połączenia rodzica jako proxy
func New(host *models.Host, parent *RemoteMachine, opts Options) (*RemoteMachine, error) {
	if host == nil {
		return nil, apperr.New(apperr.ValidationError, "host configuration is required", nil)
	}
	if host.Parent != "" && parent == nil {
		return nil, apperr.New(apperr.ValidationError,
			fmt.Sprintf("machine %q requires parent %q", host.Name, host.Parent), nil)
	}
	if parent != nil && host.Parent != "" && host.Parent != parent.Name() {
		return nil, apperr.New(apperr.ValidationError,
			fmt.Sprintf("machine %q declares parent %q but got %q", host.Name, host.Parent, parent.Name()), nil)
	}

	host = host.Clone()
	var parentConn *ssh.Connection
	if parent != nil {
		parentConn = parent.conn
		host.Parent = parent.Name()
	}

	conn, err := ssh.NewConnection(ssh.ConnectionConfig{
		Host:           host,
		Parent:         parentConn,
		Cipher:         opts.Cipher,
		MaxRetries:     host.MaxRetries,
		InitialDelay:   opts.InitialDelay,
		Timeout:        opts.ConnectTimeout,
		PidFile:        opts.PidFile,
		LogDir:         opts.LogDir,
		Sudo:           opts.Sudo,
		HostKeyPolicy:  opts.HostKeyPolicy,
		KnownHostsFile: opts.KnownHostsFile,
	})
	if err != nil {
		return nil, err
	}

	m := &RemoteMachine{
		host:     host,
		parent:   parent,
		conn:     conn,
		transfer: ssh.NewFileTransfer(conn, opts.Transfer),
		network:  host.Network,
		logger:   logging.ForMachine(host.Name),
	}

	// Kontenery sprzątamy tylko na maszynach bez rodzica
	if parent == nil {
		cleaner, err := container.New(opts.ContainerCleanup, conn, opts.DockerSocket)
		if err != nil {
			return nil, err
		}
		m.cleaner = cleaner
	}

	return m, nil
}

// Start nawiązuje połączenie (razem z połączeniami przodków)
func (m *RemoteMachine) Start(ctx context.Context) error {
	m.logger.Info("Starting machine", "address", m.conn.Address(), "role", m.Role())
	if err := m.conn.Connect(ctx); err != nil {
		m.logger.Error("Failed to start machine", "err", err)
		return err
	}
	return nil
}

// Stop kończy procesy z rejestru, na maszynie głównej sprząta kontenery i rozłącza.
// Każdy krok jest wykonywany nawet jeśli poprzedni się nie powiódł.
// Bez połączenia nic nie jest wysyłane, a Stop zwraca błąd NotConnectedError.
func (m *RemoteMachine) Stop(ctx context.Context) error {
	if !m.conn.IsConnected() {
		m.logger.Warn("Machine not connected, processes and containers left untouched")
		return apperr.New(apperr.NotConnectedError,
			fmt.Sprintf("stop %s: machine not connected", m.Name()), nil)
	}

	var errs []error
	if _, err := m.TerminateProcesses(ctx); err != nil {
		errs = append(errs, fmt.Errorf("terminate processes: %w", err))
	}
	if m.IsRoot() {
		if _, err := m.TerminateContainers(ctx); err != nil {
			errs = append(errs, fmt.Errorf("terminate containers: %w", err))
		}
	}
	if err := m.conn.Disconnect(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Error("Machine stopped with errors", "err", err)
		return fmt.Errorf("stop %s: %w", m.Name(), err)
	}
	m.logger.Info("Machine stopped")
	return nil
}

// Exec wykonuje jedno zadanie i loguje jego wynik
func (m *RemoteMachine) Exec(ctx context.Context, job models.Job) (*ssh.CommandResult, error) {
	result, err := m.conn.Run(ctx, job)
	if err != nil {
		m.logger.Error("Command failed", "command", job.CommandLine(), "err", err)
		return result, err
	}

	if !result.Background {
		m.logger.Info("Command output", "command", job.CommandLine(), "exit", result.ExitCode, "output", strings.TrimSpace(result.Output))
	}
	return result, nil
}

// Upload wysyła plik na maszynę
func (m *RemoteMachine) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := m.transfer.Upload(ctx, localPath, remotePath); err != nil {
		m.logger.Error("Upload failed", "local", localPath, "remote", remotePath, "err", err)
		return err
	}
	return nil
}

// FetchLog pobiera log procesu uruchomionego w tle
func (m *RemoteMachine) FetchLog(ctx context.Context, name string) (string, error) {
	content, err := m.transfer.FetchLog(ctx, name)
	if err != nil {
		m.logger.Error("Failed to fetch log", "log", name, "err", err)
		return "", err
	}
	return content, nil
}

// TerminateProcesses kończy procesy z rejestru PID-ów
func (m *RemoteMachine) TerminateProcesses(ctx context.Context) (*ssh.KillReport, error) {
	report, err := m.conn.Registry().KillAll(ctx)
	if err != nil {
		m.logger.Error("Failed to terminate processes", "err", err)
		return nil, err
	}
	return report, nil
}

// TerminateContainers zatrzymuje i usuwa kontenery
func (m *RemoteMachine) TerminateContainers(ctx context.Context) (*container.Report, error) {
	if m.cleaner == nil {
		return &container.Report{}, nil
	}

	report, err := m.cleaner.Cleanup(ctx)
	if err != nil {
		m.logger.Error("Failed to clean up containers", "err", err)
		return report, err
	}
	if len(report.Stopped) > 0 || len(report.Removed) > 0 {
		m.logger.Info("Containers cleaned up", "stopped", len(report.Stopped), "removed", len(report.Removed))
	}
	return report, nil
}

// RunningProcesses zwraca PID-y z rejestru
func (m *RemoteMachine) RunningProcesses(ctx context.Context) ([]string, error) {
	return m.conn.Registry().List(ctx)
}

func (m *RemoteMachine) Connection() *ssh.Connection {
	return m.conn
}

func (m *RemoteMachine) Parent() *RemoteMachine {
	return m.parent
}

func (m *RemoteMachine) IsRoot() bool {
	return m.parent == nil
}

func (m *RemoteMachine) Name() string {
	return m.host.Name
}

func (m *RemoteMachine) Role() models.Role {
	return m.host.Role
}

func (m *RemoteMachine) Host() *models.Host {
	return m.host
}

// Depth zwraca liczbę przodków w łańcuchu proxy
func (m *RemoteMachine) Depth() int {
	depth := 0
	for p := m.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

func (m *RemoteMachine) SetNetworkConfig(cfg *models.NetworkConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.network = cfg
}

func (m *RemoteMachine) NetworkConfig() *models.NetworkConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.network
}
