// internal/ssh/connection.go

package ssh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sshOrchestrator/internal/crypto"
	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/logging"
	"sshOrchestrator/internal/models"

	"github.com/charmbracelet/log"
	"github.com/segmentio/backo-go"
	"golang.org/x/crypto/ssh"
)

// SessionState reprezentuje stan połączenia SSH
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// ConnectionConfig zawiera konfigurację połączenia
type ConnectionConfig struct {
	Host           *models.Host
	Parent         *Connection    // Połączenie proxy, nil dla połączenia bezpośredniego
	Signer         ssh.Signer     // Gotowy podpisujący; gdy nil, klucz czytany z Host.Key
	Cipher         *crypto.Cipher // Do odszyfrowania hasła klucza
	MaxRetries     int
	InitialDelay   time.Duration
	Timeout        time.Duration
	PidFile        string
	LogDir         string
	Sudo           string
	HostKeyPolicy  string
	KnownHostsFile string
}

func (c *ConnectionConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = c.Host.MaxRetries
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = models.DefaultMaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = models.DefaultInitialDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.PidFile == "" {
		c.PidFile = models.DefaultPidFile
	}
	if c.LogDir == "" {
		c.LogDir = models.DefaultLogDir
	}
	if c.Sudo == "" {
		c.Sudo = models.DefaultSudo
	}
	if c.HostKeyPolicy == "" {
		c.HostKeyPolicy = models.HostKeyInsecure
	}
}

// maxBackoff ogranicza pojedyncze oczekiwanie między próbami
const maxBackoff = 10 * time.Minute

type (
	dialFunc      func(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error)
	proxyDialFunc func(parent *ssh.Client, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error)
	sleepFunc     func(ctx context.Context, d time.Duration) error
)

// Connection reprezentuje połączenie SSH do jednej maszyny, opcjonalnie przez proxy
type Connection struct {
	config    ConnectionConfig
	parent    *Connection
	client    *ssh.Client
	state     SessionState
	lastError error
	mu        sync.RWMutex
	backoff   *backo.Backo
	dial      dialFunc
	proxyDial proxyDialFunc
	sleep     sleepFunc
	logger    *log.Logger
}

// NewConnection tworzy nowe (jeszcze nie nawiązane) połączenie SSH
func NewConnection(config ConnectionConfig) (*Connection, error) {
	if config.Host == nil {
		return nil, apperr.New(apperr.ValidationError, "host configuration is required", nil)
	}
	if err := config.Host.Validate(); err != nil {
		return nil, apperr.New(apperr.ValidationError, "invalid host configuration", err)
	}
	config.applyDefaults()

	return &Connection{
		config:    config,
		parent:    config.Parent,
		state:     StateDisconnected,
		backoff:   backo.NewBacko(config.InitialDelay, 2, 0, maxBackoff),
		dial:      dialDirect,
		proxyDial: dialThrough,
		sleep:     sleepContext,
		logger:    logging.ForMachine(config.Host.Name),
	}, nil
}

// Connect nawiązuje połączenie, ponawiając próby z wykładniczym opóźnieniem.
// Połączenie proxy jest nawiązywane jako pierwsze.
func (c *Connection) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	clientConfig, err := c.clientConfig()
	if err != nil {
		c.fail(err)
		return err
	}

	addr := c.Address()
	c.setState(StateConnecting)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if c.parent != nil && !c.parent.IsConnected() {
			c.logger.Debug("Connecting proxy first", "proxy", c.parent.Name())
			if err := c.parent.Connect(ctx); err != nil {
				err = apperr.New(apperr.ConnectionError,
					fmt.Sprintf("no proxy path to %s via %s", addr, c.parent.Name()), err)
				c.fail(err)
				return err
			}
		}

		attempts = attempt
		client, err := c.handshake(addr, clientConfig)
		if err == nil {
			c.mu.Lock()
			c.client = client
			c.state = StateConnected
			c.lastError = nil
			c.mu.Unlock()

			if c.parent != nil {
				c.logger.Info("Connection established", "host", addr, "via", c.parent.Name(), "attempt", attempt)
			} else {
				c.logger.Info("Connection established", "host", addr, "attempt", attempt)
			}
			return nil
		}

		lastErr = err
		c.logger.Warn("Connection attempt failed", "host", addr, "attempt", attempt, "of", c.config.MaxRetries, "err", err)

		if attempt == c.config.MaxRetries {
			break
		}
		delay := c.backoff.Duration(attempt - 1)
		c.logger.Info("Retrying connection", "host", addr, "in", delay)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	err = apperr.New(apperr.ConnectionError,
		fmt.Sprintf("failed to connect to %s after %d attempt(s)", addr, attempts), lastErr)
	c.fail(err)
	c.logger.Error("Giving up on connection", "host", addr, "err", lastErr)
	return err
}

func (c *Connection) handshake(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	if c.parent == nil {
		return c.dial(addr, cfg)
	}
	return c.proxyDial(c.parent.Client(), addr, cfg)
}

func (c *Connection) clientConfig() (*ssh.ClientConfig, error) {
	signer, err := c.signer()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := newHostKeyCallback(c.config.HostKeyPolicy, c.config.KnownHostsFile)
	if err != nil {
		return nil, apperr.New(apperr.ConfigError, "failed to create host key callback", err)
	}

	return &ssh.ClientConfig{
		User:            c.config.Host.Login,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.config.Timeout,
	}, nil
}

func (c *Connection) signer() (ssh.Signer, error) {
	if c.config.Signer != nil {
		return c.config.Signer, nil
	}
	return loadSigner(c.config.Host.Key, c.config.Cipher)
}

func dialDirect(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	return ssh.Dial("tcp", addr, cfg)
}

// dialThrough otwiera kanał direct-tcpip przez klienta proxy i wykonuje na nim handshake
func dialThrough(parent *ssh.Client, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	if parent == nil {
		return nil, apperr.ErrNotConnected
	}

	conn, err := parent.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open tunnel to %s: %v", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake through proxy failed: %w", err)
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Disconnect zamyka połączenie. Połączenie proxy pozostaje otwarte.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if client == nil {
		return nil
	}

	c.logger.Debug("Closing connection", "host", c.Address())
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close connection to %s: %v", c.Address(), err)
	}
	return nil
}

// Ping wysyła keepalive i sprawdza czy połączenie nadal odpowiada
func (c *Connection) Ping(ctx context.Context) error {
	client := c.Client()
	if client == nil {
		return c.notConnected()
	}

	errCh := make(chan error, 1)
	go func() {
		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return apperr.New(apperr.ConnectionError, "keepalive failed", err)
		}
		return nil
	}
}

// IsConnected sprawdza czy połączenie jest aktywne
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.state == StateConnected
}

// Client zwraca klienta SSH (potrzebne dla transferu plików i tuneli)
func (c *Connection) Client() *ssh.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Connection) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Connection) Parent() *Connection {
	return c.parent
}

func (c *Connection) Host() *models.Host {
	return c.config.Host
}

func (c *Connection) Name() string {
	return c.config.Host.Name
}

func (c *Connection) Address() string {
	return c.config.Host.Addr()
}

func (c *Connection) PidFile() string {
	return c.config.PidFile
}

func (c *Connection) LogDir() string {
	return c.config.LogDir
}

func (c *Connection) setState(state SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// fail zapisuje błąd i pozostawia połączenie w stanie rozłączonym
func (c *Connection) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = err
	c.state = StateDisconnected
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *Connection) notConnected() error {
	return apperr.New(apperr.NotConnectedError,
		fmt.Sprintf("connection to %s (%s) not established", c.Name(), c.Address()), nil)
}
