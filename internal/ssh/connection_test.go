package ssh

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"
	"sshOrchestrator/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testHost(name string, srv *testutils.Server, key testutils.Key, parent string) *models.Host {
	role := models.RoleHypervisor
	if parent != "" {
		role = models.RoleVM
	}
	return &models.Host{
		Name:    name,
		Role:    role,
		Address: srv.Host(),
		Port:    srv.Port(),
		Login:   "tester",
		Key:     models.Key{Path: key.Path},
		Parent:  parent,
	}
}

func newTestConnection(t *testing.T, host *models.Host, parent *Connection) *Connection {
	t.Helper()

	dir := t.TempDir()
	conn, err := NewConnection(ConnectionConfig{
		Host:         host,
		Parent:       parent,
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		Timeout:      5 * time.Second,
		PidFile:      filepath.Join(dir, "pids.txt"),
		LogDir:       dir,
		Sudo:         "env",
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Disconnect() })
	return conn
}

// unreachableHost zwraca host wskazujący na port, na którym nikt nie nasłuchuje
func unreachableHost(t *testing.T, name, parent string) *models.Host {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	key := testutils.GenerateKey(t)
	return &models.Host{
		Name:    name,
		Role:    models.RoleHypervisor,
		Address: "127.0.0.1",
		Port:    port,
		Login:   "tester",
		Key:     models.Key{Path: key.Path},
		Parent:  parent,
	}
}

func TestConnectDirect(t *testing.T) {
	key := testutils.GenerateKey(t)
	srv := testutils.NewServer(t, key.Signer.PublicKey())
	conn := newTestConnection(t, testHost("hv1", srv, key, ""), nil)

	assert.False(t, conn.IsConnected())
	assert.Equal(t, StateDisconnected, conn.State())

	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.IsConnected())
	assert.Equal(t, StateConnected, conn.State())
	assert.NoError(t, conn.Ping(context.Background()))

	// Ponowne Connect na aktywnym połączeniu nic nie robi
	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, 1, srv.Handshakes())

	require.NoError(t, conn.Disconnect())
	assert.False(t, conn.IsConnected())
	assert.NoError(t, conn.Disconnect())
}

func TestConnectThroughProxy(t *testing.T) {
	key := testutils.GenerateKey(t)
	srvA := testutils.NewServer(t, key.Signer.PublicKey())
	srvB := testutils.NewServer(t, key.Signer.PublicKey())

	a := newTestConnection(t, testHost("A", srvA, key, ""), nil)
	b := newTestConnection(t, testHost("B", srvB, key, "A"), a)

	var parentWasConnected bool
	b.proxyDial = func(parent *ssh.Client, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		parentWasConnected = a.IsConnected() && parent != nil
		return dialThrough(parent, addr, cfg)
	}

	require.NoError(t, b.Connect(context.Background()))

	assert.True(t, parentWasConnected)
	assert.True(t, a.IsConnected())
	assert.True(t, b.IsConnected())
	assert.Equal(t, []string{srvB.Addr()}, srvA.Tunnels())
	assert.Equal(t, 1, srvA.Handshakes())
	assert.Equal(t, 1, srvB.Handshakes())

	result, err := b.Run(context.Background(), models.Job{Command: "echo", Parameters: "through the proxy"})
	require.NoError(t, err)
	assert.Equal(t, "through the proxy\n", result.Output)

	// Rozłączenie dziecka nie zamyka proxy
	require.NoError(t, b.Disconnect())
	assert.True(t, a.IsConnected())
}

func TestConnectRetriesWithExponentialBackoff(t *testing.T) {
	host := unreachableHost(t, "hv1", "")
	conn, err := NewConnection(ConnectionConfig{
		Host:         host,
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	attempts := 0
	conn.dial = func(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		attempts++
		return nil, errors.New("connection refused")
	}
	var delays []time.Duration
	conn.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err = conn.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.HasType(err, apperr.ConnectionError))
	assert.Contains(t, err.Error(), "after 4 attempt(s)")
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, delays)
	assert.False(t, conn.IsConnected())
	assert.Equal(t, err, conn.LastError())
}

func TestConnectSucceedsAfterTransientFailures(t *testing.T) {
	key := testutils.GenerateKey(t)
	srv := testutils.NewServer(t, key.Signer.PublicKey())
	conn := newTestConnection(t, testHost("hv1", srv, key, ""), nil)

	attempts := 0
	conn.dial = func(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("no route to host")
		}
		return dialDirect(addr, cfg)
	}
	var delays []time.Duration
	conn.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
	assert.Nil(t, conn.LastError())
}

func TestConnectFailsWithoutProxyPath(t *testing.T) {
	parent, err := NewConnection(ConnectionConfig{Host: unreachableHost(t, "A", ""), MaxRetries: 2})
	require.NoError(t, err)
	parent.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	child, err := NewConnection(ConnectionConfig{Host: unreachableHost(t, "B", "A"), Parent: parent, MaxRetries: 5})
	require.NoError(t, err)
	proxyDials := 0
	child.proxyDial = func(parent *ssh.Client, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		proxyDials++
		return nil, errors.New("unexpected")
	}

	err = child.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no proxy path")
	assert.True(t, apperr.HasType(err, apperr.ConnectionError))
	assert.Zero(t, proxyDials)
	assert.False(t, parent.IsConnected())
	assert.False(t, child.IsConnected())
}

func TestConnectRejectsMissingKey(t *testing.T) {
	host := unreachableHost(t, "hv1", "")
	host.Key.Path = filepath.Join(t.TempDir(), "missing")
	conn, err := NewConnection(ConnectionConfig{Host: host})
	require.NoError(t, err)

	dials := 0
	conn.dial = func(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		dials++
		return nil, errors.New("unexpected")
	}

	err = conn.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.HasType(err, apperr.ConfigError))
	assert.Zero(t, dials)
}

func TestConnectStopsWhenContextCanceled(t *testing.T) {
	conn, err := NewConnection(ConnectionConfig{Host: unreachableHost(t, "hv1", ""), MaxRetries: 10, InitialDelay: time.Hour})
	require.NoError(t, err)
	attempts := 0
	conn.dial = func(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		attempts++
		return nil, errors.New("refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = conn.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "after 1 attempt(s)")
}

func TestNewConnectionValidatesHost(t *testing.T) {
	_, err := NewConnection(ConnectionConfig{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = NewConnection(ConnectionConfig{Host: &models.Host{Name: "hv1", Role: models.RoleHypervisor, Login: "root"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHostKeyAcceptNewThenKnownHosts(t *testing.T) {
	key := testutils.GenerateKey(t)
	srv := testutils.NewServer(t, key.Signer.PublicKey())
	knownHosts := filepath.Join(t.TempDir(), "ssh", "known_hosts")

	connect := func(policy string) error {
		conn, err := NewConnection(ConnectionConfig{
			Host:           testHost("hv1", srv, key, ""),
			MaxRetries:     1,
			HostKeyPolicy:  policy,
			KnownHostsFile: knownHosts,
		})
		require.NoError(t, err)
		defer conn.Disconnect()
		return conn.Connect(context.Background())
	}

	require.NoError(t, connect(models.HostKeyAcceptNew))
	data, err := os.ReadFile(knownHosts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[127.0.0.1]:"+strconv.Itoa(srv.Port()))

	require.NoError(t, connect(models.HostKeyKnownHosts))
	require.NoError(t, connect(models.HostKeyAcceptNew))

	// Inny klucz dla tego samego adresu musi zostać odrzucony
	other := testutils.NewServer(t, key.Signer.PublicKey())
	line := "[127.0.0.1]:" + strconv.Itoa(other.Port()) + " " + string(ssh.MarshalAuthorizedKey(srv.HostKey()))
	require.NoError(t, os.WriteFile(knownHosts, []byte(line), 0600))

	conn, err := NewConnection(ConnectionConfig{
		Host:           testHost("hv2", other, key, ""),
		MaxRetries:     1,
		HostKeyPolicy:  models.HostKeyAcceptNew,
		KnownHostsFile: knownHosts,
	})
	require.NoError(t, err)
	assert.Error(t, conn.Connect(context.Background()))
}

func TestFingerprint(t *testing.T) {
	key := testutils.GenerateKey(t)
	srv := testutils.NewServer(t, key.Signer.PublicKey())

	fingerprint, err := Fingerprint(srv.Addr(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ssh.FingerprintSHA256(srv.HostKey()), fingerprint)
}
