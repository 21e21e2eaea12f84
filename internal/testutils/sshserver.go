// internal/testutils/sshserver.go

// Package testutils zawiera serwer SSH uruchamiany w procesie testów.
// Polecenia exec wykonywane są lokalnie przez sh -c, podsystem sftp obsługuje pkg/sftp,
// a kanały direct-tcpip pozwalają używać serwera jako proxy.
package testutils

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Key to para kluczy klienta zapisana na dysku
type Key struct {
	Signer ssh.Signer
	Path   string
}

// GenerateKey tworzy klucz ed25519 i zapisuje go w katalogu tymczasowym testu
func GenerateKey(t testing.TB) Key {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return Key{Signer: signer, Path: path}
}

// ExecHandler zastępuje lokalne wykonanie polecenia
type ExecHandler func(command string, stdout, stderr io.Writer) int

type Option func(*Server)

// WithExecHandler ustawia własną obsługę poleceń exec
func WithExecHandler(handler ExecHandler) Option {
	return func(s *Server) {
		s.exec = handler
	}
}

// Server to serwer SSH akceptujący jeden klucz publiczny
type Server struct {
	listener   net.Listener
	config     *ssh.ServerConfig
	hostKey    ssh.Signer
	exec       ExecHandler
	mu         sync.Mutex
	conns      map[net.Conn]struct{}
	handshakes int
	commands   []string
	tunnels    []string
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewServer uruchamia serwer na losowym porcie; zamykany automatycznie po teście
func NewServer(t testing.TB, authorized ssh.PublicKey, opts ...Option) *Server {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostKey, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("create host signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %s", meta.User())
		},
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		listener: listener,
		config:   config,
		hostKey:  hostKey,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Host zwraca adres nasłuchu (zawsze 127.0.0.1)
func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
}

// HostKey zwraca klucz publiczny serwera
func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey.PublicKey()
}

// Handshakes zwraca liczbę udanych uwierzytelnień
func (s *Server) Handshakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakes
}

// Commands zwraca otrzymane polecenia exec w kolejności
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Tunnels zwraca adresy docelowe otwartych kanałów direct-tcpip
func (s *Server) Tunnels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tunnels...)
}

// Close zatrzymuje serwer i zrywa aktywne połączenia
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	serverConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		conn.Close()
		return
	}
	defer serverConn.Close()

	s.mu.Lock()
	s.handshakes++
	s.mu.Unlock()

	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	for newChannel := range chans {
		newChannel := newChannel
		switch newChannel.ChannelType() {
		case "session":
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleSession(newChannel)
			}()
		case "direct-tcpip":
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleTunnel(newChannel)
			}()
		default:
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
	wg.Wait()
}

func (s *Server) handleSession(newChannel ssh.NewChannel) {
	channel, requests, err := newChannel.Accept()
	if err != nil {
		return
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				status := s.runCommand(payload.Command, channel, channel, channel.Stderr())
				channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
				channel.Close()
			}()
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			wg.Add(1)
			go func() {
				defer wg.Done()
				server, err := sftp.NewServer(channel)
				if err != nil {
					channel.Close()
					return
				}
				_ = server.Serve()
				channel.Close()
			}()
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// runCommand wykonuje polecenie z wejściem podłączonym do kanału (scp -t/-f czyta protokół ze stdin)
func (s *Server) runCommand(command string, stdin io.Reader, stdout, stderr io.Writer) int {
	if s.exec != nil {
		return s.exec(command, stdout, stderr)
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Pipe zamiast cmd.Stdin = stdin: Wait nie czeka wtedy na EOF z kanału,
	// którego klient może nigdy nie wysłać (procesy w tle)
	pipe, err := cmd.StdinPipe()
	if err != nil {
		return 127
	}
	if err := cmd.Start(); err != nil {
		return 127
	}
	go func() {
		// Kończy się na EOF od klienta albo po zamknięciu kanału; Wait zamyka pipe
		io.Copy(pipe, stdin)
		pipe.Close()
	}()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		return 127
	}
	return 0
}

func (s *Server) handleTunnel(newChannel ssh.NewChannel) {
	var payload struct {
		Host       string
		Port       uint32
		OriginHost string
		OriginPort uint32
	}
	if err := ssh.Unmarshal(newChannel.ExtraData(), &payload); err != nil {
		newChannel.Reject(ssh.ConnectionFailed, "invalid payload")
		return
	}

	addr := net.JoinHostPort(payload.Host, strconv.Itoa(int(payload.Port)))
	s.mu.Lock()
	s.tunnels = append(s.tunnels, addr)
	s.mu.Unlock()

	target, err := net.Dial("tcp", addr)
	if err != nil {
		newChannel.Reject(ssh.ConnectionFailed, err.Error())
		return
	}

	channel, requests, err := newChannel.Accept()
	if err != nil {
		target.Close()
		return
	}
	go ssh.DiscardRequests(requests)

	done := make(chan struct{})
	go func() {
		io.Copy(channel, target)
		channel.Close()
		close(done)
	}()
	io.Copy(target, channel)
	target.Close()
	<-done
}
