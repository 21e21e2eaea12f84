// internal/dataplane/dataplane.go

// Package dataplane uruchamia lokalny proces dataplane i czeka aż zgłosi gotowość.
package dataplane

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	apperr "sshOrchestrator/internal/error"

	"github.com/charmbracelet/log"
)

const (
	DefaultTimeout   = 60 * time.Second
	defaultTailLines = 20
	stopGracePeriod  = 10 * time.Second
)

// Options opisuje sposób uruchomienia dataplane
type Options struct {
	Argv    []string
	Marker  string        // Linia wyjścia oznaczająca gotowość
	Timeout time.Duration // Maksymalny czas oczekiwania na Marker
	Output  io.Writer     // Kopia wyjścia procesu, opcjonalna
}

// Process to uruchomiony proces dataplane
type Process struct {
	cmd   *exec.Cmd
	done  chan struct{}
	err   error
	mu    sync.Mutex
	tail  []string
	ready chan struct{}
}

// Start uruchamia proces i blokuje do pojawienia się znacznika gotowości.
// Zakończenie procesu przed znacznikiem albo przekroczenie czasu jest błędem.
func Start(ctx context.Context, opts Options) (*Process, error) {
	if len(opts.Argv) == 0 {
		return nil, apperr.New(apperr.ValidationError, "dataplane command cannot be empty", nil)
	}
	if opts.Marker == "" {
		return nil, apperr.New(apperr.ValidationError, "dataplane readiness marker cannot be empty", nil)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	reader, writer := io.Pipe()
	cmd := exec.Command(opts.Argv[0], opts.Argv[1:]...)
	cmd.Stdout = writer
	cmd.Stderr = writer
	// Potomkowie procesu mogą trzymać otwarte wyjście po jego zakończeniu
	cmd.WaitDelay = time.Second

	p := &Process{
		cmd:   cmd,
		done:  make(chan struct{}),
		ready: make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start dataplane: %w", err)
	}
	log.Info("Dataplane started", "pid", cmd.Process.Pid, "command", strings.Join(opts.Argv, " "))

	scanned := make(chan struct{})
	go p.scan(reader, opts.Marker, opts.Output, scanned)
	go func() {
		err := cmd.Wait()
		writer.Close()
		<-scanned
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case <-p.ready:
		log.Info("Dataplane ready", "marker", opts.Marker)
		return p, nil
	case <-p.done:
		select {
		case <-p.ready:
			return p, nil
		default:
		}
		return nil, fmt.Errorf("dataplane exited before becoming ready (%v):\n%s", p.exitError(), p.Tail())
	case <-timer.C:
		p.Stop()
		return nil, fmt.Errorf("timed out after %s waiting for dataplane marker %q:\n%s", opts.Timeout, opts.Marker, p.Tail())
	case <-ctx.Done():
		p.Stop()
		return nil, ctx.Err()
	}
}

func (p *Process) scan(r io.Reader, marker string, out io.Writer, scanned chan<- struct{}) {
	defer close(scanned)

	found := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if out != nil {
			fmt.Fprintln(out, line)
		}

		p.mu.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > defaultTailLines {
			p.tail = p.tail[len(p.tail)-defaultTailLines:]
		}
		p.mu.Unlock()

		if !found && strings.Contains(line, marker) {
			found = true
			close(p.ready)
		}
	}
	// Reszta wyjścia musi być czytana, inaczej proces zablokuje się na zapisie
	io.Copy(io.Discard, r)
}

// Running sprawdza czy proces nadal działa
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Pid zwraca identyfikator procesu
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Tail zwraca ostatnie linie wyjścia procesu
func (p *Process) Tail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.tail, "\n")
}

// Wait czeka na zakończenie procesu
func (p *Process) Wait() error {
	<-p.done
	return p.exitError()
}

func (p *Process) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop wysyła SIGTERM i czeka na zakończenie; po upływie limitu zabija proces
func (p *Process) Stop() error {
	if !p.Running() {
		return nil
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Debug("SIGTERM failed, killing dataplane", "err", err)
		p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(stopGracePeriod):
		log.Warn("Dataplane did not exit in time, killing", "pid", p.Pid())
		p.cmd.Process.Kill()
		<-p.done
	}

	log.Info("Dataplane stopped", "pid", p.Pid())
	return nil
}
