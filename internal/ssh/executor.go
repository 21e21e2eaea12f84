// internal/ssh/executor.go

package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"

	"golang.org/x/crypto/ssh"
)

// BackgroundAck to wynik zwracany dla poleceń uruchomionych w tle
const BackgroundAck = "Command started in the background."

// CommandResult opisuje wynik wykonania polecenia
type CommandResult struct {
	Command    string // Pełna linia polecenia wysłana na maszynę
	Output     string // stdout i stderr
	ExitCode   int
	Duration   time.Duration
	Background bool
}

// CommandOptions to ustawienia zdalnego hosta potrzebne do zbudowania linii polecenia
type CommandOptions struct {
	PidFile string
	LogDir  string
	Sudo    string
}

// ShellQuote otacza tekst apostrofami dla POSIX sh
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// LogPath zwraca zdalną ścieżkę pliku logu procesu działającego w tle
func LogPath(logDir, name string) string {
	return path.Join(logDir, name+".log")
}

// BuildCommandLine buduje linię polecenia wysyłaną na zdalną maszynę.
// Polecenie w tle jest odłączane przez nohup, a jego PID dopisywany do rejestru
// w ramach tego samego wywołania powłoki.
func BuildCommandLine(job models.Job, opts CommandOptions) string {
	command := job.CommandLine()
	if job.Sudo && opts.Sudo != "" {
		command = opts.Sudo + " " + command
	}
	if !job.Background {
		return command
	}

	inner := fmt.Sprintf("nohup %s > %s 2>&1 < /dev/null & echo $! >> %s",
		command, ShellQuote(LogPath(opts.LogDir, job.LogName)), ShellQuote(opts.PidFile))
	return "sh -c " + ShellQuote(inner)
}

func (c *Connection) commandOptions() CommandOptions {
	return CommandOptions{
		PidFile: c.config.PidFile,
		LogDir:  c.config.LogDir,
		Sudo:    c.config.Sudo,
	}
}

// Run wykonuje zadanie na zdalnej maszynie.
// Zadanie pierwszoplanowe zwraca połączone wyjście, zadanie w tle zwraca od razu potwierdzenie.
// Niezerowy kod wyjścia nie jest błędem, trafia do CommandResult.ExitCode.
func (c *Connection) Run(ctx context.Context, job models.Job) (*CommandResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	client := c.Client()
	if client == nil || !c.IsConnected() {
		return nil, c.notConnected()
	}

	if job.Delay > 0 {
		c.logger.Debug("Delaying command", "delay", job.Delay)
		if err := c.sleep(ctx, job.Delay.Std()); err != nil {
			return nil, err
		}
	}

	commandLine := BuildCommandLine(job, c.commandOptions())
	c.logger.Debug("Running command", "host", c.Address(), "command", commandLine)

	start := time.Now()
	output, exitCode, err := execute(ctx, client, commandLine)
	result := &CommandResult{
		Command:    commandLine,
		Duration:   time.Since(start),
		Background: job.Background,
	}
	if err != nil {
		return result, err
	}

	if job.Background {
		result.Output = BackgroundAck
		result.ExitCode = exitCode
		c.logger.Info("Started background command", "command", job.CommandLine(), "log", LogPath(c.config.LogDir, job.LogName))
		return result, nil
	}

	result.Output = output
	result.ExitCode = exitCode
	c.logger.Info("Command finished", "command", job.CommandLine(), "exit", exitCode, "took", result.Duration.Round(time.Millisecond))
	return result, nil
}

// execute uruchamia linię polecenia w nowej sesji i czeka na jej zakończenie
func execute(ctx context.Context, client *ssh.Client, commandLine string) (string, int, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", -1, apperr.New(apperr.ConnectionError, "failed to create session", err)
	}
	defer session.Close()

	output := &combinedOutput{}
	session.Stdout = output
	session.Stderr = output

	done := make(chan error, 1)
	go func() {
		done <- session.Run(commandLine)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		return "", -1, ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return output.String(), exitErr.ExitStatus(), nil
		}
		var missing *ssh.ExitMissingError
		if errors.As(err, &missing) {
			return output.String(), -1, nil
		}
		return output.String(), -1, apperr.New(apperr.ConnectionError, "failed to run command", err)
	}
	return output.String(), 0, nil
}

// combinedOutput zbiera stdout i stderr, które sesja kopiuje z osobnych gorutyn
type combinedOutput struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (o *combinedOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(p)
}

func (o *combinedOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

// CommandExists sprawdza czy polecenie jest dostępne na zdalnej maszynie
func (c *Connection) CommandExists(ctx context.Context, name string) (bool, error) {
	result, err := c.Run(ctx, models.Job{Command: "command -v " + ShellQuote(name)})
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0 && strings.TrimSpace(result.Output) != "", nil
}
