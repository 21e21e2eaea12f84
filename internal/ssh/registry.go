// internal/ssh/registry.go

package ssh

import (
	"context"
	"fmt"
	"strings"

	"sshOrchestrator/internal/models"
)

// ProcessRegistry to zdalny plik z PID-ami procesów uruchomionych w tle
type ProcessRegistry struct {
	conn *Connection
	path string
}

// KillReport opisuje wynik zakończenia procesów z rejestru
type KillReport struct {
	Killed []string // Procesy zakończone sygnałem
	Gone   []string // Procesy, których nie udało się zakończyć (zwykle już nie istniały)
}

func (r *KillReport) Total() int {
	return len(r.Killed) + len(r.Gone)
}

// Registry zwraca rejestr procesów tego połączenia
func (c *Connection) Registry() *ProcessRegistry {
	return &ProcessRegistry{conn: c, path: c.config.PidFile}
}

func (r *ProcessRegistry) Path() string {
	return r.path
}

// List zwraca PID-y zapisane w rejestrze. Brak pliku oznacza pusty rejestr.
func (r *ProcessRegistry) List(ctx context.Context) ([]string, error) {
	result, err := r.conn.Run(ctx, models.Job{
		Command: fmt.Sprintf("cat %s 2>/dev/null || true", ShellQuote(r.path)),
	})
	if err != nil {
		return nil, err
	}
	return strings.Fields(result.Output), nil
}

// KillAll wysyła SIGTERM do każdego zarejestrowanego procesu i czyści rejestr.
// Całość wykonywana jest jednym wywołaniem powłoki; procesy, które już nie istnieją, nie są błędem.
func (r *ProcessRegistry) KillAll(ctx context.Context) (*KillReport, error) {
	result, err := r.conn.Run(ctx, models.Job{Command: killAllScript(r.path, r.conn.config.Sudo)})
	if err != nil {
		return nil, err
	}

	report := parseKillOutput(result.Output)
	if len(report.Gone) > 0 {
		r.conn.logger.Warn("Some registered processes could not be killed", "pids", strings.Join(report.Gone, " "))
	}
	r.conn.logger.Info("Killed registered processes", "killed", len(report.Killed), "gone", len(report.Gone))
	return report, nil
}

func killAllScript(pidFile, sudo string) string {
	kill := "kill"
	if sudo != "" {
		kill = sudo + " kill"
	}
	script := fmt.Sprintf(
		`for pid in $(cat %[1]s 2>/dev/null); do if %[2]s "$pid" 2>/dev/null; then echo "killed $pid"; else echo "gone $pid"; fi; done; : > %[1]s`,
		ShellQuote(pidFile), kill)
	return "sh -c " + ShellQuote(script)
}

func parseKillOutput(output string) *KillReport {
	report := &KillReport{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "killed":
			report.Killed = append(report.Killed, fields[1])
		case "gone":
			report.Gone = append(report.Gone, fields[1])
		}
	}
	return report
}
