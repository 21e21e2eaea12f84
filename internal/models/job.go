// internal/models/job.go

package models

import (
	"fmt"
	"regexp"
	"strings"

	apperr "sshOrchestrator/internal/error"
)

var logNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Job to pojedyncze polecenie do wykonania na zdalnej maszynie
type Job struct {
	Command    string        `json:"command" yaml:"command"`
	Parameters string        `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Sudo       bool          `json:"sudo,omitempty" yaml:"sudo,omitempty"`
	Delay      Duration      `json:"delay,omitempty" yaml:"delay,omitempty"`
	Background bool          `json:"background,omitempty" yaml:"background,omitempty"`
	LogName    string        `json:"cmd_output_name,omitempty" yaml:"cmd_output_name,omitempty"`
}

// Validate odrzuca błędną konfigurację zanim cokolwiek zostanie wysłane na hosta
func (j *Job) Validate() error {
	if strings.TrimSpace(j.Command) == "" {
		return apperr.New(apperr.ValidationError, "job command cannot be empty", nil)
	}
	if j.Delay < 0 {
		return apperr.New(apperr.ValidationError, fmt.Sprintf("negative delay for job %q", j.Command), nil)
	}
	if j.Background && j.LogName == "" {
		return apperr.New(apperr.ValidationError,
			fmt.Sprintf("for a background process, its output log file name is needed: %s", j.Command), nil)
	}
	if j.LogName != "" && !ValidLogName(j.LogName) {
		return apperr.New(apperr.ValidationError, fmt.Sprintf("invalid log name %q", j.LogName), nil)
	}
	return nil
}

// CommandLine zwraca polecenie razem z parametrami
func (j *Job) CommandLine() string {
	return strings.TrimSpace(j.Command + " " + j.Parameters)
}

// ValidLogName sprawdza czy nazwę logu można bezpiecznie wstawić do ścieżki i polecenia powłoki
func ValidLogName(name string) bool {
	return logNamePattern.MatchString(name)
}
