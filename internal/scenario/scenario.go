// internal/scenario/scenario.go

// Package scenario wykonuje zapisane w pliku kroki testu na maszynach z katalogu.
package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"sshOrchestrator/internal/config"
	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/machine"
	"sshOrchestrator/internal/models"
	"sshOrchestrator/internal/ssh"
	"sshOrchestrator/internal/utils"
)

// Step to polecenie przypisane do jednej maszyny
type Step struct {
	Machine    string `json:"machine" yaml:"machine"`
	models.Job `yaml:",inline"`
	ExpectExit *int `json:"expect_exit,omitempty" yaml:"expect_exit,omitempty"`
}

// LogRequest wskazuje log procesu w tle do pobrania po zakończeniu kroków
type LogRequest struct {
	Machine string `json:"machine" yaml:"machine"`
	Name    string `json:"name" yaml:"name"`
}

// Scenario to cały plik scenariusza
type Scenario struct {
	Name      string                          `json:"name,omitempty" yaml:"name,omitempty"`
	Network   map[string]models.NetworkConfig `json:"network,omitempty" yaml:"network,omitempty"`
	Steps     []Step                          `json:"steps" yaml:"steps"`
	FetchLogs []LogRequest                    `json:"fetch_logs,omitempty" yaml:"fetch_logs,omitempty"`
}

// Load wczytuje i waliduje scenariusz z pliku YAML albo JSON
func Load(fs afero.Fs, path string) (*Scenario, error) {
	sc := &Scenario{}
	if err := config.LoadFile(fs, path, sc); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate sprawdza kroki zanim cokolwiek zostanie wysłane na maszyny
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return apperr.New(apperr.ValidationError, "scenario has no steps", nil)
	}
	for i := range s.Steps {
		step := &s.Steps[i]
		if strings.TrimSpace(step.Machine) == "" {
			return apperr.New(apperr.ValidationError, fmt.Sprintf("step %d: machine name cannot be empty", i+1), nil)
		}
		if err := step.Job.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	for _, req := range s.FetchLogs {
		if req.Machine == "" || !models.ValidLogName(req.Name) {
			return apperr.New(apperr.ValidationError, fmt.Sprintf("invalid log request %s/%q", req.Machine, req.Name), nil)
		}
	}
	return nil
}

// Target to maszyna, na której wykonywane są kroki
type Target interface {
	Exec(ctx context.Context, job models.Job) (*ssh.CommandResult, error)
	FetchLog(ctx context.Context, name string) (string, error)
}

// StepResult to wynik jednego kroku
type StepResult struct {
	Machine  string
	Command  string
	Output   string
	ExitCode int
}

// FetchedLog to log pobrany z maszyny; Path jest pusty, gdy nie zapisywano na dysk
type FetchedLog struct {
	Machine string
	Name    string
	Path    string
	Content string
}

type Report struct {
	Steps []StepResult
	Logs  []FetchedLog
}

// Runner wykonuje scenariusze na maszynach zwracanych przez lookup
type Runner struct {
	lookup func(name string) (Target, error)
	attach func(name string, cfg *models.NetworkConfig) error
	fs     afero.Fs
	logDir string
	logger *log.Logger
}

// Option konfiguruje Runner
type Option func(*Runner)

// WithLogDir zapisuje pobrane logi w dir jako <maszyna>-<nazwa>.log
func WithLogDir(fs afero.Fs, dir string) Option {
	return func(r *Runner) {
		r.fs = fs
		r.logDir = dir
	}
}

// NewRunner tworzy Runner działający na katalogu maszyn
func NewRunner(dir *machine.Directory, opts ...Option) *Runner {
	r := &Runner{
		lookup: func(name string) (Target, error) {
			m, err := dir.Lookup(name)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		attach: dir.AttachNetworkConfig,
		logger: newRunnerLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newRunnerLogger() *log.Logger {
	return log.With("component", "scenario")
}

// Run wykonuje kroki po kolei. Pierwszy błąd albo nieoczekiwany kod wyjścia przerywa scenariusz;
// raport zawiera kroki wykonane do tego momentu.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	report := &Report{}

	names := make([]string, 0, len(sc.Network))
	for name := range sc.Network {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cfg := sc.Network[name]
		if err := r.attach(name, &cfg); err != nil {
			return report, err
		}
	}

	for i, step := range sc.Steps {
		target, err := r.lookup(step.Machine)
		if err != nil {
			return report, fmt.Errorf("step %d: %w", i+1, err)
		}

		r.logger.Info("Running step", "step", i+1, "machine", step.Machine, "command", step.Job.CommandLine())
		result, err := target.Exec(ctx, step.Job)
		if err != nil {
			return report, fmt.Errorf("step %d on %s: %w", i+1, step.Machine, err)
		}

		report.Steps = append(report.Steps, StepResult{
			Machine:  step.Machine,
			Command:  result.Command,
			Output:   result.Output,
			ExitCode: result.ExitCode,
		})

		if step.ExpectExit != nil && *step.ExpectExit != result.ExitCode {
			return report, fmt.Errorf("step %d on %s: expected exit code %d, got %d",
				i+1, step.Machine, *step.ExpectExit, result.ExitCode)
		}
	}

	for _, req := range sc.FetchLogs {
		fetched, err := r.fetch(ctx, req)
		if err != nil {
			return report, err
		}
		report.Logs = append(report.Logs, *fetched)
	}

	return report, nil
}

func (r *Runner) fetch(ctx context.Context, req LogRequest) (*FetchedLog, error) {
	target, err := r.lookup(req.Machine)
	if err != nil {
		return nil, err
	}

	content, err := target.FetchLog(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch log %s from %s: %w", req.Name, req.Machine, err)
	}

	fetched := &FetchedLog{Machine: req.Machine, Name: req.Name, Content: content}
	if r.fs == nil || r.logDir == "" {
		return fetched, nil
	}

	if err := r.fs.MkdirAll(r.logDir, 0755); err != nil {
		return nil, apperr.New(apperr.FileError, "failed to create log directory", err)
	}
	fetched.Path = utils.LocalLogPath(r.logDir, req.Machine, req.Name)
	if err := afero.WriteFile(r.fs, fetched.Path, []byte(content), 0644); err != nil {
		return nil, apperr.New(apperr.FileError, fmt.Sprintf("failed to write %s", fetched.Path), err)
	}
	r.logger.Info("Saved log", "machine", req.Machine, "path", fetched.Path)
	return fetched, nil
}
