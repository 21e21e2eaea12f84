// internal/container/cli.go

package container

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sshOrchestrator/internal/models"

	"github.com/charmbracelet/log"
)

// CLICleaner sprząta kontenery poleceniami docker wykonywanymi przez sudo
type CLICleaner struct {
	runner Runner
}

func NewCLICleaner(runner Runner) *CLICleaner {
	return &CLICleaner{runner: runner}
}

func (c *CLICleaner) Cleanup(ctx context.Context) (*Report, error) {
	report := &Report{}

	exists, err := c.runner.CommandExists(ctx, "docker")
	if err != nil {
		return report, err
	}
	if !exists {
		log.Debug("docker not installed, no containers to clean up")
		return report, nil
	}

	// Nieudany stop nie przerywa sprzątania: rm jest wykonywany zawsze
	var errs []error
	running, err := c.list(ctx, "ps -q")
	if err != nil {
		errs = append(errs, err)
	} else if len(running) > 0 {
		if err := c.docker(ctx, "stop", running); err != nil {
			errs = append(errs, err)
		} else {
			report.Stopped = running
		}
	}

	all, err := c.list(ctx, "ps -a -q")
	if err != nil {
		errs = append(errs, err)
		return report, errors.Join(errs...)
	}
	if len(all) > 0 {
		if err := c.docker(ctx, "rm", all); err != nil {
			errs = append(errs, err)
		} else {
			report.Removed = all
		}
	}

	return report, errors.Join(errs...)
}

func (c *CLICleaner) list(ctx context.Context, args string) ([]string, error) {
	result, err := c.runner.Run(ctx, models.Job{Command: "docker", Parameters: args, Sudo: true})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("docker %s failed (exit %d): %s", args, result.ExitCode, strings.TrimSpace(result.Output))
	}
	return strings.Fields(result.Output), nil
}

func (c *CLICleaner) docker(ctx context.Context, action string, ids []string) error {
	result, err := c.runner.Run(ctx, models.Job{
		Command:    "docker",
		Parameters: action + " " + strings.Join(ids, " "),
		Sudo:       true,
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("docker %s failed (exit %d): %s", action, result.ExitCode, strings.TrimSpace(result.Output))
	}
	return nil
}
