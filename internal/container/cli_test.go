package container

import (
	"context"
	"errors"
	"testing"

	"sshOrchestrator/internal/models"
	"sshOrchestrator/internal/ssh"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	dockerInstalled bool
	outputs         map[string]*ssh.CommandResult
	jobs            []models.Job
}

func (f *fakeRunner) Run(ctx context.Context, job models.Job) (*ssh.CommandResult, error) {
	f.jobs = append(f.jobs, job)
	if result, ok := f.outputs[job.CommandLine()]; ok {
		return result, nil
	}
	return &ssh.CommandResult{}, nil
}

func (f *fakeRunner) CommandExists(ctx context.Context, name string) (bool, error) {
	return f.dockerInstalled && name == "docker", nil
}

func (f *fakeRunner) commandLines() []string {
	var lines []string
	for _, job := range f.jobs {
		lines = append(lines, job.CommandLine())
	}
	return lines
}

func TestCLICleanerWithoutDocker(t *testing.T) {
	runner := &fakeRunner{}

	report, err := NewCLICleaner(runner).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Stopped)
	assert.Empty(t, report.Removed)
	assert.Empty(t, runner.jobs)
}

func TestCLICleanerStopsAndRemoves(t *testing.T) {
	runner := &fakeRunner{
		dockerInstalled: true,
		outputs: map[string]*ssh.CommandResult{
			"docker ps -q":    {Output: "aaa\nbbb\n"},
			"docker ps -a -q": {Output: "aaa\nbbb\nccc\n"},
		},
	}

	report, err := NewCLICleaner(runner).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb"}, report.Stopped)
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, report.Removed)

	want := []string{"docker ps -q", "docker stop aaa bbb", "docker ps -a -q", "docker rm aaa bbb ccc"}
	if diff := cmp.Diff(want, runner.commandLines()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	for _, job := range runner.jobs {
		assert.True(t, job.Sudo, "docker must run with sudo: %s", job.CommandLine())
	}
}

func TestCLICleanerNothingRunning(t *testing.T) {
	runner := &fakeRunner{dockerInstalled: true}

	report, err := NewCLICleaner(runner).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Stopped)
	assert.Equal(t, []string{"docker ps -q", "docker ps -a -q"}, runner.commandLines())
}

func TestCLICleanerReportsDockerFailure(t *testing.T) {
	runner := &fakeRunner{
		dockerInstalled: true,
		outputs: map[string]*ssh.CommandResult{
			"docker ps -q":    {Output: "aaa\n"},
			"docker stop aaa": {Output: "permission denied", ExitCode: 1},
		},
	}

	report, err := NewCLICleaner(runner).Cleanup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Empty(t, report.Stopped)
}

func TestCLICleanerRemovesEvenWhenStopFails(t *testing.T) {
	runner := &fakeRunner{
		dockerInstalled: true,
		outputs: map[string]*ssh.CommandResult{
			"docker ps -q":      {Output: "aaa\n"},
			"docker stop aaa":   {Output: "stop timed out", ExitCode: 1},
			"docker ps -a -q":   {Output: "aaa\nbbb\n"},
			"docker rm aaa bbb": {Output: "container aaa is running", ExitCode: 1},
		},
	}

	report, err := NewCLICleaner(runner).Cleanup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop timed out")
	assert.Contains(t, err.Error(), "container aaa is running")
	assert.Empty(t, report.Stopped)
	assert.Empty(t, report.Removed)

	want := []string{"docker ps -q", "docker stop aaa", "docker ps -a -q", "docker rm aaa bbb"}
	if diff := cmp.Diff(want, runner.commandLines()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestCLICleanerRemovesAfterStopFailure(t *testing.T) {
	runner := &fakeRunner{
		dockerInstalled: true,
		outputs: map[string]*ssh.CommandResult{
			"docker ps -q":    {Output: "aaa\n"},
			"docker stop aaa": {Output: "stop timed out", ExitCode: 1},
			"docker ps -a -q": {Output: "aaa\n"},
		},
	}

	report, err := NewCLICleaner(runner).Cleanup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker stop failed")
	assert.Equal(t, []string{"aaa"}, report.Removed)
	assert.Contains(t, runner.commandLines(), "docker rm aaa")
}

type errRunner struct{ fakeRunner }

func (e *errRunner) CommandExists(ctx context.Context, name string) (bool, error) {
	return false, errors.New("connection lost")
}

func TestCLICleanerPropagatesRunnerError(t *testing.T) {
	_, err := NewCLICleaner(&errRunner{}).Cleanup(context.Background())
	assert.EqualError(t, err, "connection lost")
}

func TestNewCleanerModes(t *testing.T) {
	cleaner, err := New(models.ContainerCleanupNone, nil, "")
	require.NoError(t, err)
	assert.Nil(t, cleaner)

	cleaner, err = New(models.ContainerCleanupCLI, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &CLICleaner{}, cleaner)

	cleaner, err = New(models.ContainerCleanupAPI, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &APICleaner{}, cleaner)

	_, err = New("podman", nil, "")
	assert.Error(t, err)
}
