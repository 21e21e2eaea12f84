package scenario

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"
	"sshOrchestrator/internal/ssh"
)

const scenarioYAML = `
name: vni-ping
network:
  vm1:
    ipv4: 172.32.4.9
    vni: 100
steps:
  - machine: hv1
    command: iperf3
    parameters: -s
    background: true
    cmd_output_name: iperf
  - machine: vm1
    command: ping
    parameters: -c 1 172.32.4.10
    sudo: true
    delay: 2s
    expect_exit: 0
fetch_logs:
  - machine: hv1
    name: iperf
`

type fakeTarget struct {
	name     string
	exitCode int
	execErr  error
	logs     map[string]string
	jobs     *[]string
}

func (f *fakeTarget) Exec(ctx context.Context, job models.Job) (*ssh.CommandResult, error) {
	*f.jobs = append(*f.jobs, f.name+": "+job.CommandLine())
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &ssh.CommandResult{Command: job.CommandLine(), Output: "ok from " + f.name, ExitCode: f.exitCode}, nil
}

func (f *fakeTarget) FetchLog(ctx context.Context, name string) (string, error) {
	content, ok := f.logs[name]
	if !ok {
		return "", apperr.New(apperr.TransferError, "no such log", nil)
	}
	return content, nil
}

type fakeDirectory struct {
	targets  map[string]*fakeTarget
	network  map[string]models.NetworkConfig
	executed []string
}

func newFakeDirectory(names ...string) *fakeDirectory {
	d := &fakeDirectory{targets: map[string]*fakeTarget{}, network: map[string]models.NetworkConfig{}}
	for _, name := range names {
		d.targets[name] = &fakeTarget{name: name, logs: map[string]string{}, jobs: &d.executed}
	}
	return d
}

func (d *fakeDirectory) runner(opts ...Option) *Runner {
	r := &Runner{
		lookup: func(name string) (Target, error) {
			target, ok := d.targets[name]
			if !ok {
				return nil, apperr.New(apperr.NotFoundError, fmt.Sprintf("machine %q not found", name), nil)
			}
			return target, nil
		},
		attach: func(name string, cfg *models.NetworkConfig) error {
			if _, ok := d.targets[name]; !ok {
				return apperr.New(apperr.NotFoundError, fmt.Sprintf("machine %q not found", name), nil)
			}
			d.network[name] = *cfg
			return nil
		},
	}
	r.logger = newRunnerLogger()
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func loadTestScenario(t *testing.T) *Scenario {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scenarios/ping.yaml", []byte(scenarioYAML), 0644))
	sc, err := Load(fs, "/scenarios/ping.yaml")
	require.NoError(t, err)
	return sc
}

func TestLoadScenario(t *testing.T) {
	sc := loadTestScenario(t)

	assert.Equal(t, "vni-ping", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, "hv1", sc.Steps[0].Machine)
	assert.True(t, sc.Steps[0].Background)
	assert.Equal(t, "iperf", sc.Steps[0].LogName)
	assert.Equal(t, 2*time.Second, sc.Steps[1].Delay.Std())
	require.NotNil(t, sc.Steps[1].ExpectExit)
	assert.Zero(t, *sc.Steps[1].ExpectExit)
	assert.Equal(t, uint32(100), sc.Network["vm1"].VNI)
	assert.Equal(t, []LogRequest{{Machine: "hv1", Name: "iperf"}}, sc.FetchLogs)
}

func TestLoadAcceptsDelayInSecondsAndAsDuration(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/s.yaml", []byte(`
steps:
  - machine: hv1
    command: ping
    delay: 2
  - machine: hv1
    command: ping
    delay: 1500ms
`), 0644))
	require.NoError(t, afero.WriteFile(fs, "/s.json", []byte(`{
  "steps": [
    {"machine": "hv1", "command": "ping", "delay": 2},
    {"machine": "hv1", "command": "ping", "delay": "1500ms"}
  ]
}`), 0644))

	for _, path := range []string{"/s.yaml", "/s.json"} {
		t.Run(path, func(t *testing.T) {
			sc, err := Load(fs, path)
			require.NoError(t, err)
			require.Len(t, sc.Steps, 2)
			assert.Equal(t, "hv1", sc.Steps[0].Machine)
			assert.Equal(t, 2*time.Second, sc.Steps[0].Delay.Std())
			assert.Equal(t, 1500*time.Millisecond, sc.Steps[1].Delay.Std())
		})
	}
}

func TestLoadRejectsInvalidScenario(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte(`
steps:
  - machine: hv1
    command: tcpdump
    background: true
`), 0644))

	_, err := Load(fs, "/bad.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "step 1")

	_, err = Load(fs, "/missing.yaml")
	assert.True(t, apperr.HasType(err, apperr.FileError))
}

func TestValidateScenario(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
	}{
		{name: "no steps", sc: Scenario{}},
		{name: "no machine", sc: Scenario{Steps: []Step{{Job: models.Job{Command: "true"}}}}},
		{name: "bad log request", sc: Scenario{
			Steps:     []Step{{Machine: "hv1", Job: models.Job{Command: "true"}}},
			FetchLogs: []LogRequest{{Machine: "hv1", Name: "../etc/passwd"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.sc.Validate(), apperr.ErrValidation)
		})
	}
}

func TestRunExecutesStepsInOrderAndSavesLogs(t *testing.T) {
	dir := newFakeDirectory("hv1", "vm1")
	dir.targets["hv1"].logs["iperf"] = "Server listening on 5201\n"
	fs := afero.NewMemMapFs()

	report, err := dir.runner(WithLogDir(fs, "/out")).Run(context.Background(), loadTestScenario(t))
	require.NoError(t, err)

	want := []string{"hv1: iperf3 -s", "vm1: ping -c 1 172.32.4.10"}
	if diff := cmp.Diff(want, dir.executed); diff != "" {
		t.Errorf("executed commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "172.32.4.9", dir.network["vm1"].IPv4)

	require.Len(t, report.Steps, 2)
	assert.Equal(t, "ok from vm1", report.Steps[1].Output)

	require.Len(t, report.Logs, 1)
	assert.Equal(t, "/out/hv1-iperf.log", report.Logs[0].Path)
	data, err := afero.ReadFile(fs, "/out/hv1-iperf.log")
	require.NoError(t, err)
	assert.Equal(t, "Server listening on 5201\n", string(data))
}

func TestRunStopsOnUnexpectedExitCode(t *testing.T) {
	dir := newFakeDirectory("hv1", "vm1")
	dir.targets["vm1"].exitCode = 1

	report, err := dir.runner().Run(context.Background(), loadTestScenario(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exit code 0, got 1")
	assert.Len(t, report.Steps, 2)
	assert.Empty(t, report.Logs)
}

func TestRunFailsLoudlyOnUnknownMachine(t *testing.T) {
	dir := newFakeDirectory("hv1")

	_, err := dir.runner().Run(context.Background(), loadTestScenario(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, dir.executed)
}

func TestRunStopsOnExecError(t *testing.T) {
	dir := newFakeDirectory("hv1", "vm1")
	dir.targets["hv1"].execErr = apperr.ErrNotConnected

	report, err := dir.runner().Run(context.Background(), loadTestScenario(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotConnected))
	assert.Empty(t, report.Steps)
	assert.Equal(t, []string{"hv1: iperf3 -s"}, dir.executed)
}

func TestRunKeepsLogsInMemoryWithoutLogDir(t *testing.T) {
	dir := newFakeDirectory("hv1", "vm1")
	dir.targets["hv1"].logs["iperf"] = "done"

	report, err := dir.runner().Run(context.Background(), loadTestScenario(t))
	require.NoError(t, err)
	require.Len(t, report.Logs, 1)
	assert.Empty(t, report.Logs[0].Path)
	assert.Equal(t, "done", report.Logs[0].Content)
}
