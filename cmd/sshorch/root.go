package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"sshOrchestrator/internal/config"
	"sshOrchestrator/internal/crypto"
	"sshOrchestrator/internal/logging"
	"sshOrchestrator/internal/machine"
)

// app przechowuje stan wspólny dla wszystkich poleceń
type app struct {
	fs         afero.Fs
	lookuper   envconfig.Lookuper
	out        io.Writer
	configPath string
	logLevel   string
	env        *config.Env
	manager    *config.Manager
}

func newApp() *app {
	return &app{
		fs:       afero.NewOsFs(),
		lookuper: envconfig.OsLookuper(),
		out:      os.Stdout,
	}
}

// exitCodeError przenosi kod wyjścia zdalnego polecenia do procesu
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("remote command exited with code %d", e.code)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "sshorch",
		Short:         "Orchestrate test machines over SSH",
		Long:          `sshorch connects to hypervisors and the VMs behind them, runs commands, tracks background processes and tears everything down after a test run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "machines file (default $SSHORCH_CONFIG or ~/.config/sshorch/machines.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newUpCmd(a),
		newStatusCmd(a),
		newExecCmd(a),
		newUploadCmd(a),
		newFetchLogCmd(a),
		newPidsCmd(a),
		newTeardownCmd(a),
		newScenarioCmd(a),
		newShellCmd(a),
		newEncryptCmd(a),
		newDataplaneCmd(a),
	)
	return root
}

// init wczytuje środowisko i konfiguruje logowanie; plik maszyn jest czytany dopiero przez polecenia
func (a *app) init(cmd *cobra.Command) error {
	env, err := config.LoadEnv(cmd.Context(), a.lookuper)
	if err != nil {
		return err
	}
	a.env = env

	level := env.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if err := logging.Configure(level, cmd.ErrOrStderr()); err != nil {
		return err
	}

	if a.configPath == "" {
		a.configPath = env.ConfigPath
	}
	return nil
}

func (a *app) cipher() *crypto.Cipher {
	if a.env == nil || a.env.Secret == "" {
		return nil
	}
	return crypto.NewCipher(a.env.Secret)
}

// loadConfig wczytuje plik maszyn razem z nadpisaniami ze środowiska
func (a *app) loadConfig() (*config.Manager, error) {
	if a.manager != nil {
		return a.manager, nil
	}

	manager := config.NewManager(a.fs, a.configPath)
	if err := manager.LoadWithEnv(a.env); err != nil {
		return nil, err
	}
	a.manager = manager
	return manager, nil
}

// directory buduje katalog maszyn z konfiguracji
func (a *app) directory() (*machine.Directory, error) {
	manager, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	cfg := manager.Config()
	return machine.Build(cfg, machine.OptionsFromConfig(cfg, a.cipher()))
}

// connect buduje katalog i uruchamia wskazaną maszynę (razem z jej przodkami)
func (a *app) connect(cmd *cobra.Command, name string) (*machine.Directory, *machine.RemoteMachine, error) {
	dir, err := a.directory()
	if err != nil {
		return nil, nil, err
	}

	m, err := dir.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Start(cmd.Context()); err != nil {
		dir.DisconnectAll()
		return nil, nil, err
	}
	return dir, m, nil
}
