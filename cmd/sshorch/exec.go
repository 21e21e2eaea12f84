package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"sshOrchestrator/internal/models"
	"sshOrchestrator/internal/utils"
)

func newExecCmd(a *app) *cobra.Command {
	var job models.Job

	cmd := &cobra.Command{
		Use:   "exec MACHINE -- COMMAND [ARGS...]",
		Short: "Run a command on a machine",
		Long: `Run a command on a machine, connecting through its proxy chain.
With --background the command is detached with nohup, its output goes to <log-dir>/<log>.log
and its pid is appended to the machine's pid registry.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job.Command = args[1]
			job.Parameters = strings.Join(args[2:], " ")
			if err := job.Validate(); err != nil {
				return err
			}

			dir, m, err := a.connect(cmd, args[0])
			if err != nil {
				return err
			}
			defer dir.DisconnectAll()

			result, err := m.Exec(cmd.Context(), job)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), result.Output)
			if result.Background && !strings.HasSuffix(result.Output, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if result.ExitCode != 0 {
				return &exitCodeError{code: result.ExitCode}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&job.Sudo, "sudo", false, "prefix the command with the configured sudo")
	cmd.Flags().BoolVar(&job.Background, "background", false, "detach the command and register its pid")
	cmd.Flags().StringVar(&job.LogName, "log", "", "output log name for background commands")
	cmd.Flags().DurationVar((*time.Duration)(&job.Delay), "delay", 0, "wait before sending the command")
	return cmd
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload MACHINE LOCAL_PATH [REMOTE_PATH]",
		Short: "Copy a local file to a machine, keeping its permissions",
		Long:  `Copy a local file to a machine. A remote path ending with "/" is treated as a directory; without a remote path the file lands in the login directory.`,
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := ""
			if len(args) == 3 {
				remote = args[2]
			}

			dir, m, err := a.connect(cmd, args[0])
			if err != nil {
				return err
			}
			defer dir.DisconnectAll()

			if err := m.Upload(cmd.Context(), args[1], remote); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s:%s\n", args[1], m.Name(), utils.ResolveUploadTarget(args[1], remote))
			return nil
		},
	}
}

func newFetchLogCmd(a *app) *cobra.Command {
	var saveDir string

	cmd := &cobra.Command{
		Use:   "fetch-log MACHINE NAME",
		Short: "Print or save the output log of a background command",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, m, err := a.connect(cmd, args[0])
			if err != nil {
				return err
			}
			defer dir.DisconnectAll()

			content, err := m.FetchLog(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			if saveDir == "" {
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			}

			if err := a.fs.MkdirAll(saveDir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %v", saveDir, err)
			}
			target := utils.LocalLogPath(saveDir, m.Name(), args[1])
			if err := afero.WriteFile(a.fs, target, []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %v", target, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&saveDir, "output-dir", "o", "", "save the log as <dir>/<machine>-<name>.log instead of printing it")
	return cmd
}
