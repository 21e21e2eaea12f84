package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newShellCmd(a *app) *cobra.Command {
	var termType string

	cmd := &cobra.Command{
		Use:   "shell MACHINE",
		Short: "Open an interactive shell on a machine through its proxy chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, m, err := a.connect(cmd, args[0])
			if err != nil {
				return err
			}
			defer dir.DisconnectAll()

			shell, err := m.Connection().NewShell()
			if err != nil {
				return err
			}
			return shell.Run(termType)
		},
	}

	cmd.Flags().StringVar(&termType, "term", envOr("TERM", "xterm-256color"), "terminal type requested for the remote pty")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
