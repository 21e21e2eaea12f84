package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/moby/term"
	"github.com/spf13/cobra"

	"sshOrchestrator/internal/ui"
)

func newUpCmd(a *app) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Connect to every machine, parents before children",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, isTTY := term.GetFdInfo(os.Stdout)
			interactive := isTTY && !plain && a.out == os.Stdout

			// Widok postępu zastępuje logi, które rozbijałyby ekran
			if interactive {
				log.SetOutput(io.Discard)
			}

			dir, err := a.directory()
			if err != nil {
				return err
			}
			defer dir.DisconnectAll()

			if interactive {
				err = ui.RunStartup(cmd.Context(), dir, os.Stdout)
			} else {
				err = dir.StartAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessStyle.Render(fmt.Sprintf("%d machine(s) reachable", len(dir.All()))))
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print logs instead of the progress view")
	return cmd
}
