package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sshOrchestrator/internal/ssh"
	"sshOrchestrator/internal/ui"
)

func newStatusCmd(a *app) *cobra.Command {
	var connect bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configured machines, their proxy chain and registered processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.directory()
			if err != nil {
				return err
			}
			defer dir.DisconnectAll()

			manager, err := a.loadConfig()
			if err != nil {
				return err
			}
			timeout := manager.Config().ConnectTimeout

			if connect {
				// Błędy poszczególnych maszyn trafiają do tabeli
				_ = dir.StartAll(cmd.Context())
			}

			headers := []string{"Machine", "Role", "Address", "Via", "State", "Processes", "Host key"}
			var rows [][]string
			for _, m := range dir.StartOrder() {
				via := "-"
				if p := m.Parent(); p != nil {
					via = p.Name()
				}

				processes := "-"
				if m.Connection().IsConnected() {
					if pids, err := m.RunningProcesses(cmd.Context()); err == nil {
						processes = strconv.Itoa(len(pids))
					}
				}

				// Odcisk klucza da się pobrać bezpośrednio tylko z maszyn bez proxy
				fingerprint := "-"
				if connect && m.IsRoot() {
					if fp, err := ssh.Fingerprint(m.Connection().Address(), timeout); err == nil {
						fingerprint = fp
					}
				}

				rows = append(rows, []string{
					m.Name(),
					string(m.Role()),
					m.Connection().Address(),
					via,
					m.Connection().State().String(),
					processes,
					fingerprint,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.TitleStyle.Render(manager.GetConfigPath()))
			fmt.Fprintln(cmd.OutOrStdout(), ui.CreateLipglossTable(headers, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&connect, "connect", false, "connect to every machine and read its pid registry")
	return cmd
}
