package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"sshOrchestrator/internal/machine"
	"sshOrchestrator/internal/ui"
)

// selectMachines zwraca wskazane maszyny albo wszystkie w kolejności uruchamiania
func selectMachines(dir *machine.Directory, names []string) ([]*machine.RemoteMachine, error) {
	if len(names) == 0 {
		return dir.StartOrder(), nil
	}

	var selected []*machine.RemoteMachine
	for _, name := range names {
		m, err := dir.Lookup(name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, m)
	}
	return selected, nil
}

func newPidsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pids [MACHINE...]",
		Short: "List pids registered by background commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.directory()
			if err != nil {
				return err
			}
			defer dir.DisconnectAll()

			machines, err := selectMachines(dir, args)
			if err != nil {
				return err
			}

			var rows [][]string
			var errs []error
			for _, m := range machines {
				if err := m.Start(cmd.Context()); err != nil {
					errs = append(errs, err)
					rows = append(rows, []string{m.Name(), ui.ErrorStyle.Render("unreachable")})
					continue
				}
				pids, err := m.RunningProcesses(cmd.Context())
				if err != nil {
					errs = append(errs, err)
					continue
				}
				rows = append(rows, []string{m.Name(), strings.Join(pids, " ")})
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.CreateLipglossTable([]string{"Machine", "Pids"}, rows))
			return errors.Join(errs...)
		},
	}
}

func newTeardownCmd(a *app) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "teardown [MACHINE...]",
		Short: "Kill registered processes, remove containers on hypervisors and disconnect",
		Long: `Without arguments every machine is torn down, guests before their hypervisors.
With machine names only those machines are cleaned and a per-machine report is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.directory()
			if err != nil {
				return err
			}
			defer dir.DisconnectAll()

			if len(args) == 0 {
				if parallel > 0 {
					dir.SetTeardownParallelism(parallel)
				}
				if err := dir.StartAll(cmd.Context()); err != nil {
					log.Warn("Some machines are unreachable, tearing down the rest", "err", err)
				}
				if err := dir.StopAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessStyle.Render("teardown complete"))
				return nil
			}

			machines, err := selectMachines(dir, args)
			if err != nil {
				return err
			}

			var rows [][]string
			var errs []error
			for _, m := range machines {
				if err := m.Start(cmd.Context()); err != nil {
					errs = append(errs, err)
					continue
				}

				killed, gone, stopped, removed := "0", "0", "-", "-"
				report, err := m.TerminateProcesses(cmd.Context())
				if err != nil {
					errs = append(errs, err)
				} else {
					killed, gone = fmt.Sprint(len(report.Killed)), fmt.Sprint(len(report.Gone))
				}
				if m.IsRoot() {
					containers, err := m.TerminateContainers(cmd.Context())
					if err != nil {
						errs = append(errs, err)
					}
					if containers != nil {
						stopped, removed = fmt.Sprint(len(containers.Stopped)), fmt.Sprint(len(containers.Removed))
					}
				}
				rows = append(rows, []string{m.Name(), killed, gone, stopped, removed})
			}

			headers := []string{"Machine", "Killed", "Already gone", "Containers stopped", "Containers removed"}
			fmt.Fprintln(cmd.OutOrStdout(), ui.CreateLipglossTable(headers, rows))
			return errors.Join(errs...)
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "machines torn down at once within one level (default from config)")
	return cmd
}
