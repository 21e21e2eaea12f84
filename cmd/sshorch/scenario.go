package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"sshOrchestrator/internal/scenario"
	"sshOrchestrator/internal/ui"
)

func newScenarioCmd(a *app) *cobra.Command {
	var (
		keep    bool
		logsDir string
	)

	cmd := &cobra.Command{
		Use:   "scenario FILE",
		Short: "Run the steps of a scenario file and tear the machines down afterwards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScenario(cmd, args[0], keep, logsDir)
		},
	}

	cmd.Flags().BoolVar(&keep, "keep", false, "skip teardown after the run")
	cmd.Flags().StringVar(&logsDir, "logs-dir", "", "save fetched logs in this directory")
	return cmd
}

// runScenario uruchamia maszyny, wykonuje scenariusz i o ile nie podano keep, sprząta po nim
func (a *app) runScenario(cmd *cobra.Command, path string, keep bool, logsDir string) error {
	sc, err := scenario.Load(a.fs, path)
	if err != nil {
		return err
	}

	dir, err := a.directory()
	if err != nil {
		return err
	}

	var errs []error
	if err := dir.StartAll(cmd.Context()); err != nil {
		errs = append(errs, err)
	} else {
		var opts []scenario.Option
		if logsDir != "" {
			opts = append(opts, scenario.WithLogDir(a.fs, logsDir))
		}
		report, err := scenario.NewRunner(dir, opts...).Run(cmd.Context(), sc)
		if report != nil {
			printScenarioReport(cmd, sc, report)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if keep {
		log.Info("Leaving processes and containers running")
		dir.DisconnectAll()
	} else if err := dir.StopAll(cmd.Context()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func printScenarioReport(cmd *cobra.Command, sc *scenario.Scenario, report *scenario.Report) {
	out := cmd.OutOrStdout()
	if sc.Name != "" {
		fmt.Fprintln(out, ui.TitleStyle.Render(sc.Name))
	}

	var rows [][]string
	for i, step := range report.Steps {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			step.Machine,
			step.Command,
			strconv.Itoa(step.ExitCode),
			strings.TrimSpace(step.Output),
		})
	}
	fmt.Fprintln(out, ui.CreateLipglossTable([]string{"#", "Machine", "Command", "Exit", "Output"}, rows))

	for _, l := range report.Logs {
		if l.Path != "" {
			fmt.Fprintf(out, "%s %s/%s -> %s\n", ui.DescriptionStyle.Render("log"), l.Machine, l.Name, l.Path)
			continue
		}
		fmt.Fprintln(out, ui.DescriptionStyle.Render(fmt.Sprintf("--- %s/%s ---", l.Machine, l.Name)))
		fmt.Fprint(out, l.Content)
	}
}
