package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"sshOrchestrator/internal/dataplane"
)

const healthCheckInterval = 5 * time.Second

func newDataplaneCmd(a *app) *cobra.Command {
	var (
		opts         dataplane.Options
		scenarioFile string
		keep         bool
		logsDir      string
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "dataplane --marker TEXT -- COMMAND [ARGS...]",
		Short: "Start the local dataplane and wait until it reports readiness",
		Long: `Start the dataplane process locally and block until a line of its output contains --marker.
With --scenario the scenario runs once the dataplane is ready and fails if the dataplane dies meanwhile.
Without it the dataplane is health-checked until interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Argv = args
			if !quiet {
				opts.Output = os.Stderr
			}

			proc, err := dataplane.Start(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer proc.Stop()

			if scenarioFile != "" {
				runErr := a.runScenario(cmd, scenarioFile, keep, logsDir)
				if !proc.Running() {
					return fmt.Errorf("dataplane exited during the scenario:\n%s", proc.Tail())
				}
				return runErr
			}

			ticker := time.NewTicker(healthCheckInterval)
			defer ticker.Stop()
			for {
				select {
				case <-cmd.Context().Done():
					log.Info("Stopping dataplane", "pid", proc.Pid())
					return nil
				case <-ticker.C:
					if !proc.Running() {
						return fmt.Errorf("dataplane is no longer running:\n%s", proc.Tail())
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&opts.Marker, "marker", "", "output line that marks the dataplane as ready")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", dataplane.DefaultTimeout, "how long to wait for the marker")
	cmd.Flags().StringVar(&scenarioFile, "scenario", "", "scenario file to run once the dataplane is ready")
	cmd.Flags().BoolVar(&keep, "keep", false, "skip teardown after the scenario")
	cmd.Flags().StringVar(&logsDir, "logs-dir", "", "save fetched scenario logs in this directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not copy dataplane output to stderr")
	_ = cmd.MarkFlagRequired("marker")
	return cmd
}
