package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/index-composite/internal/engine"
	"github.com/forest-guardian/index-composite/internal/export"
	"github.com/forest-guardian/index-composite/internal/remote"
	"github.com/forest-guardian/index-composite/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show export jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if remoteAddr != "" {
				if len(args) == 0 {
					return fmt.Errorf("listing jobs needs the local job database, pass a job id")
				}
				client, err := remote.NewClient(remoteAddr)
				if err != nil {
					return err
				}
				defer client.Close()
				job, err := client.Status(ctx, args[0])
				if err != nil {
					return err
				}
				ui.PrintJobs([]export.Job{job})
				return nil
			}

			store, err := export.NewStore(cfg.Engine.JobDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				jobs, err := store.List(ctx, export.State(state))
				if err != nil {
					return err
				}
				ui.PrintJobs(jobs)
				return nil
			}

			job, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			ui.PrintJobs([]export.Job{job})
			if job.Kind == export.KindImage && job.State == export.StateCompleted {
				stats, err := engine.ReadStats(engine.StatsPath(job.Destination))
				if err != nil {
					ui.PrintWarning(fmt.Sprintf("no band statistics: %v", err))
					return nil
				}
				fmt.Println()
				return ui.WriteStats(os.Stdout, stats)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "only list jobs in this state (READY, RUNNING, COMPLETED, FAILED)")
	return cmd
}
