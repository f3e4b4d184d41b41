package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/index-composite/internal/config"
	"github.com/forest-guardian/index-composite/internal/display"
	"github.com/forest-guardian/index-composite/internal/export"
	"github.com/forest-guardian/index-composite/internal/expr"
	"github.com/forest-guardian/index-composite/internal/geometry"
	"github.com/forest-guardian/index-composite/internal/pipeline"
	"github.com/forest-guardian/index-composite/internal/sentinel"
	"github.com/forest-guardian/index-composite/internal/ui"
)

func newRunCmd() *cobra.Command {
	var (
		wait       bool
		previewDir string
	)

	cmd := &cobra.Command{
		Use:   "run <job.yaml>",
		Short: "Submit the composite exports for every region of a job file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jf, err := config.LoadJobFile(args[0])
			if err != nil {
				return err
			}
			dataset := jf.Dataset
			if dataset == "" {
				dataset = sentinel.Dataset
			}

			p, closePlatform, err := openPlatform(!quiet)
			if err != nil {
				return err
			}
			defer closePlatform()

			var jobs []export.Job
			for _, region := range jf.Regions {
				res, layers, err := runRegion(cmd, p, jf, region, dataset)
				if err != nil {
					return fmt.Errorf("region %s: %w", region.Name, err)
				}
				jobs = append(jobs, res.RasterJob)
				if res.VectorJob != nil {
					jobs = append(jobs, *res.VectorJob)
				}

				if previewDir != "" {
					local, ok := p.(*localPlatform)
					if !ok {
						ui.PrintWarning("previews need the local platform, skipping")
						continue
					}
					paths, err := layers.RenderPreviews(ctx, previewDir, local.evaluator)
					if err != nil {
						return err
					}
					slog.Info("previews written", "region", region.Name, "count", len(paths))
				}
			}

			if !wait {
				ui.PrintJobs(jobs)
				return nil
			}
			for i, job := range jobs {
				done, err := p.Wait(ctx, job.ID, 2*time.Second)
				if err != nil {
					return err
				}
				jobs[i] = done
			}
			ui.PrintJobs(jobs)
			for _, job := range jobs {
				if job.State == export.StateFailed {
					return fmt.Errorf("export %s failed", job.ID)
				}
			}
			ui.PrintSuccess("All exports completed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the exports to finish")
	cmd.Flags().StringVar(&previewDir, "preview", "", "write PNG previews of the map layers to this directory")
	return cmd
}

func runRegion(cmd *cobra.Command, p platform, jf *config.JobFile, region config.Region, dataset string) (pipeline.Result, *display.Recorder, error) {
	roi, err := geometry.LoadROI(jf.ROIPath(region))
	if err != nil {
		return pipeline.Result{}, nil, err
	}
	start, end, err := region.Dates()
	if err != nil {
		return pipeline.Result{}, nil, err
	}
	buffer, err := region.Buffer()
	if err != nil {
		return pipeline.Result{}, nil, err
	}

	ui.PrintInfo(fmt.Sprintf("Region %s: %s to %s, buffer %s", region.Name, region.Start, region.End, buffer))
	layers := display.NewRecorder()
	collection := expr.NewCollection(dataset).FilterDate(start, end)
	res, err := pipeline.New(p, layers).ProduceCombinedIndexRaster(cmd.Context(), region.Name, collection, roi, buffer)
	if err != nil {
		return pipeline.Result{}, nil, err
	}
	return res, layers, nil
}
