package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yirzhou/radioedit"
)

var (
	processThreshold float64
	processTarget    float64
	processIntro     string
	processOutro     string
	processPoll      time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process [file...]",
	Short: "Master files from the inputs directory and exit",
	Long: `Submit one job per file and wait until every job finishes.

Without arguments every audio file in the inputs directory is processed.
Ctrl-C cancels the remaining jobs.

Example:
  radioedit process
  radioedit process show-0412.wav --target-lufs -14 --intro station_id.wav`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	defaults := radioedit.DefaultParams()
	processCmd.Flags().Float64Var(&processThreshold, "silence-threshold", defaults.SilenceThresholdDBFS, "Silence threshold in dBFS")
	processCmd.Flags().Float64Var(&processTarget, "target-lufs", defaults.TargetLUFS, "Integrated loudness target in LUFS")
	processCmd.Flags().StringVar(&processIntro, "intro", defaults.Jingles.Intro, "Intro jingle file name or RANDOM")
	processCmd.Flags().StringVar(&processOutro, "outro", defaults.Jingles.Outro, "Outro jingle file name or RANDOM")
	processCmd.Flags().DurationVar(&processPoll, "poll", 250*time.Millisecond, "Status poll interval")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := appCfg
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.service.Close(); err != nil {
			logger.Warn("closing job service", zap.Error(err))
		}
	}()
	c.service.Start(context.WithoutCancel(ctx))

	files := args
	if len(files) == 0 {
		files, err = c.inbox.List()
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no audio files in %s\n", c.inbox.Dir())
		return nil
	}

	params := radioedit.Params{
		SilenceThresholdDBFS: processThreshold,
		TargetLUFS:           processTarget,
		Jingles:              radioedit.NamedJingles(processIntro, processOutro),
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		id, err := c.service.Submit(f, params)
		if err != nil {
			return fmt.Errorf("submit %s: %w", f, err)
		}
		ids = append(ids, id)
	}

	jobs, err := waitForJobs(ctx, c.service, ids, processPoll)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATUS\tRESULT")
	failed := 0
	for _, j := range jobs {
		result := j.OutputFilename
		if j.Status == radioedit.StatusError {
			result = j.ErrorMessage
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", j.Filename, j.Status, result)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
	}
	return nil
}

// waitForJobs polls until every job is terminal. When ctx ends first the
// remaining jobs are canceled and then awaited.
func waitForJobs(ctx context.Context, svc *radioedit.Service, ids []string, every time.Duration) ([]radioedit.Job, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	canceled := false
	for {
		jobs := make([]radioedit.Job, 0, len(ids))
		finished := true
		for _, id := range ids {
			j, err := svc.Job(id)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, j)
			if !j.Status.Terminal() {
				finished = false
			}
		}
		if finished {
			return jobs, nil
		}

		select {
		case <-ctx.Done():
			if !canceled {
				canceled = true
				logger.Info("interrupted, canceling remaining jobs")
				for _, id := range ids {
					_, _ = svc.Cancel(id)
				}
			}
			<-ticker.C
		case <-ticker.C:
		}
	}
}
