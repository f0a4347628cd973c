package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWorkerCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Runs a worker pool against the shared job queue without the HTTP API",
		Long: `worker claims crawl jobs from the configured queue and runs them. Pair it
with queue.backend=redis so jobs submitted through "serve --workers=0" are
picked up by separate worker processes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = appInstance.Config.Crawler.Concurrency
			}
			if workers <= 0 {
				workers = 1
			}
			appInstance.Logger.Info("worker process started", zap.Int("workers", workers))
			appInstance.Dispatcher(workers).Run(cmd.Context())
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "number of workers (default crawler.concurrency)")
	return cmd
}
