package main

import (
	"context"

	"github.com/apk-analysis/droidcarve-go/internal/queue"
	"github.com/apk-analysis/droidcarve-go/internal/worker"
	"github.com/spf13/cobra"
)

func newWorkerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued APK tasks from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := bootstrap(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			a.serveMetrics(ctx)

			concurrency := a.cfg.Worker.Concurrency
			mq, err := queue.NewRabbitMQ(ctx, &a.cfg.RabbitMQ, concurrency, a.logger)
			if err != nil {
				return err
			}
			defer mq.Close()

			analyze := worker.NewSessionAnalyzer(a.cfg, a.reports, a.metrics, a.logger)
			handler := func(ctx context.Context, msg *queue.TaskMessage) error {
				return analyze(ctx, &worker.Task{ID: msg.TaskID, APKPath: msg.APKPath})
			}

			return queue.NewConsumer(mq, handler, concurrency, a.logger).Run(ctx)
		},
	}
}
