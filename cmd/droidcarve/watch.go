package main

import (
	"context"
	"fmt"
	"time"

	"github.com/apk-analysis/droidcarve-go/internal/queue"
	"github.com/apk-analysis/droidcarve-go/internal/watcher"
	"github.com/apk-analysis/droidcarve-go/internal/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *options) *cobra.Command {
	var scanExisting bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Analyze every APK dropped into the inbox directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := bootstrap(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			a.serveMetrics(ctx)

			handler, cleanup, err := a.inboxHandler(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			wopts := watcher.DefaultOptions(a.cfg.Watcher.Pattern)
			wopts.ScanExisting = scanExisting
			if a.cfg.Watcher.DebounceMs > 0 {
				wopts.Debounce = time.Duration(a.cfg.Watcher.DebounceMs) * time.Millisecond
			}

			fw, err := watcher.NewFileWatcher(a.cfg.Watcher.InboxDir, wopts, handler, a.logger)
			if err != nil {
				return err
			}
			return fw.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&scanExisting, "scan-existing", false, "also process APKs already in the inbox")
	return cmd
}

// inboxHandler RabbitMQ 启用时投递到队列，否则交给本地 worker 池
func (a *app) inboxHandler(ctx context.Context) (watcher.FileHandler, func(), error) {
	if a.cfg.RabbitMQ.Enabled {
		mq, err := queue.NewRabbitMQ(ctx, &a.cfg.RabbitMQ, 1, a.logger)
		if err != nil {
			return nil, nil, err
		}
		producer := queue.NewProducer(mq, a.logger)

		handler := func(ctx context.Context, path string) error {
			task := worker.NewTask(path)
			return producer.PublishTask(ctx, &queue.TaskMessage{
				TaskID:  task.ID,
				APKName: task.APKName(),
				APKPath: task.APKPath,
			})
		}
		return handler, func() { mq.Close() }, nil
	}

	analyze := worker.NewSessionAnalyzer(a.cfg, a.reports, a.metrics, a.logger)
	pool := worker.NewPool(a.cfg.Worker.Concurrency, a.cfg.Worker.QueueSize, analyze, a.metrics, a.logger)
	pool.Start(ctx)

	handler := func(ctx context.Context, path string) error {
		task := worker.NewTask(path)
		if err := pool.Submit(task); err != nil {
			return fmt.Errorf("failed to submit %s: %w", task.APKName(), err)
		}
		a.logger.WithFields(logrus.Fields{
			"task_id": task.ID,
			"apk":     task.APKName(),
			"queued":  pool.QueueSize(),
		}).Info("APK queued for analysis")
		return nil
	}
	return handler, pool.Stop, nil
}
