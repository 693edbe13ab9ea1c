package worker

import (
	"context"
	"fmt"

	"github.com/apk-analysis/droidcarve-go/internal/config"
	"github.com/apk-analysis/droidcarve-go/internal/metrics"
	"github.com/apk-analysis/droidcarve-go/internal/repository"
	"github.com/apk-analysis/droidcarve-go/internal/session"
	"github.com/sirupsen/logrus"
)

// NewSessionAnalyzer 每个任务一个独立 Session，总是从干净的缓存开始。
// reports 为 nil 时不持久化报告。
func NewSessionAnalyzer(cfg *config.Config, reports repository.ReportRepository, m *metrics.Metrics, logger *logrus.Logger) AnalyzeFunc {
	return func(ctx context.Context, task *Task) error {
		opts := []session.Option{
			session.WithTaskID(task.ID),
			session.WithMetrics(m),
		}
		if reports != nil {
			opts = append(opts, session.WithReports(reports))
		}

		s, err := session.New(cfg, task.APKPath, logger, opts...)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if err := s.Prepare(true); err != nil {
			return fmt.Errorf("failed to prepare cache: %w", err)
		}
		if err := s.Analyze(ctx); err != nil {
			return err
		}

		stats, err := s.Statistics()
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"task_id": task.ID,
			"apk":     task.APKName(),
			"classes": stats.ClassCount,
		}).Info("APK analyzed")
		return nil
	}
}
