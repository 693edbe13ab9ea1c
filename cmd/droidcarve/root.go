package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/apk-analysis/droidcarve-go/internal/config"
	"github.com/apk-analysis/droidcarve-go/internal/metrics"
	"github.com/apk-analysis/droidcarve-go/internal/repository"
	"github.com/apk-analysis/droidcarve-go/internal/session"
	"github.com/apk-analysis/droidcarve-go/internal/shell"
	"github.com/apk-analysis/droidcarve-go/internal/unpacker"
	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const defaultConfigPath = "./configs/config.yaml"

const cacheQuestion = "A cached version of the application has been found, start from a fresh cache?"

// options 全局命令行参数
type options struct {
	configPath string
	apkPath    string
	fresh      bool
	reuse      bool
}

// app 各子命令共享的运行环境
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	db      *gorm.DB
	reports repository.ReportRepository
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "droidcarve",
		Short:         "Static reconnaissance of Android APK files",
		Version:       fmt.Sprintf("%s (build %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default "+defaultConfigPath+" when present)")
	flags.StringVarP(&opts.apkPath, "apk", "a", "", "APK file to analyze")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "discard an existing cache without asking")
	cmd.Flags().BoolVar(&opts.reuse, "reuse", false, "reuse an existing cache without asking")
	cmd.MarkFlagsMutuallyExclusive("fresh", "reuse")

	cmd.AddCommand(newServeCmd(opts), newWatchCmd(opts), newWorkerCmd(opts))
	return cmd
}

// bootstrap 加载配置并创建 logger；withDB 时连接数据库
func bootstrap(ctx context.Context, opts *options, withDB bool) (*app, error) {
	path := opts.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: config.InitLogger(&cfg.Log, nil),
	}
	if path != "" {
		a.logger.WithField("config", path).Debug("Config loaded")
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(a.logger, cfg.Metrics.Namespace)
	}

	if withDB && cfg.Analysis.SaveReports {
		db, err := repository.InitDB(ctx, &cfg.Database, a.logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.reports = repository.NewReportRepository(db)
	}

	return a, nil
}

// close 释放数据库连接
func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// newSession 校验 APK 并创建会话
func (a *app) newSession(apkPath string) (*session.Session, error) {
	if apkPath == "" {
		return nil, errors.New("no APK given, use --apk")
	}
	if err := unpacker.ValidateAPK(apkPath); err != nil {
		return nil, err
	}

	opts := []session.Option{session.WithMetrics(a.metrics)}
	if a.reports != nil {
		opts = append(opts, session.WithReports(a.reports))
	}
	return session.New(a.cfg, apkPath, a.logger, opts...)
}

// serveMetrics 批处理模式下单独暴露 Prometheus 指标
func (a *app) serveMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics/prometheus", a.metrics.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: r,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("Metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	a.logger.WithField("addr", server.Addr).Info("Metrics endpoint started")
}

// signalContext SIGINT / SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runShell(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, opts, true)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.newSession(opts.apkPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())
	printBanner(out, s)

	if err := s.CheckTools(); err != nil {
		color.New(color.FgYellow).Fprintf(out, "Warning: %v\n", err)
	}

	if err := restoreCache(s, in, out, opts, a.logger); err != nil {
		return err
	}

	return shell.New(s, in, out, a.logger).Run(ctx)
}

// restoreCache 处理已有缓存：fresh 清空，reuse 直接 rescan
func restoreCache(s *session.Session, in io.Reader, out io.Writer, opts *options, logger *logrus.Logger) error {
	if !s.HasCache() {
		return s.Prepare(false)
	}

	fresh := opts.fresh
	if !opts.fresh && !opts.reuse {
		answer, err := shell.AskQuestion(in, out, cacheQuestion, []string{"Yes", "No"})
		if err != nil {
			return err
		}
		fresh = answer == "Yes"
	}

	if fresh {
		return s.Prepare(true)
	}

	if err := s.Rescan(); err != nil {
		logger.WithError(err).Warn("Failed to rescan cached analysis")
		fmt.Fprintln(out, "Cached analysis could not be loaded, run 'analyze' to start over.")
		return nil
	}
	stats, err := s.Statistics()
	if err == nil {
		fmt.Fprintf(out, "Loaded cached analysis: %d classes\n", stats.ClassCount)
	}
	return nil
}

func printBanner(out io.Writer, s *session.Session) {
	head := color.New(color.FgCyan, color.Bold)
	head.Fprintf(out, "DroidCarve %s\n", Version)
	fmt.Fprintf(out, "APK   : %s\n", s.APKPath())
	fmt.Fprintf(out, "Cache : %s\n", s.Layout().Root)
	fmt.Fprintln(out, "Type 'help' for a list of commands.")
}
