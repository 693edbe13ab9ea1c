package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileHandler 新 APK 到达时的回调
type FileHandler func(ctx context.Context, filePath string) error

// Options 监控参数
type Options struct {
	Pattern       string        // 文件匹配模式，如 "*.apk"
	Debounce      time.Duration // 同一文件的事件合并时间
	SettleDelay   time.Duration // 判断写入完成的间隔
	ScanExisting  bool          // 启动时处理已有文件
	MaxReadyTries int
}

// DefaultOptions 默认监控参数
func DefaultOptions(pattern string) Options {
	if pattern == "" {
		pattern = "*.apk"
	}
	return Options{
		Pattern:       pattern,
		Debounce:      2 * time.Second,
		SettleDelay:   500 * time.Millisecond,
		MaxReadyTries: 10,
	}
}

// FileWatcher 收件目录监控器
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	watchDir string
	opts     Options
	handler  FileHandler
	logger   *logrus.Logger

	mu         sync.Mutex
	timers     map[string]*time.Timer
	processing map[string]bool
	wg         sync.WaitGroup
}

// NewFileWatcher 创建监控器，目录不存在时自动创建
func NewFileWatcher(watchDir string, opts Options, handler FileHandler, logger *logrus.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := os.MkdirAll(watchDir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}
	if err := watcher.Add(watchDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add watch directory: %w", err)
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("invalid watch pattern %q: %w", opts.Pattern, err)
	}

	logger.WithFields(logrus.Fields{
		"watch_dir": watchDir,
		"pattern":   opts.Pattern,
	}).Info("File watcher created")

	return &FileWatcher{
		watcher:    watcher,
		watchDir:   watchDir,
		opts:       opts,
		handler:    handler,
		logger:     logger,
		timers:     make(map[string]*time.Timer),
		processing: make(map[string]bool),
	}, nil
}

// Run 阻塞运行直到 ctx 结束，返回前等待正在处理的文件
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.watcher.Close()

	if fw.opts.ScanExisting {
		if err := fw.scanExisting(ctx); err != nil {
			fw.logger.WithError(err).Warn("Failed to scan existing files")
		}
	}

	fw.logger.Info("File watcher started")
	defer fw.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			fw.stopTimers()
			fw.logger.Info("File watcher stopped")
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !fw.Match(filepath.Base(event.Name)) {
				continue
			}

			fw.logger.WithFields(logrus.Fields{
				"event": event.Op.String(),
				"file":  filepath.Base(event.Name),
			}).Debug("File event detected")
			fw.schedule(ctx, event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			fw.logger.WithError(err).Error("Watcher error")
		}
	}
}

// schedule 防抖：同一文件在 Debounce 内多次触发只处理一次
func (fw *FileWatcher) schedule(ctx context.Context, path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if old, exists := fw.timers[path]; exists && old.Stop() {
		fw.wg.Done()
	}

	var timer *time.Timer
	fw.wg.Add(1)
	timer = time.AfterFunc(fw.opts.Debounce, func() {
		defer fw.wg.Done()
		fw.mu.Lock()
		if fw.timers[path] == timer {
			delete(fw.timers, path)
		}
		fw.mu.Unlock()
		fw.handleFile(ctx, path)
	})
	fw.timers[path] = timer
}

// stopTimers 取消尚未触发的处理
func (fw *FileWatcher) stopTimers() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for path, timer := range fw.timers {
		if timer.Stop() {
			fw.wg.Done()
		}
		delete(fw.timers, path)
	}
}

// scanExisting 处理启动前已存在的文件
func (fw *FileWatcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(fw.watchDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !fw.Match(entry.Name()) {
			continue
		}
		fw.logger.WithField("file", entry.Name()).Info("Found existing file")
		fw.schedule(ctx, filepath.Join(fw.watchDir, entry.Name()))
	}
	return nil
}

// handleFile 处理单个文件
func (fw *FileWatcher) handleFile(ctx context.Context, path string) {
	fw.mu.Lock()
	if fw.processing[path] {
		fw.mu.Unlock()
		fw.logger.WithField("file", path).Debug("File is already being processed")
		return
	}
	fw.processing[path] = true
	fw.mu.Unlock()

	defer func() {
		fw.mu.Lock()
		delete(fw.processing, path)
		fw.mu.Unlock()
	}()

	if err := fw.waitForFileReady(ctx, path); err != nil {
		fw.logger.WithError(err).WithField("file", path).Error("File not ready")
		return
	}

	fw.logger.WithField("file", path).Info("Processing file")
	if err := fw.handler(ctx, path); err != nil {
		fw.logger.WithError(err).WithField("file", path).Error("Failed to process file")
		return
	}
	fw.logger.WithField("file", path).Info("File processed successfully")
}

// waitForFileReady 文件大小稳定且非空即认为写入完成
func (fw *FileWatcher) waitForFileReady(ctx context.Context, path string) error {
	var lastSize int64 = -1
	for i := 0; i < fw.opts.MaxReadyTries; i++ {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file does not exist")
			}
			return err
		}
		if info.Size() > 0 && info.Size() == lastSize {
			return nil
		}
		lastSize = info.Size()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(fw.opts.SettleDelay):
		}
	}
	return fmt.Errorf("file not ready after %d attempts", fw.opts.MaxReadyTries)
}

// Match 文件名是否匹配模式（扩展名不区分大小写）
func (fw *FileWatcher) Match(fileName string) bool {
	if strings.HasPrefix(fw.opts.Pattern, "*.") && !strings.ContainsAny(fw.opts.Pattern[2:], "*?[") {
		return strings.HasSuffix(strings.ToLower(fileName), strings.ToLower(fw.opts.Pattern[1:]))
	}
	ok, _ := filepath.Match(fw.opts.Pattern, fileName)
	return ok
}

// WatchDir 监控目录
func (fw *FileWatcher) WatchDir() string {
	return fw.watchDir
}
