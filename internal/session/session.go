package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/apk-analysis/droidcarve-go/internal/artifact"
	"github.com/apk-analysis/droidcarve-go/internal/cache"
	"github.com/apk-analysis/droidcarve-go/internal/cert"
	"github.com/apk-analysis/droidcarve-go/internal/config"
	"github.com/apk-analysis/droidcarve-go/internal/disasm"
	"github.com/apk-analysis/droidcarve-go/internal/filter"
	"github.com/apk-analysis/droidcarve-go/internal/manifest"
	"github.com/apk-analysis/droidcarve-go/internal/metrics"
	"github.com/apk-analysis/droidcarve-go/internal/packer"
	"github.com/apk-analysis/droidcarve-go/internal/repository"
	"github.com/apk-analysis/droidcarve-go/internal/smali"
	"github.com/apk-analysis/droidcarve-go/internal/unpacker"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotAnalyzed 尚未执行 analyze / rescan
	ErrNotAnalyzed = errors.New("analysis not performed")
	// ErrManifestNotFound 解压目录中没有 AndroidManifest.xml
	ErrManifestNotFound = errors.New("AndroidManifest.xml not found")
)

// Session 单个 APK 的分析状态。非并发安全，调用方负责串行化。
type Session struct {
	apkPath string
	taskID  string
	layout  *cache.Layout
	logger  *logrus.Logger

	// 协作组件
	scanner  *smali.Scanner
	locator  *artifact.Locator
	decoder  *manifest.Decoder
	unpacker *unpacker.Unpacker
	disasm   *disasm.Baksmali
	certs    *cert.Inspector
	packers  *packer.Detector
	metrics  *metrics.Metrics
	reports  repository.ReportRepository

	// 分析结果，rescan 时整体替换
	exclusions *filter.ExclusionFilter
	classes    *smali.ClassIndex
	artifacts  *artifact.Artifacts
	manifest   *manifest.Model
	duration   time.Duration
}

// Option 可选依赖
type Option func(*Session)

// WithMetrics 记录 Prometheus 指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithReports 分析完成后写入报告
func WithReports(repo repository.ReportRepository) Option {
	return func(s *Session) { s.reports = repo }
}

// WithTaskID 批处理任务 ID
func WithTaskID(id string) Option {
	return func(s *Session) { s.taskID = id }
}

// New 计算 APK 缓存目录并组装各组件，不触碰文件系统中的缓存
func New(cfg *config.Config, apkPath string, logger *logrus.Logger, opts ...Option) (*Session, error) {
	layout, err := cache.Resolve(cfg.Cache.WorkDir, apkPath)
	if err != nil {
		return nil, err
	}

	s := &Session{
		apkPath:    apkPath,
		layout:     layout,
		logger:     logger,
		scanner:    smali.NewScanner(logger),
		locator:    artifact.NewLocator(cfg.Analysis.SignatureSuffixes, logger),
		decoder:    manifest.NewDecoder(logger),
		unpacker:   unpacker.NewUnpacker(logger),
		disasm:     disasm.NewBaksmali(cfg.Tools.JavaPath, cfg.Tools.BaksmaliPath, seconds(cfg.Tools.DisasmTimeout), logger),
		certs:      cert.NewInspector(cfg.Tools.KeytoolPath, seconds(cfg.Tools.KeytoolTimeout), logger),
		packers:    packer.NewDetector(logger),
		exclusions: filter.NewExclusionFilter(logger),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Analysis.DefaultExclusions {
		s.exclusions.AddDefaults()
	}

	logger.WithFields(logrus.Fields{
		"apk":  apkPath,
		"sha1": layout.Hash,
		"root": layout.Root,
	}).Info("Session created")

	return s, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// APKPath 被分析的 APK
func (s *Session) APKPath() string {
	return s.apkPath
}

// Layout 缓存目录
func (s *Session) Layout() *cache.Layout {
	return s.layout
}

// HasCache 是否存在之前的缓存
func (s *Session) HasCache() bool {
	return s.layout.Exists()
}

// Prepare 创建缓存目录，fresh 时清空旧缓存
func (s *Session) Prepare(fresh bool) error {
	if fresh {
		s.logger.WithField("root", s.layout.Root).Info("Starting from a fresh cache")
	}
	return s.layout.Prepare(fresh)
}

// CheckTools 检查反汇编工具
func (s *Session) CheckTools() error {
	return s.disasm.Available()
}

// Analyze 解压、反汇编，然后重建全部索引
func (s *Session) Analyze(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordAnalysis(err)
	}()

	if err := s.disasm.Available(); err != nil {
		return err
	}
	if err := s.layout.Prepare(false); err != nil {
		return err
	}

	stageStart := time.Now()
	if _, err := s.unpacker.Unpack(ctx, unpacker.UnpackRequest{
		APKPath:   s.apkPath,
		OutputDir: s.layout.UnzippedPath,
	}); err != nil {
		return fmt.Errorf("unzip failed: %w", err)
	}
	s.metrics.ObserveStage(metrics.StageUnpack, time.Since(stageStart))

	stageStart = time.Now()
	if err := s.disasm.Disassemble(ctx, s.apkPath, s.layout.CachePath); err != nil {
		return fmt.Errorf("disassembly failed: %w", err)
	}
	s.metrics.ObserveStage(metrics.StageDisasm, time.Since(stageStart))

	if err := s.Rescan(); err != nil {
		return err
	}
	s.duration = time.Since(start)

	s.saveReport(ctx)
	return nil
}

// Rescan 不重新解压，直接重建类索引、文件分类和 manifest。
// 任一根目录不可读时返回错误，原有结果保持不变。
func (s *Session) Rescan() error {
	start := time.Now()
	classes, err := s.scanner.Scan(s.layout.CachePath)
	s.metrics.RecordScan(metrics.ScanClasses, time.Since(start), err)
	if err != nil {
		return err
	}

	start = time.Now()
	artifacts, err := s.locator.Scan(s.layout.UnzippedPath)
	s.metrics.RecordScan(metrics.ScanArtifacts, time.Since(start), err)
	if err != nil {
		return err
	}

	model := s.loadManifest(artifacts)

	s.classes = classes
	s.artifacts = artifacts
	s.manifest = model

	permissions := 0
	if model != nil {
		permissions = model.PermissionCount()
	}
	s.metrics.SetIndexSizes(classes.Len(), permissions)

	s.logger.WithFields(logrus.Fields{
		"classes":        classes.Len(),
		"signatures":     len(artifacts.SignatureFiles()),
		"manifest_found": model != nil,
		"permissions":    permissions,
	}).Info("Analysis indexes rebuilt")

	return nil
}

// loadManifest 解码 manifest；找不到或解码失败返回 nil
func (s *Session) loadManifest(artifacts *artifact.Artifacts) *manifest.Model {
	path, ok := artifacts.ManifestPath()
	if !ok {
		s.logger.Warn("No AndroidManifest.xml in extracted archive")
		return nil
	}

	start := time.Now()
	text, err := s.decoder.Decode(s.apkPath, path)
	s.metrics.RecordScan(metrics.ScanManifest, time.Since(start), err)
	if err != nil {
		s.logger.WithError(err).WithField("manifest", path).Warn("Failed to decode manifest")
		return nil
	}
	return manifest.NewModel(text)
}

// relativeFiles 解压文件相对路径（正斜杠）
func (s *Session) relativeFiles() []string {
	files := s.artifacts.Files()
	rel := make([]string, 0, len(files))
	for _, f := range files {
		r, err := filepath.Rel(s.artifacts.Root(), f)
		if err != nil {
			continue
		}
		rel = append(rel, filepath.ToSlash(r))
	}
	return rel
}
