package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/apk-analysis/droidcarve-go/internal/domain"
	"github.com/apk-analysis/droidcarve-go/internal/manifest"
)

// Report 当前分析结果的摘要
func (s *Session) Report(ctx context.Context) (*domain.AnalysisReport, error) {
	if !s.Analyzed() {
		return nil, ErrNotAnalyzed
	}

	now := time.Now()
	report := &domain.AnalysisReport{
		TaskID:             s.taskID,
		SHA1:               s.layout.Hash,
		APKName:            filepath.Base(s.apkPath),
		APKPath:            s.apkPath,
		Status:             domain.ReportStatusCompleted,
		ClassCount:         s.classes.Len(),
		SignatureCount:     len(s.artifacts.SignatureFiles()),
		XMLFileCount:       len(s.artifacts.XMLFiles()),
		ManifestFound:      s.manifest != nil,
		AnalysisDurationMs: s.duration.Milliseconds(),
		AnalyzedAt:         &now,
	}
	if info, err := os.Stat(s.apkPath); err == nil {
		report.FileSize = info.Size()
	}

	if s.manifest != nil {
		permissions := s.manifest.Permissions()
		report.PermissionCount = len(permissions)
		for _, p := range permissions {
			if manifest.Classify(p) == manifest.KindCustom {
				report.CustomPermCount++
			}
		}
		if data, err := json.Marshal(permissions); err == nil {
			report.PermissionsJSON = string(data)
		}
	}

	if info, err := s.DetectPacker(); err == nil && info.IsPacked {
		report.IsPacked = true
		report.PackerName = info.PackerName
	}

	// 开发者信息取第一个可解析的签名证书
	for _, f := range s.artifacts.SignatureFiles() {
		c, err := s.certs.Inspect(ctx, f)
		if err != nil {
			s.logger.WithError(err).WithField("file", f).Debug("Skipping certificate for report")
			continue
		}
		report.Developer = c.Developer
		report.CompanyName = c.Company
		break
	}

	return report, nil
}

// saveReport 写入报告，失败只记录日志
func (s *Session) saveReport(ctx context.Context) {
	if s.reports == nil {
		return
	}

	report, err := s.Report(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to build analysis report")
		return
	}
	if err := s.reports.Upsert(ctx, report); err != nil {
		s.logger.WithError(err).WithField("sha1", report.SHA1).Warn("Failed to save analysis report")
		return
	}
	s.logger.WithField("sha1", report.SHA1).Info("Analysis report saved")
}

// SaveReport 手动保存报告（rescan 后使用）
func (s *Session) SaveReport(ctx context.Context) error {
	if s.reports == nil {
		return nil
	}
	report, err := s.Report(ctx)
	if err != nil {
		return err
	}
	return s.reports.Upsert(ctx, report)
}
