package repository

import (
	"context"

	"github.com/apk-analysis/droidcarve-go/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportRepository 分析报告 Repository
type ReportRepository interface {
	Create(ctx context.Context, report *domain.AnalysisReport) error
	Upsert(ctx context.Context, report *domain.AnalysisReport) error
	FindBySHA1(ctx context.Context, sha1 string) (*domain.AnalysisReport, error)
	List(ctx context.Context, page, pageSize int) ([]*domain.AnalysisReport, int64, error)
	Delete(ctx context.Context, sha1 string) error
}

type reportRepo struct {
	db *gorm.DB
}

// NewReportRepository 创建分析报告 Repository
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepo{db: db}
}

// Create 创建分析报告
func (r *reportRepo) Create(ctx context.Context, report *domain.AnalysisReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// Upsert 按 sha1 插入或更新
func (r *reportRepo) Upsert(ctx context.Context, report *domain.AnalysisReport) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "sha1"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"task_id", "apk_name", "apk_path", "file_size", "status", "error",
				"class_count", "permission_count", "custom_perm_count",
				"signature_count", "xml_file_count", "manifest_found",
				"developer", "company_name", "is_packed", "packer_name",
				"permissions_json", "analysis_duration_ms", "analyzed_at", "updated_at",
			}),
		}).
		Create(report).Error
}

// FindBySHA1 根据 APK sha1 查询
func (r *reportRepo) FindBySHA1(ctx context.Context, sha1 string) (*domain.AnalysisReport, error) {
	var report domain.AnalysisReport
	err := r.db.WithContext(ctx).Where("sha1 = ?", sha1).First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// List 分页查询，按更新时间倒序
func (r *reportRepo) List(ctx context.Context, page, pageSize int) ([]*domain.AnalysisReport, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.AnalysisReport{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reports []*domain.AnalysisReport
	err := r.db.WithContext(ctx).
		Order("updated_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&reports).Error
	if err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// Delete 删除分析报告
func (r *reportRepo) Delete(ctx context.Context, sha1 string) error {
	return r.db.WithContext(ctx).Where("sha1 = ?", sha1).Delete(&domain.AnalysisReport{}).Error
}
