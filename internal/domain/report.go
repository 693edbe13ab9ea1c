package domain

import "time"

// ReportStatus 分析状态
type ReportStatus string

const (
	ReportStatusCompleted ReportStatus = "completed"
	ReportStatusFailed    ReportStatus = "failed"
)

// AnalysisReport 单个 APK 的分析摘要（按 sha1 唯一）
type AnalysisReport struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID string `gorm:"type:varchar(36);index:idx_task_id" json:"task_id"`
	SHA1   string `gorm:"column:sha1;type:varchar(40);uniqueIndex:uk_sha1;not null" json:"sha1"`

	APKName  string       `gorm:"column:apk_name;type:varchar(255)" json:"apk_name"`
	APKPath  string       `gorm:"column:apk_path;type:varchar(1024)" json:"apk_path"`
	FileSize int64        `json:"file_size"`
	Status   ReportStatus `gorm:"type:varchar(20);default:'completed'" json:"status"`
	Error    string       `gorm:"type:text" json:"error,omitempty"`

	// 索引统计
	ClassCount      int  `gorm:"default:0" json:"class_count"`
	PermissionCount int  `gorm:"default:0" json:"permission_count"`
	CustomPermCount int  `gorm:"default:0" json:"custom_permission_count"`
	SignatureCount  int  `gorm:"default:0" json:"signature_count"`
	XMLFileCount    int  `gorm:"column:xml_file_count;default:0" json:"xml_file_count"`
	ManifestFound   bool `json:"manifest_found"`

	// 开发者信息（从签名证书提取）
	Developer   string `gorm:"type:varchar(500)" json:"developer,omitempty"`
	CompanyName string `gorm:"type:varchar(500)" json:"company_name,omitempty"`

	// 加壳检测
	IsPacked   bool   `json:"is_packed"`
	PackerName string `gorm:"type:varchar(100)" json:"packer_name,omitempty"`

	PermissionsJSON string `gorm:"type:text" json:"permissions_json,omitempty"`

	AnalysisDurationMs int64      `json:"analysis_duration_ms"`
	AnalyzedAt         *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (AnalysisReport) TableName() string {
	return "analysis_reports"
}
