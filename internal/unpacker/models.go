package unpacker

import (
	"time"
)

// UnpackRequest 解压请求
type UnpackRequest struct {
	APKPath   string // APK 文件
	OutputDir string // 解压目录
}

// UnpackResult 解压结果
type UnpackResult struct {
	Success     bool      `json:"success"`
	Status      string    `json:"status"` // success/failed/skipped
	FileCount   int       `json:"file_count"`
	TotalSize   int64     `json:"total_size"` // 解压后总大小（字节）
	DEXFiles    []string  `json:"dex_files"`
	Duration    int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// UnpackStatus 解压状态枚举
const (
	UnpackStatusSuccess = "success" // 成功
	UnpackStatusFailed  = "failed"  // 失败
	UnpackStatusSkipped = "skipped" // 跳过（复用缓存）
)

// DEXInfo DEX 文件基本信息
type DEXInfo struct {
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Version  string `json:"version"`
	IsValid  bool   `json:"is_valid"`
}
