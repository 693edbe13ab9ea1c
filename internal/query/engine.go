package query

import (
	"iter"
	"slices"

	"github.com/apk-analysis/droidcarve-go/internal/filter"
)

// ClassSource 只读的类索引视图
type ClassSource interface {
	Len() int
	Descriptors() iter.Seq[string]
}

// Excluder 排除规则视图
type Excluder interface {
	IsExcluded(candidate string) bool
	Len() int
}

// PermissionSource 权限视图
type PermissionSource interface {
	PermissionCount() int
}

// Statistics 统计信息
type Statistics struct {
	ClassCount      int  `json:"class_count"`      // 不受排除规则影响
	PermissionCount int  `json:"permission_count"` // 包含重复声明
	ExclusionRules  int  `json:"exclusion_rules"`
	ManifestFound   bool `json:"manifest_found"`
}

// Engine 在一次调用期间借用索引和排除规则，每次返回新结果，不缓存
type Engine struct {
	classes     ClassSource
	excluder    Excluder
	permissions PermissionSource
}

// New 创建查询引擎；permissions 为 nil 表示没有找到 manifest
func New(classes ClassSource, excluder Excluder, permissions PermissionSource) *Engine {
	return &Engine{
		classes:     classes,
		excluder:    excluder,
		permissions: permissions,
	}
}

// Find 惰性返回匹配 pattern（前缀匹配）且未被排除的 descriptor。
// pattern 非法时立即返回错误。
func (e *Engine) Find(pattern string) (iter.Seq[string], error) {
	re, err := filter.CompileAnchored(pattern)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		for descriptor := range e.classes.Descriptors() {
			if !re.MatchString(descriptor) {
				continue
			}
			if e.excluder != nil && e.excluder.IsExcluded(descriptor) {
				continue
			}
			if !yield(descriptor) {
				return
			}
		}
	}, nil
}

// FindAll Find 的切片形式
func (e *Engine) FindAll(pattern string) ([]string, error) {
	seq, err := e.Find(pattern)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// Statistics 原始数量统计
func (e *Engine) Statistics() Statistics {
	stats := Statistics{
		ClassCount: e.classes.Len(),
	}
	if e.excluder != nil {
		stats.ExclusionRules = e.excluder.Len()
	}
	if e.permissions != nil {
		stats.ManifestFound = true
		stats.PermissionCount = e.permissions.PermissionCount()
	}
	return stats
}
