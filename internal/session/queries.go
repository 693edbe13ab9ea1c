package session

import (
	"context"
	"iter"
	"slices"

	"github.com/apk-analysis/droidcarve-go/internal/cert"
	"github.com/apk-analysis/droidcarve-go/internal/packer"
	"github.com/apk-analysis/droidcarve-go/internal/query"
)

// SignatureResult 单个签名文件的 keytool 输出
type SignatureResult struct {
	File        string
	Certificate *cert.Certificate
	Err         error
}

// Analyzed 是否已有分析结果
func (s *Session) Analyzed() bool {
	return s.classes != nil && s.artifacts != nil
}

// engine 基于当前状态构造查询引擎
func (s *Session) engine() *query.Engine {
	// 接口中不能放入 nil *Model
	var permissions query.PermissionSource
	if s.manifest != nil {
		permissions = s.manifest
	}
	return query.New(s.classes, s.exclusions, permissions)
}

// Find 按前缀正则查找类，排除规则在每次调用时生效
func (s *Session) Find(pattern string) (iter.Seq[string], error) {
	if !s.Analyzed() {
		return nil, ErrNotAnalyzed
	}
	seq, err := s.engine().Find(pattern)
	s.metrics.RecordQuery(err)
	return seq, err
}

// FindAll Find 的切片形式
func (s *Session) FindAll(pattern string) ([]string, error) {
	seq, err := s.Find(pattern)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// Statistics 类数量、权限数量等统计
func (s *Session) Statistics() (query.Statistics, error) {
	if !s.Analyzed() {
		return query.Statistics{}, ErrNotAnalyzed
	}
	return s.engine().Statistics(), nil
}

// Permissions manifest 中声明的权限（保留顺序和重复）
func (s *Session) Permissions() ([]string, error) {
	if !s.Analyzed() {
		return nil, ErrNotAnalyzed
	}
	if s.manifest == nil {
		return nil, ErrManifestNotFound
	}
	return s.manifest.Permissions(), nil
}

// Manifest 解码后的 manifest 文本
func (s *Session) Manifest() (string, error) {
	if !s.Analyzed() {
		return "", ErrNotAnalyzed
	}
	if s.manifest == nil {
		return "", ErrManifestNotFound
	}
	return s.manifest.Serialized(), nil
}

// SignatureFiles 解压目录中的签名文件，空列表表示未找到
func (s *Session) SignatureFiles() ([]string, error) {
	if !s.Analyzed() {
		return nil, ErrNotAnalyzed
	}
	return s.artifacts.SignatureFiles(), nil
}

// Signatures 对每个签名文件执行 keytool -printcert
func (s *Session) Signatures(ctx context.Context) ([]SignatureResult, error) {
	files, err := s.SignatureFiles()
	if err != nil {
		return nil, err
	}

	results := make([]SignatureResult, 0, len(files))
	for _, f := range files {
		c, err := s.certs.Inspect(ctx, f)
		if err != nil {
			s.logger.WithError(err).WithField("file", f).Warn("Failed to print certificate")
		}
		results = append(results, SignatureResult{File: f, Certificate: c, Err: err})
	}
	return results, nil
}

// DetectPacker 基于类索引和 native 库检测加壳
func (s *Session) DetectPacker() (*packer.PackerInfo, error) {
	if !s.Analyzed() {
		return nil, ErrNotAnalyzed
	}
	classes := s.classes
	return s.packers.Detect(packer.Evidence{
		HasClass: func(descriptor string) bool {
			_, ok := classes.Get(descriptor)
			return ok
		},
		Files: s.relativeFiles(),
	}), nil
}

// AddExclusion 添加排除规则，非法正则返回 filter.ErrInvalidPattern
func (s *Session) AddExclusion(pattern string) error {
	return s.exclusions.Add(pattern)
}

// AddDefaultExclusions 加载内置 SDK 排除规则
func (s *Session) AddDefaultExclusions() {
	s.exclusions.AddDefaults()
}

// ClearExclusions 清空排除规则
func (s *Session) ClearExclusions() {
	s.exclusions.Clear()
}

// Exclusions 当前排除规则（插入顺序）
func (s *Session) Exclusions() []string {
	return s.exclusions.List()
}
