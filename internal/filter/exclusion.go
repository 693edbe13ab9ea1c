package filter

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
)

// ErrInvalidPattern 正则无法编译
var ErrInvalidPattern = errors.New("invalid pattern")

// DefaultSDKPatterns 常见平台库和第三方 SDK 的类前缀。
// 排除后搜索结果只剩应用自身代码。
var DefaultSDKPatterns = []string{
	// 平台和语言运行时
	`Landroid/support/`,
	`Landroidx/`,
	`Lkotlin/`,
	`Lkotlinx/`,
	`Lcom/google/`,

	// 纯统计分析SDK
	`Lcom/umeng/`,
	`Lcom/sensorsdata/`,
	`Lcom/tendcloud/`,
	`Lcom/growingio/`,

	// 纯推送SDK
	`Lcn/jpush/`,
	`Lcom/igexin/`,
	`Lcom/xiaomi/push/`,
	`Lcom/huawei/hms/push/`,
}

// CompileAnchored 编译从位置 0 开始匹配（前缀匹配，而非整串匹配）的正则。
// 先编译原始 pattern 做合法性校验，避免 "a)(b" 这类包裹后才合法的表达式被接受。
func CompileAnchored(pattern string) (*regexp.Regexp, error) {
	if _, err := regexp.Compile(pattern); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	return re, nil
}

// rule 单条排除规则
type rule struct {
	pattern string
	re      *regexp.Regexp
}

// ExclusionFilter 类名排除规则集合（保持插入顺序）
type ExclusionFilter struct {
	rules  []rule
	logger *logrus.Logger
}

// NewExclusionFilter 创建空的排除过滤器
func NewExclusionFilter(logger *logrus.Logger) *ExclusionFilter {
	return &ExclusionFilter{logger: logger}
}

// Add 添加规则；pattern 无法编译时返回 ErrInvalidPattern，集合不变
func (f *ExclusionFilter) Add(pattern string) error {
	re, err := CompileAnchored(pattern)
	if err != nil {
		return err
	}
	f.rules = append(f.rules, rule{pattern: pattern, re: re})

	f.logger.WithFields(logrus.Fields{
		"pattern": pattern,
		"total":   len(f.rules),
	}).Debug("Exclusion rule added")
	return nil
}

// AddDefaults 加载内置 SDK 排除规则
func (f *ExclusionFilter) AddDefaults() {
	for _, pattern := range DefaultSDKPatterns {
		// 内置规则都是合法正则
		_ = f.Add(pattern)
	}
}

// Clear 清空所有规则
func (f *ExclusionFilter) Clear() {
	f.logger.WithField("removed", len(f.rules)).Debug("Exclusion rules cleared")
	f.rules = nil
}

// List 按插入顺序返回原始 pattern
func (f *ExclusionFilter) List() []string {
	patterns := make([]string, 0, len(f.rules))
	for _, r := range f.rules {
		patterns = append(patterns, r.pattern)
	}
	return patterns
}

// Len 规则数量
func (f *ExclusionFilter) Len() int {
	return len(f.rules)
}

// IsExcluded 任意一条规则匹配 candidate 的前缀即排除
func (f *ExclusionFilter) IsExcluded(candidate string) bool {
	for _, r := range f.rules {
		if r.re.MatchString(candidate) {
			return true
		}
	}
	return false
}
