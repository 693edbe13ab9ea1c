package manifest

import (
	"strings"
)

const (
	// PermissionTag 权限声明元素
	PermissionTag = "<uses-permission"

	// StandardPrefix 平台保留的权限命名空间
	StandardPrefix = "android.permission."
)

// Kind 权限分类（仅用于展示）
type Kind string

const (
	KindStandard Kind = "standard"
	KindCustom   Kind = "custom"
)

// Model 解析后的 Manifest（保留序列化文本用于展示）
type Model struct {
	serialized  string
	permissions []string
}

// NewModel 从格式化后的 XML 文本创建 Model
func NewModel(serialized string) *Model {
	return &Model{
		serialized:  serialized,
		permissions: ExtractPermissions(serialized),
	}
}

// ExtractPermissions 逐行提取 uses-permission 的第一个引号属性值。
// 保持文档顺序，不去重。
func ExtractPermissions(text string) []string {
	var perms []string
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, PermissionTag)
		if idx < 0 {
			continue
		}
		if name, ok := firstQuoted(line[idx+len(PermissionTag):]); ok {
			perms = append(perms, name)
		}
	}
	return perms
}

// firstQuoted 返回第一对双引号之间的内容
func firstQuoted(s string) (string, bool) {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return "", false
	}
	return s[start+1 : start+1+end], true
}

// Permissions 权限列表（副本）
func (m *Model) Permissions() []string {
	return append([]string(nil), m.permissions...)
}

// PermissionCount 权限数量（包含重复项）
func (m *Model) PermissionCount() int {
	return len(m.permissions)
}

// Serialized 格式化后的 XML 文本
func (m *Model) Serialized() string {
	return m.serialized
}

// IsStandard 是否为平台标准权限
func IsStandard(permission string) bool {
	return strings.HasPrefix(permission, StandardPrefix)
}

// Classify 权限分类
func Classify(permission string) Kind {
	if IsStandard(permission) {
		return KindStandard
	}
	return KindCustom
}
