package packer

import (
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// detectThreshold 判定为加壳的最低置信度
const detectThreshold = 0.4

// Detector 壳检测器
type Detector struct {
	rules  []PackerRule
	logger *logrus.Logger
}

// NewDetector 创建壳检测器
func NewDetector(logger *logrus.Logger) *Detector {
	return NewDetectorWithRules(GetBuiltinRules(), logger)
}

// NewDetectorWithRules 使用自定义规则创建检测器
func NewDetectorWithRules(rules []PackerRule, logger *logrus.Logger) *Detector {
	sorted := make([]PackerRule, len(rules))
	copy(sorted, rules)
	// 按优先级降序排序
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Detector{
		rules:  sorted,
		logger: logger,
	}
}

// Detect 根据类索引和解压文件检测加壳
func (d *Detector) Detect(ev Evidence) *PackerInfo {
	result := &PackerInfo{
		Indicators: []string{},
	}

	nativeLibs := collectNativeLibs(ev.Files)
	d.logger.WithFields(logrus.Fields{
		"files":       len(ev.Files),
		"native_libs": len(nativeLibs),
	}).Debug("Starting packer detection")

	for _, rule := range d.rules {
		confidence, indicators := d.matchRule(rule, ev, nativeLibs)
		if confidence < detectThreshold {
			continue
		}

		result.IsPacked = true
		result.PackerName = rule.Name
		result.PackerType = rule.Type
		result.Confidence = min(confidence, 1.0)
		result.Indicators = indicators

		d.logger.WithFields(logrus.Fields{
			"packer_name": result.PackerName,
			"packer_type": result.PackerType,
			"confidence":  result.Confidence,
			"indicators":  result.Indicators,
		}).Info("Packer detected")
		return result
	}

	d.logger.Debug("No packer detected")
	return result
}

// matchRule 匹配单个规则
func (d *Detector) matchRule(rule PackerRule, ev Evidence, nativeLibs []string) (float64, []string) {
	confidence := 0.0
	indicators := []string{}

	for _, ruleLib := range rule.NativeLibs {
		for _, lib := range nativeLibs {
			if matchLibName(ruleLib, lib) {
				confidence += 0.4
				indicators = append(indicators, "native_lib:"+lib)
			}
		}
	}

	if ev.HasClass != nil {
		for _, className := range rule.ClassNames {
			descriptor := ToDescriptor(className)
			if ev.HasClass(descriptor) {
				confidence += 0.5
				indicators = append(indicators, "class:"+descriptor)
			}
		}
	}

	for _, asset := range rule.Assets {
		for _, file := range ev.Files {
			if strings.HasPrefix(strings.ToLower(file), strings.ToLower(asset)) {
				confidence += 0.3
				indicators = append(indicators, "asset:"+file)
				break
			}
		}
	}

	return confidence, indicators
}

// ToDescriptor com.foo.Bar -> Lcom/foo/Bar;
func ToDescriptor(className string) string {
	return "L" + strings.ReplaceAll(className, ".", "/") + ";"
}

// collectNativeLibs 收集 lib/<abi>/*.so 的文件名
func collectNativeLibs(files []string) []string {
	seen := make(map[string]bool)
	var libs []string
	for _, f := range files {
		f = strings.ReplaceAll(f, "\\", "/")
		if !strings.HasPrefix(f, "lib/") || !strings.HasSuffix(f, ".so") {
			continue
		}
		name := path.Base(f)
		if !seen[name] {
			seen[name] = true
			libs = append(libs, name)
		}
	}
	return libs
}

// matchLibName 匹配库名（忽略版本后缀，如 libshellx-2.10.3.4.so）
func matchLibName(pattern, name string) bool {
	if pattern == name {
		return true
	}

	patternBase := strings.TrimSuffix(pattern, ".so")
	nameBase := strings.TrimSuffix(name, ".so")

	patternCore, _, _ := strings.Cut(strings.TrimPrefix(patternBase, "lib"), "-")
	nameCore, _, _ := strings.Cut(strings.TrimPrefix(nameBase, "lib"), "-")

	return patternCore == nameCore
}

// Summary 获取壳检测摘要信息
func Summary(info *PackerInfo) string {
	if info == nil || !info.IsPacked {
		return "No packer detected"
	}
	return "Packer detected: " + info.PackerName + " (" + info.PackerType + ")"
}
