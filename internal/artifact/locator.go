package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// XMLSuffix XML 文件后缀
	XMLSuffix = ".xml"

	// ManifestSuffix 解压目录中 manifest 的路径后缀
	ManifestSuffix = "/AndroidManifest.xml"
)

// DefaultSignatureSuffixes v1 签名块文件后缀
var DefaultSignatureSuffixes = []string{".RSA", ".DSA", ".EC"}

// ErrRootUnreadable 解压目录不可访问
var ErrRootUnreadable = errors.New("extracted archive root unreadable")

// Artifacts 单次扫描得到的文件分类结果
type Artifacts struct {
	root           string
	signatureFiles []string
	xmlFiles       []string
	allFiles       []string
}

// Locator 按文件后缀对解压后的 APK 目录分类
type Locator struct {
	signatureSuffixes []string
	logger            *logrus.Logger
}

// NewLocator 创建 Locator；suffixes 为空时使用默认签名后缀
func NewLocator(signatureSuffixes []string, logger *logrus.Logger) *Locator {
	if len(signatureSuffixes) == 0 {
		signatureSuffixes = DefaultSignatureSuffixes
	}
	return &Locator{
		signatureSuffixes: signatureSuffixes,
		logger:            logger,
	}
}

// Scan 遍历 root，仅根据路径后缀（区分大小写）分类，不读取文件内容
func (l *Locator) Scan(root string) (*Artifacts, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, root)
	}

	result := &Artifacts{root: root}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			l.logger.WithError(err).WithField("path", path).Debug("Skipping unreadable entry")
			return nil
		}
		if d.IsDir() {
			return nil
		}

		result.allFiles = append(result.allFiles, path)
		if l.isSignatureFile(path) {
			result.signatureFiles = append(result.signatureFiles, path)
		}
		if strings.HasSuffix(path, XMLSuffix) {
			result.xmlFiles = append(result.xmlFiles, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, walkErr)
	}

	l.logger.WithFields(logrus.Fields{
		"root":       root,
		"files":      len(result.allFiles),
		"signatures": len(result.signatureFiles),
		"xml_files":  len(result.xmlFiles),
	}).Info("Extracted archive scanned")

	return result, nil
}

func (l *Locator) isSignatureFile(path string) bool {
	for _, suffix := range l.signatureSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Root 扫描根目录
func (a *Artifacts) Root() string {
	return a.root
}

// SignatureFiles 签名文件（遍历顺序）；为空表示未签名或非标准打包
func (a *Artifacts) SignatureFiles() []string {
	return append([]string(nil), a.signatureFiles...)
}

// XMLFiles XML 文件（遍历顺序）
func (a *Artifacts) XMLFiles() []string {
	return append([]string(nil), a.xmlFiles...)
}

// Files 所有普通文件（遍历顺序）
func (a *Artifacts) Files() []string {
	return append([]string(nil), a.allFiles...)
}

// LookupXML 返回第一个以 suffix 结尾的 XML 路径（先遍历到的优先）
func (a *Artifacts) LookupXML(suffix string) (string, bool) {
	for _, path := range a.xmlFiles {
		if strings.HasSuffix(path, suffix) {
			return path, true
		}
	}
	return "", false
}

// ManifestPath AndroidManifest.xml 路径
func (a *Artifacts) ManifestPath() (string, bool) {
	return a.LookupXML(ManifestSuffix)
}
