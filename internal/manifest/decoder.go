package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"

	"github.com/avast/apkparser"
	"github.com/sirupsen/logrus"
)

// Decoder 把二进制 AndroidManifest.xml 解码为缩进格式的 XML 文本
type Decoder struct {
	logger *logrus.Logger
	indent string
}

// NewDecoder 创建解码器
func NewDecoder(logger *logrus.Logger) *Decoder {
	return &Decoder{
		logger: logger,
		indent: "    ",
	}
}

// Decode 返回 manifestPath 对应的文本形式。
// 解压目录中的文件若已是文本 XML（例如 apktool 输出）则原样返回，
// 否则通过 apkparser 从 APK 中解码（同时解析 resources.arsc 以还原资源引用）。
func (d *Decoder) Decode(apkPath, manifestPath string) (string, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest: %w", err)
	}

	if isTextXML(raw) {
		d.logger.WithField("manifest", manifestPath).Debug("Manifest is already text XML")
		return string(raw), nil
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", d.indent)

	zipErr, resErr, manErr := apkparser.ParseApk(apkPath, enc)
	if zipErr != nil {
		return "", fmt.Errorf("failed to unzip the APK: %w", zipErr)
	}
	if resErr != nil {
		// resources.arsc 解析失败时仍可得到 manifest，只是资源引用无法还原
		d.logger.WithError(resErr).Warn("Failed to parse resources, references stay unresolved")
	}
	if manErr != nil {
		return "", fmt.Errorf("failed to parse AndroidManifest.xml: %w", manErr)
	}
	if err := enc.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush manifest encoder: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"apk":   apkPath,
		"bytes": buf.Len(),
	}).Debug("Binary manifest decoded")

	return buf.String(), nil
}

// isTextXML 跳过 BOM 和空白后以 '<' 开头
func isTextXML(raw []byte) bool {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")), " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '<'
}
