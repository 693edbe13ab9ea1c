package cert

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrKeytoolMissing keytool 不可用
var ErrKeytoolMissing = errors.New("keytool not available")

// Certificate keytool -printcert 的解析结果
type Certificate struct {
	File      string `json:"file"`
	Owner     string `json:"owner"`
	Issuer    string `json:"issuer"`
	Developer string `json:"developer"` // Owner 的 CN
	Company   string `json:"company"`   // Owner 的 O
	Serial    string `json:"serial"`
	ValidFrom string `json:"valid_from"`
	SHA1      string `json:"sha1"`
	SHA256    string `json:"sha256"`
	Raw       string `json:"raw"`
}

// Inspector 签名证书查看器
type Inspector struct {
	keytoolPath string
	timeout     time.Duration
	logger      *logrus.Logger
}

// NewInspector 创建证书查看器
func NewInspector(keytoolPath string, timeout time.Duration, logger *logrus.Logger) *Inspector {
	if keytoolPath == "" {
		keytoolPath = "keytool"
	}
	return &Inspector{
		keytoolPath: keytoolPath,
		timeout:     timeout,
		logger:      logger,
	}
}

// Inspect 执行 keytool -printcert -file <path>
func (i *Inspector) Inspect(ctx context.Context, path string) (*Certificate, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	i.logger.WithField("file", path).Debug("Printing certificate")

	cmd := exec.CommandContext(ctx, i.keytoolPath, "-printcert", "-file", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrKeytoolMissing, err)
		}
		return nil, fmt.Errorf("keytool failed: %w, output: %s", err, string(output))
	}

	certificate := ParsePrintCert(string(output))
	certificate.File = path
	return certificate, nil
}

// ParsePrintCert 解析 keytool 输出，只取第一张证书
func ParsePrintCert(output string) *Certificate {
	c := &Certificate{Raw: output}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "Owner":
			if c.Owner == "" {
				c.Owner = value
				c.Developer = DNField(value, "CN")
				c.Company = DNField(value, "O")
			}
		case "Issuer":
			if c.Issuer == "" {
				c.Issuer = value
			}
		case "Serial number":
			if c.Serial == "" {
				c.Serial = value
			}
		case "Valid from":
			if c.ValidFrom == "" {
				c.ValidFrom = value
			}
		case "SHA1":
			if c.SHA1 == "" {
				c.SHA1 = value
			}
		case "SHA256":
			if c.SHA256 == "" {
				c.SHA256 = value
			}
		}
	}

	return c
}

// DNField 从 X.500 DN 中取出指定属性
func DNField(dn, attr string) string {
	for _, part := range splitDN(dn) {
		k, v, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), attr) {
			return strings.Trim(strings.TrimSpace(v), `"`)
		}
	}
	return ""
}

// splitDN 按逗号切分，忽略引号和转义内的逗号
func splitDN(dn string) []string {
	var parts []string
	var current strings.Builder
	inQuotes, escaped := false, false

	for _, r := range dn {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
