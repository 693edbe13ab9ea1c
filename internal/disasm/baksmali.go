package disasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrToolMissing baksmali.jar 或 java 不可用
var ErrToolMissing = errors.New("disassembler not available")

// Baksmali baksmali 反汇编器
type Baksmali struct {
	javaPath string        // java 可执行文件
	jarPath  string        // baksmali.jar 路径
	timeout  time.Duration // 单次反汇编超时
	logger   *logrus.Logger
}

// NewBaksmali 创建反汇编器
func NewBaksmali(javaPath, jarPath string, timeout time.Duration, logger *logrus.Logger) *Baksmali {
	if javaPath == "" {
		javaPath = "java"
	}
	return &Baksmali{
		javaPath: javaPath,
		jarPath:  jarPath,
		timeout:  timeout,
		logger:   logger,
	}
}

// JarPath 返回 baksmali.jar 路径
func (b *Baksmali) JarPath() string {
	return b.jarPath
}

// Available 检查 baksmali.jar 是否存在
func (b *Baksmali) Available() error {
	info, err := os.Stat(b.jarPath)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: no baksmali.jar found in %s", ErrToolMissing, b.jarPath)
	}
	return nil
}

// Disassemble 执行 java -jar baksmali.jar d <apk> -o <outDir>
func (b *Baksmali) Disassemble(ctx context.Context, apkPath, outDir string) error {
	if err := b.Available(); err != nil {
		return err
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.logger.WithFields(logrus.Fields{
		"apk":     apkPath,
		"out_dir": outDir,
	}).Info("Disassembling APK")

	start := time.Now()
	cmd := exec.CommandContext(ctx, b.javaPath, "-jar", b.jarPath, "d", apkPath, "-o", outDir)
	output, err := cmd.CombinedOutput()

	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			b.logger.Debug(line)
		}
	}

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrToolMissing, err)
		}
		return fmt.Errorf("baksmali failed: %w, output: %s", err, string(output))
	}

	b.logger.WithField("duration", time.Since(start)).Info("Disassembly completed")
	return nil
}
