package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
)

// InitLogger 根据配置创建 logger，输出到 out（nil 时为标准错误，避免和交互输出混在一起）
func InitLogger(cfg *LogConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()

	// 设置日志级别
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// 启用调用者信息（文件名和行号）
	logger.SetReportCaller(true)

	// 设置日志格式
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
				return "", filename
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006/01/02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
				return "", filename
			},
		})
	}

	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	return logger
}
