package unpacker

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/sirupsen/logrus"
)

// ErrNotAPK 文件不存在或不是 ZIP 格式
var ErrNotAPK = errors.New("not a valid APK file")

// headerSize filetype 识别需要的文件头长度
const headerSize = 261

// ValidateAPK 检查文件存在且内容为 ZIP 归档
func ValidateAPK(apkPath string) error {
	info, err := os.Stat(apkPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAPK, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNotAPK, apkPath)
	}

	f, err := os.Open(apkPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAPK, err)
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: %v", ErrNotAPK, err)
	}

	if !filetype.Is(head[:n], "zip") {
		return fmt.Errorf("%w: %s is not a zip archive", ErrNotAPK, apkPath)
	}
	return nil
}

// Unpacker APK 解压器
type Unpacker struct {
	logger *logrus.Logger
}

// NewUnpacker 创建解压器
func NewUnpacker(logger *logrus.Logger) *Unpacker {
	return &Unpacker{logger: logger}
}

// Unpack 把 APK 解压到 OutputDir
func (u *Unpacker) Unpack(ctx context.Context, req UnpackRequest) (*UnpackResult, error) {
	startTime := time.Now()
	result := &UnpackResult{
		StartedAt: startTime,
		Status:    UnpackStatusFailed,
	}

	u.logger.WithFields(logrus.Fields{
		"apk":        req.APKPath,
		"output_dir": req.OutputDir,
	}).Info("Unzipping APK")

	fail := func(err error) (*UnpackResult, error) {
		result.Error = err.Error()
		result.CompletedAt = time.Now()
		result.Duration = time.Since(startTime).Milliseconds()
		return result, err
	}

	if err := ValidateAPK(req.APKPath); err != nil {
		return fail(err)
	}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create output dir: %w", err))
	}

	reader, err := zip.OpenReader(req.APKPath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fail(fmt.Errorf("failed to open APK as zip: %w", err))
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		target, err := safeJoin(req.OutputDir, file.Name)
		if err != nil {
			u.logger.WithError(err).WithField("entry", file.Name).Warn("Skipping unsafe zip entry")
			continue
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fail(fmt.Errorf("failed to create %s: %w", target, err))
			}
			continue
		}

		written, err := extractFile(file, target)
		if err != nil {
			return fail(err)
		}

		result.FileCount++
		result.TotalSize += written
		if strings.HasSuffix(file.Name, ".dex") {
			if info, err := GetDEXInfo(target); err == nil && info.IsValid {
				result.DEXFiles = append(result.DEXFiles, target)
			} else {
				u.logger.WithField("entry", file.Name).Warn("Invalid DEX file in APK")
			}
		}
	}

	result.Success = true
	result.Status = UnpackStatusSuccess
	result.CompletedAt = time.Now()
	result.Duration = time.Since(startTime).Milliseconds()

	u.logger.WithFields(logrus.Fields{
		"files":       result.FileCount,
		"dex_count":   len(result.DEXFiles),
		"total_size":  result.TotalSize,
		"duration_ms": result.Duration,
	}).Info("APK unzipped")

	return result, nil
}

// safeJoin 拒绝跳出输出目录的条目（zip slip）
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return target, nil
}

// extractFile 解压单个条目
func extractFile(file *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}

	src, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open entry %s: %w", file.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		return written, fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return written, nil
}
