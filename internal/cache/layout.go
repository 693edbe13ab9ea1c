package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// DisassemblyDir 反汇编输出子目录
	DisassemblyDir = "cache"
	// UnzippedDir 解压输出子目录
	UnzippedDir = "unzipped"
)

// Layout 单个 APK 的缓存目录：<work_dir>/<sha1>/{cache,unzipped}
type Layout struct {
	Hash         string
	Root         string
	CachePath    string
	UnzippedPath string
}

// Resolve 计算 APK 的 sha1 并得到缓存目录
func Resolve(workDir, apkPath string) (*Layout, error) {
	hash, err := FileSHA1(apkPath)
	if err != nil {
		return nil, err
	}

	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work dir: %w", err)
	}

	root := filepath.Join(absWork, hash)
	return &Layout{
		Hash:         hash,
		Root:         root,
		CachePath:    filepath.Join(root, DisassemblyDir),
		UnzippedPath: filepath.Join(root, UnzippedDir),
	}, nil
}

// FileSHA1 流式计算文件 sha1
func FileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists 任一缓存子目录存在即认为有缓存
func (l *Layout) Exists() bool {
	for _, dir := range []string{l.CachePath, l.UnzippedPath} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// Prepare 创建缓存目录；fresh 为 true 时先删除旧内容
func (l *Layout) Prepare(fresh bool) error {
	for _, dir := range []string{l.CachePath, l.UnzippedPath} {
		if fresh {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to clear %s: %w", dir, err)
			}
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
