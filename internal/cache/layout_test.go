package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	work := t.TempDir()
	apk := filepath.Join(t.TempDir(), "app.apk")
	require.NoError(t, os.WriteFile(apk, []byte("abc"), 0644))

	layout, err := Resolve(work, apk)
	require.NoError(t, err)

	// sha1("abc")
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", layout.Hash)
	assert.Equal(t, filepath.Join(work, layout.Hash, "cache"), layout.CachePath)
	assert.Equal(t, filepath.Join(work, layout.Hash, "unzipped"), layout.UnzippedPath)
	assert.False(t, layout.Exists())
}

func TestResolve_MissingAPK(t *testing.T) {
	_, err := Resolve(t.TempDir(), filepath.Join(t.TempDir(), "missing.apk"))
	assert.Error(t, err)
}

// TestPrepare 测试 fresh 与复用
func TestPrepare(t *testing.T) {
	root := t.TempDir()
	layout := &Layout{
		Root:         root,
		CachePath:    filepath.Join(root, "cache"),
		UnzippedPath: filepath.Join(root, "unzipped"),
	}

	require.NoError(t, layout.Prepare(false))
	assert.True(t, layout.Exists())

	stale := filepath.Join(layout.CachePath, "Old.smali")
	require.NoError(t, os.WriteFile(stale, []byte(".class LOld;"), 0644))

	// 复用时保留旧文件
	require.NoError(t, layout.Prepare(false))
	assert.FileExists(t, stale)

	// fresh 时清空
	require.NoError(t, layout.Prepare(true))
	assert.NoFileExists(t, stale)
	assert.DirExists(t, layout.CachePath)
	assert.DirExists(t, layout.UnzippedPath)
}
