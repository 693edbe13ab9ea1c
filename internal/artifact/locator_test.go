package artifact

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocator(suffixes ...string) *Locator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewLocator(suffixes, logger)
}

func touch(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
}

// TestScan_Classification 测试按后缀分类
func TestScan_Classification(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"AndroidManifest.xml",
		"META-INF/CERT.RSA",
		"META-INF/CERT.SF",
		"META-INF/MANIFEST.MF",
		"res/layout/main.xml",
		"res/raw/cert.rsa",
		"classes.dex",
	)

	artifacts, err := newTestLocator().Scan(root)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "META-INF", "CERT.RSA")}, artifacts.SignatureFiles())
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "AndroidManifest.xml"),
		filepath.Join(root, "res", "layout", "main.xml"),
	}, artifacts.XMLFiles())
	assert.Len(t, artifacts.Files(), 7)

	manifest, ok := artifacts.ManifestPath()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "AndroidManifest.xml"), manifest)
}

// TestScan_NoSignatureIsNotError 测试没有签名文件不是错误
func TestScan_NoSignatureIsNotError(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "AndroidManifest.xml", "classes.dex")

	artifacts, err := newTestLocator().Scan(root)
	require.NoError(t, err)
	assert.NotNil(t, artifacts)
	assert.Empty(t, artifacts.SignatureFiles())
}

// TestScan_BothPredicates 测试同时满足两个后缀的文件出现在两个列表中
func TestScan_BothPredicates(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "odd/sig.RSA.xml")

	artifacts, err := newTestLocator(".RSA.xml").Scan(root)
	require.NoError(t, err)
	assert.Len(t, artifacts.SignatureFiles(), 1)
	assert.Len(t, artifacts.XMLFiles(), 1)
}

// TestLookupXML_FirstMatchWins 测试第一个匹配优先
func TestLookupXML_FirstMatchWins(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/strings.xml", "b/strings.xml")

	artifacts, err := newTestLocator().Scan(root)
	require.NoError(t, err)

	path, ok := artifacts.LookupXML("/strings.xml")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "a", "strings.xml"), path)

	_, ok = artifacts.LookupXML("/missing.xml")
	assert.False(t, ok)

	_, ok = artifacts.ManifestPath()
	assert.False(t, ok)
}

func TestScan_RootErrors(t *testing.T) {
	_, err := newTestLocator().Scan(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrRootUnreadable)
}
