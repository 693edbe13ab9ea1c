package session

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/apk-analysis/droidcarve-go/internal/config"
	"github.com/apk-analysis/droidcarve-go/internal/disasm"
	"github.com/apk-analysis/droidcarve-go/internal/filter"
	"github.com/apk-analysis/droidcarve-go/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testManifest = `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android" package="com.example.app">
    <uses-permission android:name="android.permission.INTERNET" />
    <uses-permission android:name="android.permission.CAMERA" />
    <uses-permission android:name="com.example.app.permission.C2D_MESSAGE" />
</manifest>
`

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Tools: config.ToolsConfig{
			BaksmaliPath: filepath.Join(t.TempDir(), "baksmali.jar"),
			KeytoolPath:  "definitely-not-keytool",
		},
		Cache: config.CacheConfig{WorkDir: t.TempDir()},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// newTestSession 在缓存目录中放好 smali 和解压文件
func newTestSession(t *testing.T, withManifest bool, opts ...Option) *Session {
	t.Helper()
	apk := filepath.Join(t.TempDir(), "app.apk")
	writeFile(t, apk, "not really an apk")

	s, err := New(testConfig(t), apk, newTestLogger(), opts...)
	require.NoError(t, err)
	require.NoError(t, s.Prepare(true))

	cacheDir := s.Layout().CachePath
	writeFile(t, filepath.Join(cacheDir, "com/example/app/Main.smali"), ".class public Lcom/example/app/Main;\n.super Ljava/lang/Object;\n")
	writeFile(t, filepath.Join(cacheDir, "com/example/app/Util.smali"), ".class final Lcom/example/app/Util;\n")
	writeFile(t, filepath.Join(cacheDir, "com/stub/StubApp.smali"), ".class public Lcom/stub/StubApp;\n")
	writeFile(t, filepath.Join(cacheDir, "androidx/core/Foo.smali"), ".class public Landroidx/core/Foo;\n")
	writeFile(t, filepath.Join(cacheDir, "broken.smali"), "# no class here\n")

	unzipped := s.Layout().UnzippedPath
	writeFile(t, filepath.Join(unzipped, "META-INF/CERT.RSA"), "cert")
	writeFile(t, filepath.Join(unzipped, "res/layout/main.xml"), "<LinearLayout/>")
	writeFile(t, filepath.Join(unzipped, "lib/arm64-v8a/libjiagu_a64.so"), "elf")
	if withManifest {
		writeFile(t, filepath.Join(unzipped, "AndroidManifest.xml"), testManifest)
	}

	return s
}

func TestSession_NotAnalyzed(t *testing.T) {
	apk := filepath.Join(t.TempDir(), "app.apk")
	writeFile(t, apk, "x")
	s, err := New(testConfig(t), apk, newTestLogger())
	require.NoError(t, err)

	assert.False(t, s.Analyzed())

	_, err = s.Statistics()
	assert.ErrorIs(t, err, ErrNotAnalyzed)
	_, err = s.Find("L")
	assert.ErrorIs(t, err, ErrNotAnalyzed)
	_, err = s.Permissions()
	assert.ErrorIs(t, err, ErrNotAnalyzed)
	_, err = s.SignatureFiles()
	assert.ErrorIs(t, err, ErrNotAnalyzed)
	_, err = s.DetectPacker()
	assert.ErrorIs(t, err, ErrNotAnalyzed)
	_, err = s.Report(context.Background())
	assert.ErrorIs(t, err, ErrNotAnalyzed)
}

func TestSession_Rescan(t *testing.T) {
	s := newTestSession(t, true)
	require.NoError(t, s.Rescan())

	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.ClassCount)
	assert.Equal(t, 3, stats.PermissionCount)
	assert.True(t, stats.ManifestFound)

	perms, err := s.Permissions()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"android.permission.INTERNET",
		"android.permission.CAMERA",
		"com.example.app.permission.C2D_MESSAGE",
	}, perms)

	text, err := s.Manifest()
	require.NoError(t, err)
	assert.Equal(t, testManifest, text)

	sigs, err := s.SignatureFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(s.Layout().UnzippedPath, "META-INF", "CERT.RSA")}, sigs)
}

func TestSession_FindWithExclusions(t *testing.T) {
	s := newTestSession(t, true)
	require.NoError(t, s.Rescan())

	all, err := s.FindAll("L")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, s.AddExclusion("Lcom/stub/"))
	found, err := s.FindAll("Lcom/")
	require.NoError(t, err)
	slices.Sort(found)
	assert.Equal(t, []string{"Lcom/example/app/Main;", "Lcom/example/app/Util;"}, found)

	// 统计不受排除规则影响
	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.ClassCount)
	assert.Equal(t, 1, stats.ExclusionRules)

	s.AddDefaultExclusions()
	found, err = s.FindAll("Landroidx/")
	require.NoError(t, err)
	assert.Empty(t, found)

	s.ClearExclusions()
	assert.Empty(t, s.Exclusions())
	found, err = s.FindAll("Landroidx/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Landroidx/core/Foo;"}, found)
}

func TestSession_InvalidPatterns(t *testing.T) {
	s := newTestSession(t, true)
	require.NoError(t, s.Rescan())

	_, err := s.Find("a)(b")
	assert.ErrorIs(t, err, filter.ErrInvalidPattern)

	assert.ErrorIs(t, s.AddExclusion("[z-a]"), filter.ErrInvalidPattern)
	assert.Empty(t, s.Exclusions())
}

func TestSession_ManifestMissing(t *testing.T) {
	s := newTestSession(t, false)
	require.NoError(t, s.Rescan())

	_, err := s.Permissions()
	assert.ErrorIs(t, err, ErrManifestNotFound)
	_, err = s.Manifest()
	assert.ErrorIs(t, err, ErrManifestNotFound)

	// 类查询仍然可用
	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.False(t, stats.ManifestFound)
	assert.Equal(t, 0, stats.PermissionCount)
	assert.Equal(t, 4, stats.ClassCount)
}

func TestSession_RescanFailureKeepsState(t *testing.T) {
	s := newTestSession(t, true)
	require.NoError(t, s.Rescan())

	require.NoError(t, os.RemoveAll(s.Layout().CachePath))
	assert.Error(t, s.Rescan())

	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.ClassCount)
}

func TestSession_DetectPacker(t *testing.T) {
	s := newTestSession(t, true)
	require.NoError(t, s.Rescan())

	info, err := s.DetectPacker()
	require.NoError(t, err)
	assert.True(t, info.IsPacked)
	assert.Equal(t, "360加固", info.PackerName)
}

func TestSession_Signatures_KeytoolMissing(t *testing.T) {
	s := newTestSession(t, true)
	require.NoError(t, s.Rescan())

	results, err := s.Signatures(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestSession_AnalyzeWithoutBaksmali(t *testing.T) {
	s := newTestSession(t, true)
	err := s.Analyze(context.Background())
	assert.ErrorIs(t, err, disasm.ErrToolMissing)
	assert.False(t, s.Analyzed())
}

func TestSession_Report(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db, newTestLogger()))
	repo := repository.NewReportRepository(db)

	s := newTestSession(t, true, WithReports(repo), WithTaskID("task-1"))
	require.NoError(t, s.Rescan())
	require.NoError(t, s.SaveReport(context.Background()))

	report, err := repo.FindBySHA1(context.Background(), s.Layout().Hash)
	require.NoError(t, err)
	assert.Equal(t, "task-1", report.TaskID)
	assert.Equal(t, "app.apk", report.APKName)
	assert.Equal(t, 4, report.ClassCount)
	assert.Equal(t, 3, report.PermissionCount)
	assert.Equal(t, 1, report.CustomPermCount)
	assert.Equal(t, 1, report.SignatureCount)
	assert.True(t, report.ManifestFound)
	assert.True(t, report.IsPacked)
}

func TestSession_PrepareFresh(t *testing.T) {
	s := newTestSession(t, true)
	assert.True(t, s.HasCache())

	require.NoError(t, s.Prepare(true))
	require.NoError(t, s.Rescan())
	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ClassCount)
}
