package manifest

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `<manifest xmlns:android="http://schemas.android.com/apk/res/android" package="com.example.app">
    <uses-sdk android:minSdkVersion="21" android:targetSdkVersion="33"></uses-sdk>
    <uses-permission android:name="android.permission.INTERNET"></uses-permission>
    <uses-permission android:name="android.permission.INTERNET"></uses-permission>
    <uses-permission android:name="com.custom.PERM"></uses-permission>
    <permission android:name="com.example.app.C2D" android:protectionLevel="0x2"></permission>
    <application android:label="Example"></application>
</manifest>`

// TestExtractPermissions_PreservesOrderAndDuplicates 测试保持顺序和重复项
func TestExtractPermissions_PreservesOrderAndDuplicates(t *testing.T) {
	perms := ExtractPermissions(sampleManifest)
	assert.Equal(t, []string{
		"android.permission.INTERNET",
		"android.permission.INTERNET",
		"com.custom.PERM",
	}, perms)
}

func TestExtractPermissions_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"no permission lines", "<manifest>\n<application/>\n</manifest>", nil},
		{"unquoted attribute skipped", "<uses-permission android:name=INTERNET/>", nil},
		{"unterminated quote skipped", `<uses-permission android:name="android.permission.CAMERA`, nil},
		{"sdk23 variant", `<uses-permission-sdk-23 android:name="android.permission.BLUETOOTH"/>`, []string{"android.permission.BLUETOOTH"}},
		{"first quoted value wins", `<uses-permission android:name="a.b.C" android:maxSdkVersion="18"/>`, []string{"a.b.C"}},
		{"quote before tag ignored", `<x y="z"><uses-permission android:name="p.Q"/>`, []string{"p.Q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPermissions(tt.text))
		})
	}
}

// TestModel 测试 Model 访问器
func TestModel(t *testing.T) {
	m := NewModel(sampleManifest)

	assert.Equal(t, 3, m.PermissionCount())
	assert.Equal(t, sampleManifest, m.Serialized())

	perms := m.Permissions()
	perms[0] = "mutated"
	assert.Equal(t, "android.permission.INTERNET", m.Permissions()[0], "Permissions should return a copy")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindStandard, Classify("android.permission.CAMERA"))
	assert.Equal(t, KindCustom, Classify("com.custom.PERM"))
	assert.Equal(t, KindCustom, Classify("android.permissionX"))
	assert.True(t, IsStandard("android.permission.INTERNET"))
	assert.False(t, IsStandard(""))
}

// TestDecoder_TextManifestPassthrough 测试文本 XML 原样返回
func TestDecoder_TextManifestPassthrough(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	path := filepath.Join(t.TempDir(), "AndroidManifest.xml")
	require.NoError(t, os.WriteFile(path, []byte("\xef\xbb\xbf\n"+sampleManifest), 0644))

	text, err := NewDecoder(logger).Decode("unused.apk", path)
	require.NoError(t, err)
	assert.Len(t, ExtractPermissions(text), 3)
}

func TestDecoder_MissingManifest(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	_, err := NewDecoder(logger).Decode("unused.apk", filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}
