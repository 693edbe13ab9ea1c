package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fastOptions() Options {
	opts := DefaultOptions("*.apk")
	opts.Debounce = 20 * time.Millisecond
	opts.SettleDelay = 10 * time.Millisecond
	return opts
}

func TestMatch(t *testing.T) {
	fw, err := NewFileWatcher(t.TempDir(), fastOptions(), nil, newTestLogger())
	require.NoError(t, err)

	assert.True(t, fw.Match("app.apk"))
	assert.True(t, fw.Match("APP.APK"))
	assert.False(t, fw.Match("app.apk.part"))
	assert.False(t, fw.Match("notes.txt"))

	opts := fastOptions()
	opts.Pattern = "release-*.apk"
	fw, err = NewFileWatcher(t.TempDir(), opts, nil, newTestLogger())
	require.NoError(t, err)
	assert.True(t, fw.Match("release-1.apk"))
	assert.False(t, fw.Match("debug-1.apk"))
}

func TestNewFileWatcher_InvalidPattern(t *testing.T) {
	opts := fastOptions()
	opts.Pattern = "[apk"
	_, err := NewFileWatcher(t.TempDir(), opts, nil, newTestLogger())
	assert.Error(t, err)
}

func TestNewFileWatcher_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	fw, err := NewFileWatcher(dir, fastOptions(), nil, newTestLogger())
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, dir, fw.WatchDir())
}

func TestRun_ProcessesNewAndExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.apk")
	require.NoError(t, os.WriteFile(existing, []byte("PK old"), 0644))

	var mu sync.Mutex
	handled := map[string]int{}
	done := make(chan struct{}, 4)
	handler := func(ctx context.Context, path string) error {
		mu.Lock()
		handled[filepath.Base(path)]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	opts := fastOptions()
	opts.ScanExisting = true
	fw, err := NewFileWatcher(dir, opts, handler, newTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- fw.Run(ctx) }()

	waitDone(t, done)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.apk"), []byte("PK new"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))
	waitDone(t, done)

	cancel()
	require.NoError(t, <-runErr)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, handled["old.apk"])
	assert.Equal(t, 1, handled["new.apk"])
	assert.NotContains(t, handled, "ignored.txt")
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}
}
