package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir points the shared writer at a temporary directory and resets
// global state afterwards.
func setupTestDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, Configure(Options{Dir: dir, MaxSizeMB: 1}))

	t.Cleanup(func() {
		_ = Shutdown()
		stateMu.Lock()
		options = Options{}
		initErr = nil
		logPath = ""
		stateMu.Unlock()
	})
	return dir
}

func TestNewLogger(t *testing.T) {
	dir := setupTestDir(t)

	logger, err := NewLogger("test-component")
	require.NoError(t, err)

	assert.Equal(t, "test-component", logger.component)
	assert.NotEmpty(t, logger.ProcessID())
	assert.Equal(t, dir, filepath.Dir(logger.LogPath()))
	assert.True(t, strings.HasSuffix(logger.LogPath(), "-browserd.log"))
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("registry")
	require.NoError(t, err)

	logger.Debugf("debug %d", 1)
	logger.Infof("info %s", "two")
	logger.Warnf("warn")
	logger.Errorf("error %v", true)
	require.NoError(t, Shutdown())

	data, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[0], "[registry] [DEBUG] debug 1")
	assert.Contains(t, lines[1], "[registry] [INFO] info two")
	assert.Contains(t, lines[2], "[registry] [WARN] warn")
	assert.Contains(t, lines[3], "[registry] [ERROR] error true")
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\]`, lines[0])
}

func TestComponentsShareOneFile(t *testing.T) {
	setupTestDir(t)

	a, err := NewLogger("a")
	require.NoError(t, err)
	b := a.With("b")

	a.Infof("from a")
	b.Infof("from b")
	require.NoError(t, Shutdown())

	assert.Equal(t, a.LogPath(), b.LogPath())
	data, err := os.ReadFile(a.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[a] [INFO] from a")
	assert.Contains(t, string(data), "[a.b] [INFO] from b")
}

func TestFallbackLogger(t *testing.T) {
	setupTestDir(t)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	err := Configure(Options{Dir: filepath.Join(blocker, "logs")})
	require.Error(t, err)

	logger, err := NewLogger("fallback")
	assert.Error(t, err)
	require.NotNil(t, logger)
	assert.Empty(t, logger.LogPath())
	assert.Equal(t, os.Stderr, logger.Writer())
}

func TestConcurrentLogging(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("concurrent")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Infof("worker %d message %d", n, j)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, Shutdown())

	data, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 200)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Infof("discarded")
	assert.Empty(t, l.LogPath())
}
