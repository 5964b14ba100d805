package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserd/pkg/browser/driver/drivertest"
	"github.com/entrhq/browserd/pkg/config"
	"github.com/entrhq/browserd/pkg/logging"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Downloads.Dir = t.TempDir()
	a, err := wire(cfg, drivertest.New(), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.registry.CloseAll() })
	return a
}

func decodeLines(t *testing.T, out string) []stdioResponse {
	t.Helper()
	var resps []stdioResponse
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var r stdioResponse
		require.NoError(t, dec.Decode(&r))
		resps = append(resps, r)
	}
	return resps
}

func TestServeStdio(t *testing.T) {
	a := newTestApp(t)

	in := strings.NewReader(`thinking about it
<tool>
<server_name>local</server_name>
<tool_name>start_browser_session</tool_name>
<arguments><name>cli</name></arguments>
</tool>
<tool><tool_name>browser_navigate</tool_name><arguments><session>cli</session><url>https://app.test/?a=1&b=2</url></arguments></tool><tool><tool_name>list_browser_sessions</tool_name><arguments></arguments></tool>
<tool><tool_name>browser_click</tool_name><arguments></arguments></tool>
<tool><tool_name>teleport</tool_name><arguments></arguments></tool>
`)
	var out bytes.Buffer
	require.NoError(t, serveStdio(context.Background(), a.dispatcher, in, &out))

	resps := decodeLines(t, out.String())
	require.Len(t, resps, 5)

	assert.Equal(t, "start_browser_session", resps[0].Tool)
	assert.Contains(t, resps[0].Output, "Browser session created successfully")
	assert.Empty(t, resps[0].Error)

	assert.Contains(t, resps[1].Output, "Navigation successful")
	assert.Contains(t, resps[2].Output, "1. cli (chromium, headless)")

	assert.Equal(t, "session name is required", resps[3].Error)
	assert.Contains(t, resps[4].Error, "unknown tool")
}

func TestServeStdioStopsOnCancel(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var out bytes.Buffer
	assert.NoError(t, serveStdio(ctx, a.dispatcher, r, &out))
	assert.Empty(t, out.String())
}

func TestFlagOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	flags := &flagValues{
		browser:     "firefox",
		headless:    false,
		headlessSet: true,
		downloadDir: "/tmp/dl",
		skipInstall: true,
		addr:        ":9999",
	}
	flags.apply(cfg)

	assert.Equal(t, "firefox", cfg.Browser.Kind)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "/tmp/dl", cfg.Downloads.Dir)
	assert.True(t, cfg.Browser.SkipInstall)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	cfg = config.DefaultConfig()
	(&flagValues{headless: false}).apply(cfg)
	assert.True(t, cfg.Browser.Headless, "unset flags keep config values")
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "browserd v"+version+"\n", out.String())
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "browserd.yaml")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"init", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "created")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.DefaultConfig().Browser, cfg.Browser)

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"init", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "exists")
}

func TestWriteToolList(t *testing.T) {
	a := newTestApp(t)
	var out bytes.Buffer
	require.NoError(t, writeToolList(&out, a.dispatcher))

	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	assert.Len(t, list, 21)
}
