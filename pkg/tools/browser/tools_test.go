package browser

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserd/pkg/browser/capture"
	"github.com/entrhq/browserd/pkg/browser/download"
	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/driver/drivertest"
	"github.com/entrhq/browserd/pkg/browser/intercept"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

type harness struct {
	reg   *session.Registry
	drv   *drivertest.Driver
	tools map[string]tools.Tool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	drv := drivertest.New()
	reg := session.NewRegistry(drv, session.Options{DownloadDir: t.TempDir()}, nil)
	t.Cleanup(func() { _ = reg.CloseAll() })

	h := &harness{reg: reg, drv: drv, tools: map[string]tools.Tool{}}
	for _, tool := range NewToolRegistry(reg, Options{Session: SessionDefaults{Headless: true}}).RegisterTools() {
		h.tools[tool.Name()] = tool
	}
	return h
}

func (h *harness) run(t *testing.T, name, args string) (string, map[string]interface{}) {
	t.Helper()
	out, meta, err := h.exec(name, args)
	require.NoError(t, err)
	return out, meta
}

func (h *harness) exec(name, args string) (string, map[string]interface{}, error) {
	tool, ok := h.tools[name]
	if !ok {
		panic("unknown tool " + name)
	}
	return tool.Execute(context.Background(), []byte("<arguments>"+args+"</arguments>"))
}

func (h *harness) start(t *testing.T, name string) *drivertest.Page {
	t.Helper()
	h.run(t, "start_browser_session", "<name>"+name+"</name>")
	s, ok := h.reg.GetSession(name)
	require.True(t, ok)
	return s.Page().(*drivertest.Page)
}

func TestRegisterTools(t *testing.T) {
	h := newHarness(t)
	assert.Len(t, h.tools, 21)
	for name, tool := range h.tools {
		assert.NotEmpty(t, tool.Description(), name)
		schema := tool.Schema()
		assert.Equal(t, "object", schema["type"], name)
	}
}

func TestSessionLifecycleTools(t *testing.T) {
	h := newHarness(t)

	out, meta := h.run(t, "start_browser_session", "<name>s1</name><browser>chrome</browser>")
	assert.Contains(t, out, "Browser session created successfully")
	assert.Contains(t, out, "- Browser: chrome")
	assert.Contains(t, out, "- Mode: headless")
	assert.Equal(t, true, meta["is_active"])
	assert.Equal(t, 1, meta["active_sessions"])

	h.run(t, "start_browser_session", "<name>s2</name><headless>false</headless>")
	assert.False(t, h.drv.LastBrowser().Headless)

	out, meta = h.run(t, "list_browser_sessions", "")
	assert.Contains(t, out, "Active Browser Sessions: 2")
	assert.Contains(t, out, "1. s1 (chrome, headless)")
	assert.Contains(t, out, "2. s2 (chromium, headed)")
	assert.Equal(t, 2, meta["count"])

	out, meta = h.run(t, "close_browser_session", "<name>s1</name>")
	assert.Contains(t, out, "Browser session closed")
	assert.Equal(t, true, meta["closed"])

	out, meta = h.run(t, "close_browser_session", "<name>s1</name>")
	assert.Contains(t, out, "was not open")
	assert.Equal(t, false, meta["closed"])

	_, _, err := h.exec("start_browser_session", "<name>x</name><browser>netscape</browser>")
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrUnsupportedBrowserKind)

	_, _, err = h.exec("start_browser_session", "")
	assert.Error(t, err)
}

func TestUnknownSessionIsAResult(t *testing.T) {
	h := newHarness(t)
	h.start(t, "live")

	for _, name := range []string{
		"browser_navigate", "browser_console_logs", "browser_network_logs",
		"browser_clear_logs", "browser_list_rules", "browser_new_page",
	} {
		out, meta, err := h.exec(name, "<session>ghost</session><url>https://x.test/</url>")
		require.NoError(t, err, name)
		assert.Contains(t, out, "Browser session 'ghost' not found", name)
		assert.Contains(t, out, "Active sessions: live", name)
		assert.Equal(t, false, meta["found"], name)
	}
}

func TestPageInteractionTools(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")
	page.SetContent("Login", "<html><body><form><input name=\"user\"></form></body></html>")
	page.SetElement("#user", true)
	page.SetElement("#go", true)
	page.SetElement("#plan", true)

	out, meta := h.run(t, "browser_navigate", "<session>s1</session><url>https://app.test/login?a=1&b=2</url>")
	assert.Contains(t, out, "Navigation successful")
	assert.Contains(t, out, "- Title: Login")
	assert.Equal(t, "https://app.test/login?a=1&b=2", meta["url"])

	_, _, err := h.exec("browser_navigate", "<session>s1</session><url>https://app.test/</url><wait_until>soon</wait_until>")
	assert.Error(t, err)

	out, _ = h.run(t, "browser_fill", "<session>s1</session><selector>#user</selector><value>ada</value>")
	assert.Contains(t, out, "Field filled successfully")
	assert.Equal(t, "ada", page.Filled("#user"))

	out, _ = h.run(t, "browser_click", "<session>s1</session><selector>#go</selector><click_count>2</click_count>")
	assert.Contains(t, out, "double click with left button")
	assert.Equal(t, []string{"#go"}, page.Clicks())

	out, meta = h.run(t, "browser_click", "<session>s1</session><selector>#missing</selector>")
	assert.Contains(t, out, "Element not found")
	assert.Equal(t, false, meta["found"])

	_, _, err = h.exec("browser_click", "<session>s1</session><selector>#go</selector><button>side</button>")
	assert.Error(t, err)

	out, meta = h.run(t, "browser_select_option",
		"<session>s1</session><selector>#plan</selector><values><item>pro</item><item>team</item></values>")
	assert.Contains(t, out, "Selected: pro, team")
	assert.Equal(t, []string{"pro", "team"}, meta["selected"])
	assert.Equal(t, "pro,team", page.Filled("#plan"))

	_, _, err = h.exec("browser_select_option", "<session>s1</session><selector>#plan</selector>")
	assert.Error(t, err)
}

func TestWaitTool(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")
	page.SetElement("#ready", true)

	out, meta := h.run(t, "browser_wait", "<session>s1</session><selector>#ready</selector>")
	assert.Contains(t, out, "Wait completed successfully")
	assert.Equal(t, true, meta["reached"])

	out, meta = h.run(t, "browser_wait", "<session>s1</session><selector>#spinner</selector><timeout>100</timeout>")
	assert.Contains(t, out, "Wait timed out")
	assert.Equal(t, false, meta["reached"])

	_, _, err := h.exec("browser_wait", "<session>s1</session><selector>#ready</selector><state>gone</state>")
	assert.Error(t, err)
	_, _, err = h.exec("browser_wait", "<session>s1</session><selector>#ready</selector><timeout>400000</timeout>")
	assert.Error(t, err)
}

func TestEvaluateTool(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")
	page.EvaluateFunc = func(expression string) (any, error) {
		return map[string]any{"expr": expression, "n": 2}, nil
	}

	out, _ := h.run(t, "browser_evaluate", "<session>s1</session><code>1+1</code>")
	assert.Contains(t, out, `"expr": "1+1"`)
	assert.Contains(t, out, `"n": 2`)

	page.EvaluateFunc = nil
	out, _ = h.run(t, "browser_evaluate", "<session>s1</session><code>void 0</code>")
	assert.Contains(t, out, "undefined")

	_, _, err := h.exec("browser_evaluate", "<session>s1</session>")
	assert.Error(t, err)
}

func TestExtractContentTool(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")
	page.SetContent("Shop", `<html><head><title>Shop</title><script>track()</script></head>
<body><h1>Cart</h1><p>Two items</p><div id="main"><a href="/pay">Pay now</a></div></body></html>`)

	out, meta := h.run(t, "browser_extract_content", "<session>s1</session>")
	assert.Contains(t, out, "# Shop")
	assert.Contains(t, out, "# Cart")
	assert.Contains(t, out, "[Pay now](/pay)")
	assert.NotContains(t, out, "track()")
	assert.Equal(t, "Shop", meta["title"])

	out, _ = h.run(t, "browser_extract_content", "<session>s1</session><format>html</format>")
	assert.Contains(t, out, `<a href="/pay">`)
	assert.Contains(t, out, `<div id="main">`)

	page.EvaluateFunc = func(expression string) (any, error) {
		if strings.Contains(expression, `"#main"`) {
			return `<div id="main"><a href="/pay">Pay now</a></div>`, nil
		}
		return nil, nil
	}
	out, _ = h.run(t, "browser_extract_content", "<session>s1</session><format>text</format><selector>#main</selector>")
	assert.Contains(t, out, "Source: selector: #main")
	assert.Contains(t, out, "Pay now")
	assert.NotContains(t, out, "Two items")

	out, meta = h.run(t, "browser_extract_content", "<session>s1</session><selector>#nope</selector>")
	assert.Contains(t, out, "Element not found")
	assert.Equal(t, false, meta["found"])

	_, _, err := h.exec("browser_extract_content", "<session>s1</session><format>pdf</format>")
	assert.Error(t, err)
	_, _, err = h.exec("browser_extract_content", "<session>s1</session><max_length>5</max_length>")
	assert.Error(t, err)
}

func TestSearchTool(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")
	page.SetContent("Docs", "<html><body><p>Go is fun. GO is fast.</p><p>go away</p></body></html>")

	out, meta := h.run(t, "browser_search", "<session>s1</session><pattern>go</pattern>")
	assert.Contains(t, out, "Results Found: 3")
	assert.Len(t, meta["matches"], 3)

	out, _ = h.run(t, "browser_search", "<session>s1</session><pattern>GO</pattern><case_sensitive>true</case_sensitive>")
	assert.Contains(t, out, "Results Found: 1")

	out, _ = h.run(t, "browser_search", "<session>s1</session><pattern>rust</pattern>")
	assert.Contains(t, out, "No matches found")
}

func TestMockResponseScenario(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")

	out, meta := h.run(t, "browser_mock_response",
		`<session>s1</session><pattern>*/api/users*</pattern><method>GET</method><status>200</status><body>{"ok":true}</body>`)
	assert.Contains(t, out, "Mock rule created")
	assert.Contains(t, out, "- Content-Type: application/json")
	rule := meta["rule"].(intercept.MockRule)

	page.SetSubresources("https://app.test/", "https://app.test/api/users?limit=10")
	h.run(t, "browser_navigate", "<session>s1</session><url>https://app.test/</url>")

	out, meta = h.run(t, "browser_network_logs", "<session>s1</session><filter>api</filter><direction>response</direction>")
	assert.Contains(t, out, "<- 200")
	assert.Contains(t, out, `body: {"ok":true}`)
	entries := meta["entries"].([]capture.NetworkEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, 200, entries[0].Status)

	out, meta = h.run(t, "browser_list_rules", "<session>s1</session>")
	assert.Contains(t, out, rule.ID)
	assert.Contains(t, out, "used 1 times")
	rules := meta["mock_rules"].([]intercept.MockRule)
	require.Len(t, rules, 1)
	assert.Equal(t, int64(1), rules[0].UsageCount)

	h.run(t, "close_browser_session", "<name>s1</name>")
	_, ok := h.reg.GetSession("s1")
	assert.False(t, ok)
}

func TestInvalidRuleIsAResult(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")

	out, meta := h.run(t, "browser_mock_response",
		`<session>s1</session><pattern>*</pattern><content_type>application/json</content_type><body>{oops</body>`)
	assert.Contains(t, out, "Rule rejected")
	assert.Contains(t, meta["error"], "invalid rule payload")

	out, _ = h.run(t, "browser_intercept_request", `<session>s1</session><pattern>*</pattern>`)
	assert.Contains(t, out, "Rule rejected")
	assert.Equal(t, 0, page.RouteCount())
}

func TestInterceptRequestTool(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")

	out, _ := h.run(t, "browser_intercept_request",
		`<session>s1</session><pattern>*/ads/*</pattern><action>BLOCK</action>`)
	assert.Contains(t, out, "- Action: block")
	out, meta := h.run(t, "browser_intercept_request",
		`<session>s1</session><pattern>*/api/*</pattern><action>log</action>`)
	assert.Contains(t, out, "Intercept rule created")
	logRule := meta["rule"].(intercept.InterceptRule)

	out, _ = h.run(t, "browser_intercept_request",
		`<session>s1</session><pattern>*/me</pattern><action>modify</action>
<status>201</status>
<json_set><entry name="role">"admin"</entry></json_set>`)
	assert.Contains(t, out, "- Status override: 201")
	assert.Contains(t, out, "- JSON fields: 1")

	blocked := page.Send(driver.Request{Method: "GET", URL: "https://cdn.test/ads/banner.js"})
	assert.True(t, blocked.Aborted())
	page.Send(driver.Request{Method: "POST", URL: "https://app.test/api/orders"})

	out, _ = h.run(t, "browser_console_logs", "<session>s1</session><level>info</level>")
	assert.Contains(t, out, "[Intercepted] POST https://app.test/api/orders")

	out, meta = h.run(t, "browser_deactivate_rule", "<session>s1</session><rule_id>"+logRule.ID+"</rule_id>")
	assert.Contains(t, out, "deactivated")
	assert.Equal(t, true, meta["deactivated"])

	out, _ = h.run(t, "browser_deactivate_rule", "<session>s1</session><rule_id>intercept_nope</rule_id>")
	assert.Contains(t, out, "not found")

	out, _ = h.run(t, "browser_list_rules", "<session>s1</session>")
	assert.Contains(t, out, "Intercept rules: 3")
	assert.Contains(t, out, "inactive")
}

func TestConsoleLogsTool(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")
	bc := page.Context()

	bc.EmitConsole(driver.ConsoleMessage{Type: "log", Text: "booted"})
	bc.EmitConsole(driver.ConsoleMessage{Type: "warning", Text: "slow request"})
	bc.EmitPageError(driver.PageError{Message: "TypeError: x is undefined", PageURL: "https://app.test/"})

	out, meta := h.run(t, "browser_console_logs", "<session>s1</session>")
	assert.Contains(t, out, "3 of 3 captured")
	assert.Equal(t, 3, meta["returned"])

	out, meta = h.run(t, "browser_console_logs", "<session>s1</session><level>error</level>")
	assert.Contains(t, out, "TypeError")
	assert.NotContains(t, out, "booted")
	assert.Equal(t, 1, meta["returned"])

	out, _ = h.run(t, "browser_console_logs", "<session>s1</session><level>warn</level>")
	assert.Contains(t, out, "slow request")

	out, _ = h.run(t, "browser_console_logs", "<session>s1</session><limit>1</limit>")
	assert.Contains(t, out, "1 of 3 captured")
	assert.Contains(t, out, "TypeError")

	out, _ = h.run(t, "browser_console_logs", "<session>s1</session><contains>BOOT</contains>")
	assert.Contains(t, out, "booted")

	_, _, err := h.exec("browser_console_logs", "<session>s1</session><limit>0</limit>")
	assert.Error(t, err)
}

func TestNetworkLogsFilters(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")
	page.Upstream = func(req driver.Request) (*driver.FetchedResponse, error) {
		if strings.HasSuffix(req.URL, "/login") {
			return &driver.FetchedResponse{Status: 401, Headers: map[string]string{"content-type": "application/json"}, Body: []byte(`{"error":"nope"}`)}, nil
		}
		return &driver.FetchedResponse{Status: 200, Headers: map[string]string{"content-type": "image/png"}, Body: []byte{0x89}}, nil
	}
	page.Send(driver.Request{Method: "GET", URL: "https://app.test/logo.png"})
	page.Send(driver.Request{Method: "POST", URL: "https://app.test/login"})

	out, meta := h.run(t, "browser_network_logs", "<session>s1</session><filter>failed</filter>")
	assert.Contains(t, out, "<- 401")
	assert.Equal(t, 1, meta["returned"])

	_, meta = h.run(t, "browser_network_logs", "<session>s1</session><filter>auth</filter>")
	assert.Equal(t, 2, meta["returned"])

	_, meta = h.run(t, "browser_network_logs", "<session>s1</session><direction>request</direction><url_contains>logo</url_contains>")
	assert.Equal(t, 1, meta["returned"])

	out, _ = h.run(t, "browser_network_logs", "<session>s1</session><include_bodies>false</include_bodies>")
	assert.NotContains(t, out, "body:")

	_, _, err := h.exec("browser_network_logs", "<session>s1</session><filter>slow</filter>")
	assert.Error(t, err)
	_, _, err = h.exec("browser_network_logs", "<session>s1</session><direction>sideways</direction>")
	assert.Error(t, err)

	out, meta = h.run(t, "browser_clear_logs", "<session>s1</session><target>network</target>")
	assert.Contains(t, out, "Cleared 0 console and 4 network entries")
	assert.Equal(t, 4, meta["network_cleared"])

	out, _ = h.run(t, "browser_network_logs", "<session>s1</session>")
	assert.Contains(t, out, "No matching network entries")
}

func TestDownloadTools(t *testing.T) {
	h := newHarness(t)
	page := h.start(t, "s1")
	page.AddDownload("#export", drivertest.DownloadPlan{
		Filename: "report-2024.csv",
		URL:      "https://app.test/export",
		Content:  []byte("a,b\n1,2\n"),
	})

	out, meta := h.run(t, "browser_download",
		"<session>s1</session><selector>#export</selector><expected_filename>report-*.csv</expected_filename>")
	assert.Contains(t, out, "Download completed")
	info := meta["download"].(download.Info)
	assert.Equal(t, download.StatusCompleted, info.Status)
	assert.Equal(t, int64(8), info.Size)
	_, err := os.Stat(info.Path)
	require.NoError(t, err)

	out, meta = h.run(t, "browser_download", "<session>s1</session><selector>#missing</selector>")
	assert.Contains(t, out, "Element not found")
	assert.Equal(t, false, meta["found"])

	page.SetElement("#dead", true)
	out, meta = h.run(t, "browser_download", "<session>s1</session><selector>#dead</selector><timeout>50</timeout>")
	assert.Contains(t, out, "Download failed")
	assert.Equal(t, download.StatusFailed, meta["download"].(download.Info).Status)

	out, meta = h.run(t, "browser_cleanup_downloads", "<session>s1</session>")
	assert.Contains(t, out, "2 cleaned, 0 failed")
	assert.Equal(t, 2, meta["cleaned"])
	_, err = os.Stat(info.Path)
	assert.True(t, os.IsNotExist(err))

	out, _ = h.run(t, "browser_cleanup_downloads", "<session>s1</session>")
	assert.Contains(t, out, "No downloads to clean up")
}

func TestNewPageTool(t *testing.T) {
	h := newHarness(t)
	h.start(t, "s1")

	out, meta := h.run(t, "browser_new_page", "<session>s1</session>")
	assert.Contains(t, out, "Page index: 1")
	assert.Equal(t, 1, meta["page"])

	s, _ := h.reg.GetSession("s1")
	second, err := s.PageAt(1)
	require.NoError(t, err)
	second.(*drivertest.Page).SetContent("Second", "<html><body><p>tab two</p></body></html>")

	out, _ = h.run(t, "browser_extract_content", "<session>s1</session><page>1</page><format>text</format>")
	assert.Contains(t, out, "tab two")

	_, _, err = h.exec("browser_extract_content", "<session>s1</session><page>5</page>")
	assert.Error(t, err)
}
