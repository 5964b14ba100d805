package tools

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCall(t *testing.T) {
	text := `calling now
<tool>
<tool_name>browser_navigate</tool_name>
<arguments>
  <session>s1</session>
  <url>https://example.com/?a=1&b=2</url>
</arguments>
</tool>
done`

	call, rest, err := ParseToolCall(text)
	require.NoError(t, err)
	assert.Equal(t, "browser_navigate", call.ToolName)
	assert.Equal(t, "local", call.ServerName)
	assert.Equal(t, "calling now\n\ndone", rest)

	var args struct {
		XMLName xml.Name `xml:"arguments"`
		Session string   `xml:"session"`
		URL     string   `xml:"url"`
	}
	require.NoError(t, UnmarshalXMLWithFallback(call.GetArgumentsXML(), &args))
	assert.Equal(t, "s1", args.Session)
	assert.Equal(t, "https://example.com/?a=1&b=2", args.URL)
}

func TestParseToolCallErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no tool", "plain text"},
		{"missing name", "<tool><arguments></arguments></tool>"},
		{"malformed", "<tool><tool_name>x</tool_name><arguments><a></arguments></tool>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rest, err := ParseToolCall(tt.text)
			assert.Error(t, err)
			assert.Equal(t, tt.text, rest)
		})
	}
}

func TestHasToolCall(t *testing.T) {
	assert.True(t, HasToolCall("x <tool><tool_name>a</tool_name></tool>"))
	assert.False(t, HasToolCall("<tools>"))
}

func TestEscapeUnescapedAmpersands(t *testing.T) {
	in := []byte(`<a>x &amp; y & z &#38; &lt;</a>`)
	assert.Equal(t, `<a>x &amp; y &amp; z &#38; &lt;</a>`, string(escapeUnescapedAmpersands(in)))
}

func TestMapAndList(t *testing.T) {
	var args struct {
		XMLName xml.Name `xml:"arguments"`
		Headers *Map     `xml:"headers"`
		Values  *List    `xml:"values"`
		Missing *Map     `xml:"missing"`
	}
	data := []byte(`<arguments>
<headers>
  <entry name="X-Trace"> abc </entry>
  <entry name="x-trace">def</entry>
  <entry name="Content-Type">application/json</entry>
</headers>
<values><item>red</item><item> </item><item> blue </item></values>
</arguments>`)
	require.NoError(t, UnmarshalXMLWithFallback(data, &args))

	assert.Equal(t, map[string]string{
		"X-Trace":      "abc",
		"x-trace":      "def",
		"Content-Type": "application/json",
	}, args.Headers.ToMap())
	assert.Equal(t, []string{"red", "blue"}, args.Values.Values())
	assert.Nil(t, args.Missing.ToMap())
}

func TestBaseToolSchema(t *testing.T) {
	s := BaseToolSchema(map[string]interface{}{"a": map[string]interface{}{"type": "string"}}, nil)
	assert.Equal(t, "object", s["type"])
	_, hasRequired := s["required"]
	assert.False(t, hasRequired)

	s = BaseToolSchema(map[string]interface{}{}, []string{"a"})
	assert.Equal(t, []string{"a"}, s["required"])
}

func TestArgumentsXML(t *testing.T) {
	data, err := ArgumentsXML(map[string]interface{}{
		"url":      "https://app.test/?a=1&b=<2>",
		"status":   float64(201),
		"headless": false,
		"headers":  map[string]interface{}{"x-trace": "abc"},
		"json_set": map[string]interface{}{"user.role": "\"admin\"", "user.level": float64(3)},
		"values":   []interface{}{"pro", "team"},
		"body":     nil,
	})
	require.NoError(t, err)

	var args struct {
		XMLName  xml.Name `xml:"arguments"`
		URL      string   `xml:"url"`
		Status   int      `xml:"status"`
		Headless *bool    `xml:"headless"`
		Headers  *Map     `xml:"headers"`
		JSONSet  *Map     `xml:"json_set"`
		Values   *List    `xml:"values"`
		Body     *string  `xml:"body"`
	}
	require.NoError(t, xml.Unmarshal(data, &args))

	assert.Equal(t, "https://app.test/?a=1&b=<2>", args.URL)
	assert.Equal(t, 201, args.Status)
	require.NotNil(t, args.Headless)
	assert.False(t, *args.Headless)
	assert.Equal(t, map[string]string{"x-trace": "abc"}, args.Headers.ToMap())
	assert.Equal(t, map[string]string{"user.role": `"admin"`, "user.level": "3"}, args.JSONSet.ToMap())
	assert.Equal(t, []string{"pro", "team"}, args.Values.Values())
	require.NotNil(t, args.Body)
	assert.Empty(t, *args.Body)
}

func TestArgumentsXMLRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "1st", "a b", "<x>"} {
		_, err := ArgumentsXML(map[string]interface{}{name: "v"})
		assert.Error(t, err, name)
	}

	data, err := ArgumentsXML(nil)
	require.NoError(t, err)
	assert.Equal(t, "<arguments></arguments>", string(data))
}
