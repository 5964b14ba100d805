package dispatch

import (
	"context"
	"encoding/xml"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserd/pkg/tools"
)

type echoTool struct {
	name string
	fail error
	boom bool
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes its message" }
func (e *echoTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"message": map[string]interface{}{"type": "string"},
	}, []string{"message"})
}

func (e *echoTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	if e.boom {
		panic("kaboom")
	}
	if e.fail != nil {
		return "partial", nil, e.fail
	}
	var in struct {
		XMLName xml.Name `xml:"arguments"`
		Message string   `xml:"message"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &in); err != nil {
		return "", nil, err
	}
	return "echo: " + in.Message, map[string]interface{}{"length": len(in.Message)}, nil
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(nil, &echoTool{name: "echo"}, &echoTool{name: "echo"})
	assert.ErrorContains(t, err, "already registered")

	_, err = New(nil, &echoTool{name: ""})
	assert.Error(t, err)

	_, err = New(nil, nil)
	assert.Error(t, err)
}

func TestCall(t *testing.T) {
	d, err := New(nil, &echoTool{name: "echo"})
	require.NoError(t, err)

	res, err := d.Call(context.Background(), "echo", []byte("<arguments><message>hi & bye</message></arguments>"))
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, "echo", res.Tool)
	assert.Equal(t, "echo: hi & bye", res.Output)
	assert.Equal(t, 8, res.Metadata["length"])

	res, err = d.Call(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "echo: ", res.Output)
}

func TestCallUnknownTool(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)

	res, err := d.Call(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, "nope", res.Tool)
}

func TestCallReportsToolErrors(t *testing.T) {
	d, err := New(nil,
		&echoTool{name: "broken", fail: errors.New("selector is required")},
		&echoTool{name: "panicky", boom: true},
	)
	require.NoError(t, err)

	res, err := d.Call(context.Background(), "broken", nil)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, "selector is required", res.Error)
	assert.Empty(t, res.Output)

	res, err = d.Call(context.Background(), "panicky", nil)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "kaboom")
}

func TestCallXML(t *testing.T) {
	d, err := New(nil, &echoTool{name: "echo"})
	require.NoError(t, err)

	res, err := d.CallXML(context.Background(), `<tool>
<server_name>local</server_name>
<tool_name>echo</tool_name>
<arguments><message>from stdin</message></arguments>
</tool>`)
	require.NoError(t, err)
	assert.Equal(t, "echo: from stdin", res.Output)

	_, err = d.CallXML(context.Background(), "no tool call here")
	assert.Error(t, err)

	_, err = d.CallXML(context.Background(), "<tool><tool_name>missing</tool_name><arguments></arguments></tool>")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestList(t *testing.T) {
	d, err := New(nil, &echoTool{name: "zeta"}, &echoTool{name: "alpha"})
	require.NoError(t, err)

	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
	assert.Equal(t, "object", list[0].Schema["type"])
}
