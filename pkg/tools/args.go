package tools

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const argumentsTagName = "arguments"

// Entry is one named value of a Map argument.
type Entry struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Map is a name/value argument written as
//
//	<headers>
//	  <entry name="content-type">application/json</entry>
//	</headers>
type Map struct {
	Entries []Entry `xml:"entry"`
}

// ToMap returns the entries as a map. Later entries win. Nil when empty.
func (m *Map) ToMap() map[string]string {
	if m == nil || len(m.Entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		out[strings.TrimSpace(e.Name)] = strings.TrimSpace(e.Value)
	}
	return out
}

// List is a list argument written as <values><item>a</item><item>b</item></values>.
type List struct {
	Items []string `xml:"item"`
}

// Values returns the trimmed, non-empty items.
func (l *List) Values() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// ArgumentsXML renders decoded JSON arguments as an <arguments> block.
// Objects become Map entries and arrays become List items; nested values
// that are not strings are written as JSON text.
func ArgumentsXML(args map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<" + argumentsTagName + ">")
	for _, key := range sortedKeys(args) {
		if !validName(key) {
			return nil, fmt.Errorf("invalid argument name %q", key)
		}
		buf.WriteString("<" + key + ">")
		switch v := args[key].(type) {
		case map[string]interface{}:
			for _, name := range sortedKeys(v) {
				buf.WriteString(`<entry name="`)
				if err := escape(&buf, name); err != nil {
					return nil, err
				}
				buf.WriteString(`">`)
				if err := writeScalar(&buf, v[name]); err != nil {
					return nil, err
				}
				buf.WriteString("</entry>")
			}
		case []interface{}:
			for _, item := range v {
				buf.WriteString("<item>")
				if err := writeScalar(&buf, item); err != nil {
					return nil, err
				}
				buf.WriteString("</item>")
			}
		default:
			if err := writeScalar(&buf, v); err != nil {
				return nil, err
			}
		}
		buf.WriteString("</" + key + ">")
	}
	buf.WriteString("</" + argumentsTagName + ">")
	return buf.Bytes(), nil
}

func writeScalar(buf *bytes.Buffer, v interface{}) error {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		return escape(buf, v)
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case float64:
		buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		buf.WriteString(strconv.Itoa(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode argument: %w", err)
		}
		return escape(buf, string(data))
	}
	return nil
}

func escape(buf *bytes.Buffer, s string) error {
	return xml.EscapeText(buf, []byte(s))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validName reports whether s can be used as an XML element name.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
