package driver

import (
	"fmt"
	"strings"
)

// Kind identifies which browser engine (and channel) to launch.
type Kind string

const (
	KindChromium Kind = "chromium"
	KindChrome   Kind = "chrome"
	KindMSEdge   Kind = "msedge"
	KindFirefox  Kind = "firefox"
	KindWebKit   Kind = "webkit"

	// KindCDP attaches to an already running Chromium through its
	// DevTools endpoint instead of launching a new process.
	KindCDP Kind = "cdp"
)

var kindAliases = map[string]Kind{
	"chromium": KindChromium,
	"chrome":   KindChrome,
	"msedge":   KindMSEdge,
	"edge":     KindMSEdge,
	"firefox":  KindFirefox,
	"webkit":   KindWebKit,
	"safari":   KindWebKit,
	"cdp":      KindCDP,
}

// ParseKind maps a caller supplied browser name onto a Kind.
// An empty name selects Chromium.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return KindChromium, nil
	}
	if k, ok := kindAliases[n]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBrowserKind, name)
}

func (k Kind) String() string {
	return string(k)
}
