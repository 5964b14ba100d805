package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/driver/pwdriver"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/config"
	"github.com/entrhq/browserd/pkg/dispatch"
	"github.com/entrhq/browserd/pkg/logging"
	browsertools "github.com/entrhq/browserd/pkg/tools/browser"
)

// flagValues holds command-line overrides. Zero values leave the config
// file untouched, except headless which is applied when set explicitly.
type flagValues struct {
	configPath  string
	browser     string
	headless    bool
	headlessSet bool
	downloadDir string
	cdpEndpoint string
	skipInstall bool
	logDir      string
	verbose     bool
	addr        string
}

// apply overrides cfg with the flags that were given.
func (f *flagValues) apply(cfg *config.Config) {
	if f.browser != "" {
		cfg.Browser.Kind = f.browser
	}
	if f.headlessSet {
		cfg.Browser.Headless = f.headless
	}
	if f.downloadDir != "" {
		cfg.Downloads.Dir = f.downloadDir
	}
	if f.cdpEndpoint != "" {
		cfg.Browser.CDPEndpoint = f.cdpEndpoint
	}
	if f.skipInstall {
		cfg.Browser.SkipInstall = true
	}
	if f.logDir != "" {
		cfg.Logging.Dir = f.logDir
	}
	if f.verbose {
		cfg.Logging.Verbose = true
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
}

// app is the wired process: config, logger, driver, registry and tools.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
}

func newApp(flags *flagValues) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// a log directory that cannot be created falls back to stderr
	_ = logging.Configure(cfg.LoggingOptions())
	logger := logging.MustLogger("browserd")
	if cfg.Path != "" {
		logger.Infof("configuration loaded from %s", cfg.Path)
	}

	drv := pwdriver.New(pwdriver.Options{
		SkipInstall: cfg.Browser.SkipInstall,
		CDPEndpoint: cfg.Browser.CDPEndpoint,
		Verbose:     cfg.Logging.Verbose,
	}, logger.With("playwright"))

	return wire(cfg, drv, logger)
}

// wire builds the registry and tools on top of drv.
func wire(cfg *config.Config, drv driver.Driver, logger *logging.Logger) (*app, error) {
	registry := session.NewRegistry(drv, cfg.SessionOptions(), logger.With("sessions"))

	toolset := browsertools.NewToolRegistry(registry, browsertools.Options{
		Session: browsertools.SessionDefaults{
			Kind:     cfg.Browser.Kind,
			Headless: cfg.Browser.Headless,
		},
		DownloadTimeout: cfg.Downloads.Timeout,
	}).RegisterTools()

	d, err := dispatch.New(logger.With("dispatch"), toolset...)
	if err != nil {
		_ = registry.CloseAll()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, registry: registry, dispatcher: d}, nil
}

// close tears down every session and flushes the log.
func (a *app) close() {
	if err := a.registry.CloseAll(); err != nil {
		a.logger.Errorf("shutdown: %v", err)
	}
	_ = logging.Shutdown()
}

func writeToolList(w io.Writer, d *dispatch.Dispatcher) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d.List())
}
