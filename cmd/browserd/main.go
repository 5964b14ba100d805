// Command browserd runs browser sessions for automation clients and exposes
// session, log, rule and download operations as tools over HTTP or stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserd/pkg/config"
	"github.com/entrhq/browserd/pkg/server"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &flagValues{}

	root := &cobra.Command{
		Use:           "browserd",
		Short:         "Browser session daemon for automation agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			flags.headlessSet = cmd.Flags().Changed("headless")
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file path (YAML)")
	pf.StringVar(&flags.browser, "browser", "", "default browser kind: chromium, chrome, msedge, firefox, webkit or cdp")
	pf.BoolVar(&flags.headless, "headless", true, "launch browsers headless by default")
	pf.StringVar(&flags.downloadDir, "download-dir", "", "parent directory for session downloads")
	pf.StringVar(&flags.cdpEndpoint, "cdp-endpoint", "", "DevTools endpoint used by the cdp browser kind")
	pf.BoolVar(&flags.skipInstall, "skip-install", false, "assume Playwright and its browsers are installed")
	pf.StringVar(&flags.logDir, "log-dir", "", "directory for the rotating log file")
	pf.BoolVar(&flags.verbose, "verbose", false, "forward Playwright output to the log")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newStdioCmd(flags))
	root.AddCommand(newToolsCmd(flags))
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nShutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func newServeCmd(flags *flagValues) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser tools over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				flags.addr = addr
			}
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			srv := server.New(server.Options{
				Addr:           a.cfg.Server.Addr,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
				RequestTimeout: a.cfg.Server.RequestTimeout,
			}, a.dispatcher, a.registry, a.logger.With("http"))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			fmt.Fprintf(cmd.OutOrStdout(), "browserd listening on %s (log: %s)\n", a.cfg.Server.Addr, a.logger.LogPath())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8931)")
	return cmd
}

func newStdioCmd(flags *flagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Read <tool> calls from stdin and write JSON results to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			return serveStdio(ctx, a.dispatcher, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newToolsCmd(flags *flagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool names and schemas as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.skipInstall = true
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()
			return writeToolList(cmd.OutOrStdout(), a.dispatcher)
		},
	}
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config file (default ~/.browserd/config.yaml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".browserd", "config.yaml")
			}

			if _, err := os.Stat(path); err == nil && !force {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", path)
				return nil
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			data, err := yaml.Marshal(config.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to encode default config: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "browserd v%s\n", version)
		},
	}
}
