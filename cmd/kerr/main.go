// Package main provides the CLI entry point for the Kerr remote-access
// endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shi-yan/kerr/internal/config"
	"github.com/shi-yan/kerr/internal/kerrors"
	"github.com/shi-yan/kerr/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// exitCodes follow the CLI contract: 0 success, 1 generic error, 2
// invalid arguments, 3 authentication/connection failure.
const (
	exitGeneric = 1
	exitUsage   = 2
	exitConnect = 3
)

// cliError carries the exit code a RunE failure should produce; a plain
// error from a subcommand defaults to exitGeneric.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func usageErr(format string, args ...any) error {
	return &cliError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func connectErr(err error) error {
	return &cliError{code: exitConnect, err: err}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "kerr",
		Short: "Kerr - P2P remote access toolkit",
		Long: `Kerr is a peer-to-peer remote access toolkit built on a QUIC
overlay. A single authenticated connection multiplexes an interactive
shell, file transfer, a filesystem browser, TCP port forwarding, and a
latency probe, each as an independent session.`,
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(pullCmd())
	rootCmd.AddCommand(browseCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(uiCmd())

	// Cobra's own flag-parsing and argument-count errors are invalid
	// arguments too, so they exit with exitUsage.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &cliError{code: exitUsage, err: err}
	})
	for _, c := range rootCmd.Commands() {
		if validate := c.Args; validate != nil {
			c.Args = func(cmd *cobra.Command, args []string) error {
				if err := validate(cmd, args); err != nil {
					return &cliError{code: exitUsage, err: err}
				}
				return nil
			}
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch kerrors.Of(err) {
	case kerrors.KindInvalidToken, kerrors.KindUnreachable, kerrors.KindTimeout, kerrors.KindBadHandshake:
		return exitConnect
	default:
		return exitGeneric
	}
}

// notifyContext returns a context cancelled on SIGINT/SIGTERM, mirroring
// the signal-driven graceful shutdown every subcommand uses.
func notifyContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Agent.LogLevel, cfg.Agent.LogFormat)
}
