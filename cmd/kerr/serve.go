package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shi-yan/kerr/internal/config"
	"github.com/shi-yan/kerr/internal/logging"
	"github.com/shi-yan/kerr/internal/metrics"
	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/recovery"
	"github.com/shi-yan/kerr/internal/session/browser"
	"github.com/shi-yan/kerr/internal/session/filetransfer"
	"github.com/shi-yan/kerr/internal/session/ping"
	"github.com/shi-yan/kerr/internal/session/shell"
	"github.com/shi-yan/kerr/internal/session/tcprelay"
	"github.com/shi-yan/kerr/internal/transport"
	"github.com/shi-yan/kerr/internal/wire"
)

func serveCmd() *cobra.Command {
	var configPath string
	var listenAddr string
	var dataDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an endpoint and print its connection token",
		Long:  "Start a Kerr endpoint, print the token peers use to connect, and accept sessions until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Agent.ListenAddr = listenAddr
			}
			if dataDir != "" {
				cfg.Agent.DataDir = dataDir
			}

			logger := newLogger(cfg)
			m := metrics.Default()

			ep, err := transport.Start(transport.Config{
				ListenAddr: cfg.Agent.ListenAddr,
				DataDir:    cfg.Agent.DataDir,
				RelayURL:   cfg.Agent.RelayURL,
			})
			if err != nil {
				return fmt.Errorf("failed to start endpoint: %w", err)
			}
			defer ep.Close()

			tok, err := ep.Token()
			if err != nil {
				return fmt.Errorf("failed to encode token: %w", err)
			}

			fmt.Printf("Endpoint ID: %s\n", ep.NodeID())
			fmt.Printf("Listening on: %s\n", ep.Addr())
			fmt.Printf("Token: %s\n", tok)
			fmt.Printf("\nConnect from another endpoint with:\n  kerr connect %s\n", tok)

			ctx, cancel := notifyContext()
			defer cancel()

			handlers := buildHandlers(cfg)

			go func() {
				defer recovery.RecoverWithLog(logger, "serve.acceptLoop")
				for {
					conn, err := ep.Accept(ctx)
					if err != nil {
						return
					}
					logger.Info("peer connected", logging.KeyRemoteAddr, conn.RemoteAddr().String(), logging.KeyPeerID, conn.PeerID().String())
					m.RecordPeerConnect()
					go serveConnection(ctx, conn, handlers, logger, m)
				}
			}()

			<-ctx.Done()
			fmt.Println("\nShutting down...")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Override the configured listen address")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for persistent identity state")

	return cmd
}

func buildHandlers(cfg *config.Config) map[wire.SessionKind]mux.Handler {
	handlers := map[wire.SessionKind]mux.Handler{}

	if cfg.Sessions.Shell.Enabled {
		handlers[wire.SessionShell] = shell.New()
	}
	if cfg.Sessions.FileTransfer.Enabled {
		handlers[wire.SessionFileTransfer] = &filetransfer.Server{
			ChunkSize:            cfg.Sessions.FileTransfer.ChunkSize,
			RateLimitBytesPerSec: cfg.Sessions.FileTransfer.RateLimitBytesPerSec,
			VerifyChecksum:       cfg.Sessions.FileTransfer.VerifyChecksum,
		}
	}
	if cfg.Sessions.FileBrowser.Enabled {
		handlers[wire.SessionFileBrowser] = &browser.Server{
			Root: cfg.Sessions.FileBrowser.Root,
		}
	}
	if cfg.Sessions.TcpRelay.Enabled {
		handlers[wire.SessionTcpRelay] = &tcprelay.Server{
			DialTimeout: cfg.Sessions.TcpRelay.DialTimeout,
		}
	}
	if cfg.Sessions.Ping.Enabled {
		handlers[wire.SessionPing] = &ping.Server{}
	}
	return handlers
}

func serveConnection(ctx context.Context, conn *transport.Connection, handlers map[wire.SessionKind]mux.Handler, logger *slog.Logger, m *metrics.Metrics) {
	defer recovery.RecoverWithLog(logger, "serve.connection")
	defer conn.Close()

	mx := mux.New(conn, handlers, logger, m)
	if err := mx.Serve(ctx); err != nil {
		logger.Warn("connection ended", "error", err)
	}
	m.RecordPeerDisconnect("closed")
}
