package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shi-yan/kerr/internal/session/ping"
	"github.com/shi-yan/kerr/internal/wire"
)

func pingCmd() *cobra.Command {
	var dataDir string
	var echo bool

	cmd := &cobra.Command{
		Use:   "ping <token>",
		Short: "Sweep round-trip latency across a ladder of payload sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok := args[0]

			ctx, cancel := notifyContext()
			defer cancel()

			ep, conn, sess, err := dialAndOpen(ctx, dataDir, tok, wire.SessionPing)
			if err != nil {
				return err
			}
			defer ep.Close()
			defer conn.Close()

			client := &ping.Client{Session: sess}
			rtts, err := client.SweepSizeLadder(echo)
			if err != nil {
				return fmt.Errorf("ping sweep failed: %w", err)
			}

			for i, size := range ping.SizeLadder {
				fmt.Printf("%10s  %v\n", humanize.Bytes(uint64(size)), rtts[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for persistent identity state")
	cmd.Flags().BoolVar(&echo, "echo", false, "Echo the payload back instead of a zero-filled reply")

	return cmd
}
