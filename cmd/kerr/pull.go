package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shi-yan/kerr/internal/session/filetransfer"
	"github.com/shi-yan/kerr/internal/wire"
)

func pullCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "pull <token> <remote> <local>",
		Short: "Download a file or directory from a peer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, remote, local := args[0], args[1], args[2]

			ctx, cancel := notifyContext()
			defer cancel()

			ep, conn, sess, err := dialAndOpen(ctx, dataDir, tok, wire.SessionFileTransfer)
			if err != nil {
				return err
			}
			defer ep.Close()
			defer conn.Close()

			client := &filetransfer.Client{Session: sess}
			if err := client.DownloadLargeFile(remote, local); err != nil {
				return fmt.Errorf("download failed: %w", err)
			}

			fmt.Printf("Downloaded %s -> %s\n", remote, local)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for persistent identity state")

	return cmd
}
