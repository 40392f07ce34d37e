package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shi-yan/kerr/internal/session/filetransfer"
	"github.com/shi-yan/kerr/internal/wire"
)

func sendCmd() *cobra.Command {
	var force bool
	var dataDir string
	var verify bool

	cmd := &cobra.Command{
		Use:   "send <token> <local> <remote>",
		Short: "Upload a local file or directory to a peer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, local, remote := args[0], args[1], args[2]

			ctx, cancel := notifyContext()
			defer cancel()

			ep, conn, sess, err := dialAndOpen(ctx, dataDir, tok, wire.SessionFileTransfer)
			if err != nil {
				return err
			}
			defer ep.Close()
			defer conn.Close()

			var checksum string
			if verify {
				checksum, err = filetransfer.ChecksumFile(local)
				if err != nil {
					return fmt.Errorf("failed to checksum local file: %w", err)
				}
			}

			client := &filetransfer.Client{Session: sess}
			if err := client.UploadFile(local, remote, force, checksum); err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			fmt.Printf("Uploaded %s -> %s\n", local, remote)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite the remote path if it already exists")
	cmd.Flags().BoolVar(&verify, "verify", true, "Verify the upload with a SHA-256 checksum")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for persistent identity state")

	return cmd
}
