package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shi-yan/kerr/internal/session/browser"
	"github.com/shi-yan/kerr/internal/wire"
)

// browseCmd opens a filesystem browser session and prints a directory
// listing. A full interactive TUI is an external collaborator outside
// this module's scope; this gives the session protocol a usable CLI
// surface without it.
func browseCmd() *cobra.Command {
	var dataDir string
	var path string

	cmd := &cobra.Command{
		Use:   "browse <token>",
		Short: "List a directory on a peer's filesystem browser session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok := args[0]

			ctx, cancel := notifyContext()
			defer cancel()

			ep, conn, sess, err := dialAndOpen(ctx, dataDir, tok, wire.SessionFileBrowser)
			if err != nil {
				return err
			}
			defer ep.Close()
			defer conn.Close()

			client := &browser.Client{Session: sess}
			entries, err := client.ListDir(path)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			for _, e := range entries {
				kind := "file"
				if e.IsDir {
					kind = "dir"
				}
				fmt.Printf("%-4s %10d  %s\n", kind, e.Size, e.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for persistent identity state")
	cmd.Flags().StringVarP(&path, "path", "p", ".", "Directory to list")

	return cmd
}
