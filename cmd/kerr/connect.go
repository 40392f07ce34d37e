package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shi-yan/kerr/internal/session/shell"
	"github.com/shi-yan/kerr/internal/wire"
)

func connectCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "connect <token>",
		Short: "Open an interactive shell session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok := args[0]

			ctx, cancel := notifyContext()
			defer cancel()

			ep, conn, sess, err := dialAndOpen(ctx, dataDir, tok, wire.SessionShell)
			if err != nil {
				return err
			}
			defer ep.Close()
			defer conn.Close()

			fd := int(os.Stdin.Fd())
			var resizes chan shell.Size
			if term.IsTerminal(fd) {
				oldState, err := term.MakeRaw(fd)
				if err != nil {
					return fmt.Errorf("failed to enter raw mode: %w", err)
				}
				defer term.Restore(fd, oldState)

				resizes = make(chan shell.Size, 1)
				sendCurrentSize(fd, resizes)
				watchResize(fd, resizes)
			}

			client := &shell.Client{Session: sess, Stdin: os.Stdin, Stdout: os.Stdout, Resizes: resizes}
			return client.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for persistent identity state")

	return cmd
}

func sendCurrentSize(fd int, resizes chan shell.Size) {
	if w, h, err := term.GetSize(fd); err == nil {
		resizes <- shell.Size{Cols: uint16(w), Rows: uint16(h)}
	}
}
