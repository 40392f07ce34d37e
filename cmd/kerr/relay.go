package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shi-yan/kerr/internal/session/tcprelay"
	"github.com/shi-yan/kerr/internal/wire"
)

func relayCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "relay <token> <local_port> <remote_port>",
		Short: "Forward a local TCP port to a port on the peer's loopback",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok := args[0]
			localPort, err := strconv.ParseUint(args[1], 10, 16)
			if err != nil {
				return usageErr("invalid local_port %q: %v", args[1], err)
			}
			remotePort, err := strconv.ParseUint(args[2], 10, 16)
			if err != nil {
				return usageErr("invalid remote_port %q: %v", args[2], err)
			}

			ctx, cancel := notifyContext()
			defer cancel()

			ep, conn, sess, err := dialAndOpen(ctx, dataDir, tok, wire.SessionTcpRelay)
			if err != nil {
				return err
			}
			defer ep.Close()
			defer conn.Close()

			client := tcprelay.NewClient(sess)
			go client.Run(ctx)

			localAddr := fmt.Sprintf("127.0.0.1:%d", localPort)
			fmt.Printf("Forwarding %s -> peer:%d\n", localAddr, remotePort)
			return client.Forward(ctx, localAddr, uint16(remotePort))
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for persistent identity state")

	return cmd
}
