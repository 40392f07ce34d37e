package main

import (
	"github.com/spf13/cobra"
)

// uiCmd is named for the CLI surface's completeness; the web UI gateway
// itself is an external collaborator outside this module's scope.
func uiCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "ui [token]",
		Short: "Launch the web UI gateway",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("The web UI gateway is not bundled with this endpoint.")
			cmd.Println("Run a separate gateway process and point it at this endpoint's token.")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port the gateway would listen on")

	return cmd
}
