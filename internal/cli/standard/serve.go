package standard

import (
	"github.com/spf13/cobra"

	"github.com/agentkitdev/agentkit"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in demo app",
		Long:  "Starts agentkitd with the built-in demo app. Configuration comes from AGENTKIT_* environment variables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return agentkit.Serve(cmd.Context(), agentkit.DemoApp)
		},
	}
}
