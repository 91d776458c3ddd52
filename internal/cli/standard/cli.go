package standard

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the Cobra-based CLI entry point.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentkit",
		Short: "AgentKit command-line interface",
		Long:  "AgentKit CLI provides access to a running agentkitd server: runs, event feeds, and uploads.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("api", "a", envOrDefault("AGENTKIT_API_BASE", "http://127.0.0.1:8080"), "agentkitd base URL")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPageCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newUploadsCmd())
	cmd.AddCommand(newSmokeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the AgentKit client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "AgentKit CLI (prototype)\n")
		},
	}
}
