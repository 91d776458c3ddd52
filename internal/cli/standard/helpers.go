package standard

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentkitdev/agentkit/internal/cli/client"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func encodeAsJSON(out io.Writer, payload any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func clientFromCmd(cmd *cobra.Command) (*client.Client, error) {
	base, err := cmd.Root().PersistentFlags().GetString("api")
	if err != nil {
		base = envOrDefault("AGENTKIT_API_BASE", "http://127.0.0.1:8080")
	}
	return client.New(base)
}
