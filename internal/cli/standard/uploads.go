package standard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newUploadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Inspect stored uploads",
	}
	cmd.AddCommand(newUploadsListCmd())
	return cmd
}

func newUploadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			uploads, err := api.ListUploads(ctx)
			if err != nil {
				return err
			}
			if len(uploads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No uploads found")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-38s %-30s %-24s %-10s\n", "ID", "NAME", "MIME", "SIZE")
			for _, upload := range uploads {
				fmt.Fprintf(cmd.OutOrStdout(), "%-38s %-30s %-24s %-10d\n", upload.ID, upload.OriginalName, upload.MIME, upload.Size)
			}
			return nil
		},
	}
}
