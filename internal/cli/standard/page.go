package standard

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func newPageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page",
		Short: "Fetch the app's rendered page description",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			page, err := api.RenderPage(ctx)
			if err != nil {
				return err
			}
			return encodeAsJSON(cmd.OutOrStdout(), page)
		},
	}
}
