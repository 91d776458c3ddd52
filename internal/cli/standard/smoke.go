package standard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentkitdev/agentkit"
	"github.com/agentkitdev/agentkit/internal/server/backend"
	"github.com/agentkitdev/agentkit/internal/server/db"
	"github.com/agentkitdev/agentkit/internal/server/db/sqlite"
	"github.com/agentkitdev/agentkit/internal/server/eventbus/memory"
	"github.com/agentkitdev/agentkit/internal/server/runner"
	"github.com/agentkitdev/agentkit/internal/server/runstore"
	"github.com/agentkitdev/agentkit/ui"
)

// newSmokeCmd drives the demo app end to end against a throwaway database
// and the offline backend. Useful as a post-install sanity check; no server
// or API key required.
func newSmokeCmd() *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the demo app end to end with the offline backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			dir, err := os.MkdirTemp("", "agentkit-smoke-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)

			dbStore, err := sqlite.Open(ctx, filepath.Join(dir, "smoke.db"))
			if err != nil {
				return err
			}
			defer dbStore.Close(context.Background())

			store := runstore.New(dbStore, memory.New(), logger)
			exec := runner.New(store, backend.NewOffline(), logger)

			rt := ui.NewRuntime(ui.ModeExecute)
			rt.Starter = exec
			rt.Trigger = "run-agent"
			rt.Inputs["task"] = task

			if err := agentkit.DemoApp(ui.NewContext(ctx, rt)); err != nil {
				return fmt.Errorf("execute demo app: %w", err)
			}
			runIDs := rt.RunIDs()
			if len(runIDs) == 0 {
				return fmt.Errorf("demo app did not start a run")
			}
			runID := runIDs[0]
			exec.Wait()

			run, err := store.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			events, err := store.Events(ctx, runID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s finished with status %s (%d events)\n", runID, run.Status, len(events))
			for _, event := range events {
				fmt.Fprintf(out, "  %3d %-10s %s\n", event.Seq, event.Type, string(event.Payload))
			}
			if run.Status != db.RunStatusSucceeded {
				return fmt.Errorf("smoke run finished with status %s", run.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&task, "task", "Say hello.", "Task text to submit")
	return cmd
}
