package standard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/agentkitdev/agentkit/internal/cli/client"
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	finalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage agent runs",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsGetCmd())
	cmd.AddCommand(newRunsStartCmd())
	cmd.AddCommand(newRunsLogCmd())
	cmd.AddCommand(newRunsWatchCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			runs, err := api.ListRuns(ctx)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-38s %-10s %-25s %-25s\n", "ID", "STATUS", "STARTED", "FINISHED")
			for _, run := range runs {
				finished := "-"
				if run.FinishedAt != nil {
					finished = run.FinishedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-38s %-10s %-25s %-25s\n", run.ID, run.Status, run.StartedAt.Format(time.RFC3339), finished)
			}
			return nil
		},
	}
}

func newRunsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			run, err := api.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			return encodeAsJSON(cmd.OutOrStdout(), run)
		},
	}
}

func newRunsStartCmd() *cobra.Command {
	var (
		trigger string
		inputs  []string
		files   []string
		field   string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Submit the app form and start a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}

			parsed := make(map[string]string, len(inputs))
			for _, pair := range inputs {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid --input %q, expected key=value", pair)
				}
				parsed[key] = value
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			runID, err := api.StartRun(ctx, trigger, parsed, field, files)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), runID)

			if watch {
				return watchRun(cmd, api, runID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "run-agent", "Button id to press")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Form input as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "File to attach (repeatable)")
	cmd.Flags().StringVar(&field, "file-field", "attachments", "Form field for attached files")
	cmd.Flags().BoolVar(&watch, "watch", false, "Stream the run's events after starting")
	return cmd
}

func newRunsLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <id>",
		Short: "Export a run's event history as JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			raw, err := api.RunLog(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}

func newRunsWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream a run's events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			return watchRun(cmd, api, args[0])
		},
	}
}

func watchRun(cmd *cobra.Command, api *client.Client, runID string) error {
	out := cmd.OutOrStdout()
	return api.WatchRun(cmd.Context(), runID, func(event client.RunEvent) {
		payload := map[string]any{}
		_ = json.Unmarshal(event.Payload, &payload)

		switch event.Type {
		case "token":
			if text, ok := payload["text"].(string); ok {
				fmt.Fprint(out, text)
			}
		case "status":
			if message, ok := payload["message"].(string); ok {
				fmt.Fprintln(out, statusStyle.Render("• "+message))
			}
		case "tool_start":
			fmt.Fprintln(out, toolStyle.Render(fmt.Sprintf("→ %v %s", payload["tool"], compactJSON(payload["input"]))))
		case "tool_end":
			fmt.Fprintln(out, toolStyle.Render("← "+compactJSON(payload["output"])))
		case "final":
			fmt.Fprintln(out)
			if text, ok := payload["text"].(string); ok {
				fmt.Fprintln(out, finalStyle.Render(text))
			}
		case "error":
			fmt.Fprintln(out)
			if message, ok := payload["message"].(string); ok {
				fmt.Fprintln(out, errorStyle.Render("error: "+message))
			}
		}
	})
}

func compactJSON(value any) string {
	if value == nil {
		return ""
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(raw)
}
