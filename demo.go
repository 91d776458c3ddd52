package agentkit

import (
	"context"

	"github.com/agentkitdev/agentkit/ui"
)

// DemoApp is the reference AgentKit application: one task input, an
// attachment uploader, a run button, and the conversation panel. The
// daemon serves it when no user app is wired in.
func DemoApp(ctx context.Context) error {
	return ui.Page(ctx, "AgentKit Demo", "Minimal agent template", func(ctx context.Context) error {
		task, err := ui.TextInput(ctx, "Task", ui.WithPlaceholder("Ask a question or describe a task"))
		if err != nil {
			return err
		}
		attachments, err := ui.FileUploader(ctx, "Attachments", ui.WithAccept("text/plain", "application/pdf"))
		if err != nil {
			return err
		}
		pressed, err := ui.Button(ctx, "Run Agent")
		if err != nil {
			return err
		}
		if err := ui.Chat(ctx); err != nil {
			return err
		}

		if pressed && task.Value() != "" {
			if _, err := RunAgent(ctx, map[string]any{"task": task.Value()}, attachments.Paths()...); err != nil {
				return err
			}
		}
		return nil
	})
}
