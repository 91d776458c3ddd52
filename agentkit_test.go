package agentkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentkitdev/agentkit/ui"
)

type stubStarter struct {
	inputs map[string]any
	files  []string
}

func (s *stubStarter) StartRun(ctx context.Context, inputs map[string]any, files []string) (string, error) {
	s.inputs = inputs
	s.files = files
	return "run-1", nil
}

func TestRunAgentRecordsRun(t *testing.T) {
	starter := &stubStarter{}
	rt := ui.NewRuntime(ui.ModeExecute)
	rt.Starter = starter
	ctx := ui.NewContext(context.Background(), rt)

	runID, err := RunAgent(ctx, map[string]any{"task": "hello"}, "/tmp/a.txt")
	require.NoError(t, err)
	require.Equal(t, "run-1", runID)
	require.Equal(t, []string{"run-1"}, rt.RunIDs())
	require.Equal(t, map[string]any{"task": "hello"}, starter.inputs)
	require.Equal(t, []string{"/tmp/a.txt"}, starter.files)
}

func TestRunAgentWithoutRunner(t *testing.T) {
	// Render-mode runtimes carry no starter.
	rt := ui.NewRuntime(ui.ModeRender)
	ctx := ui.NewContext(context.Background(), rt)

	_, err := RunAgent(ctx, map[string]any{"task": "hello"})
	require.ErrorIs(t, err, ErrNoRunner)
}

func TestRunAgentWithoutRuntime(t *testing.T) {
	_, err := RunAgent(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoRunner)
}

func TestDemoAppRenders(t *testing.T) {
	rt := ui.NewRuntime(ui.ModeRender)
	require.NoError(t, DemoApp(ui.NewContext(context.Background(), rt)))

	page := rt.Rendered()
	require.NotNil(t, page)
	require.Equal(t, "AgentKit Demo", page.Title)

	ids := make([]string, 0, len(page.Components))
	for _, component := range page.Components {
		ids = append(ids, component.ID)
	}
	require.Equal(t, []string{"task", "attachments", "run-agent", "conversation"}, ids)
}
