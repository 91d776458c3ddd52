package ui

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectIDs(page *PageSpec) []string {
	ids := make([]string, 0, len(page.Components))
	for _, c := range page.Components {
		ids = append(ids, c.ID)
	}
	return ids
}

func demoApp(t *testing.T) App {
	t.Helper()
	return func(ctx context.Context) error {
		return Page(ctx, "Demo", "", func(ctx context.Context) error {
			if _, err := TextInput(ctx, "Task", WithPlaceholder("Describe a task")); err != nil {
				return err
			}
			if _, err := FileUploader(ctx, "Attachments"); err != nil {
				return err
			}
			if _, err := Button(ctx, "Run Agent"); err != nil {
				return err
			}
			return Chat(ctx)
		})
	}
}

func TestIDsAreDeterministicAcrossModes(t *testing.T) {
	app := demoApp(t)

	render := NewRuntime(ModeRender)
	require.NoError(t, app(NewContext(context.Background(), render)))

	execute := NewRuntime(ModeExecute)
	execute.Inputs["task"] = "hello"
	execute.Trigger = "run-agent"
	require.NoError(t, app(NewContext(context.Background(), execute)))

	require.NotNil(t, render.Rendered())
	require.NotNil(t, execute.Rendered())
	assert.Equal(t, collectIDs(render.Rendered()), collectIDs(execute.Rendered()))
	assert.Equal(t, []string{"task", "attachments", "run-agent", "conversation"}, collectIDs(render.Rendered()))
}

func TestDuplicateLabelsDisambiguate(t *testing.T) {
	rt := NewRuntime(ModeRender)
	ctx := NewContext(context.Background(), rt)

	err := Page(ctx, "Dupes", "", func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			if _, err := TextInput(ctx, "Query"); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"query", "query-2", "query-3"}, collectIDs(rt.Rendered()))
}

func TestSameLabelDifferentTypesDoNotCollideCounters(t *testing.T) {
	rt := NewRuntime(ModeRender)
	ctx := NewContext(context.Background(), rt)

	err := Page(ctx, "Mixed", "", func(ctx context.Context) error {
		if _, err := TextInput(ctx, "Upload"); err != nil {
			return err
		}
		if _, err := FileUploader(ctx, "Upload"); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	// Counters are scoped per (type, slug), but ids must stay unique
	// within one execution even across component types.
	ids := collectIDs(rt.Rendered())
	assert.Equal(t, []string{"upload", "upload-2"}, ids)
}

func TestComponentOutsidePageFailsFast(t *testing.T) {
	rt := NewRuntime(ModeRender)
	ctx := NewContext(context.Background(), rt)

	_, err := TextInput(ctx, "Orphan")
	assert.ErrorIs(t, err, ErrNoActivePage)

	_, err = Button(ctx, "Orphan")
	assert.ErrorIs(t, err, ErrNoActivePage)

	assert.ErrorIs(t, Chat(ctx), ErrNoActivePage)
}

func TestComponentWithoutRuntimeFailsFast(t *testing.T) {
	_, err := TextInput(context.Background(), "Orphan")
	assert.ErrorIs(t, err, ErrNoActivePage)
}

func TestNestedPagesRestorePrevious(t *testing.T) {
	rt := NewRuntime(ModeRender)
	ctx := NewContext(context.Background(), rt)

	err := Page(ctx, "Outer", "", func(ctx context.Context) error {
		if _, err := TextInput(ctx, "Outer Field"); err != nil {
			return err
		}
		if err := Page(ctx, "Inner", "", func(ctx context.Context) error {
			_, err := TextInput(ctx, "Inner Field")
			return err
		}); err != nil {
			return err
		}
		// Back on the outer page after the nested scope exits.
		_, err := TextInput(ctx, "Outer Again")
		return err
	})
	require.NoError(t, err)

	// rendered tracks the most recently opened page.
	assert.Equal(t, "Inner", rt.Rendered().Title)
}

func TestNestedPageRestoredOnError(t *testing.T) {
	rt := NewRuntime(ModeRender)
	ctx := NewContext(context.Background(), rt)

	boom := errors.New("boom")
	err := Page(ctx, "Outer", "", func(ctx context.Context) error {
		if err := Page(ctx, "Inner", "", func(ctx context.Context) error {
			return boom
		}); !errors.Is(err, boom) {
			return err
		}
		// The failed inner scope must not leave its page active.
		_, err := TextInput(ctx, "After Failure")
		return err
	})
	require.NoError(t, err)
}

func TestValuesResolveLazily(t *testing.T) {
	rt := NewRuntime(ModeExecute)
	ctx := NewContext(context.Background(), rt)

	var task TextValue
	var files FileValue
	err := Page(ctx, "Lazy", "", func(ctx context.Context) error {
		var err error
		if task, err = TextInput(ctx, "Task"); err != nil {
			return err
		}
		files, err = FileUploader(ctx, "Attachments")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "", task.Value())
	assert.Empty(t, files.Paths())

	// Values posted after registration are still observed at read time.
	rt.Inputs["task"] = "hello"
	rt.Files["attachments"] = []string{"/data/uploads/a.txt"}

	assert.Equal(t, "hello", task.Value())
	assert.Equal(t, []string{"/data/uploads/a.txt"}, files.Paths())
}

func TestButtonResolvesAgainstTrigger(t *testing.T) {
	rt := NewRuntime(ModeExecute)
	rt.Trigger = "run-agent"
	ctx := NewContext(context.Background(), rt)

	var pressed, other bool
	err := Page(ctx, "Buttons", "", func(ctx context.Context) error {
		var err error
		if pressed, err = Button(ctx, "Run Agent"); err != nil {
			return err
		}
		other, err = Button(ctx, "Reset")
		return err
	})
	require.NoError(t, err)

	assert.True(t, pressed)
	assert.False(t, other)
}

func TestExplicitIDOverride(t *testing.T) {
	rt := NewRuntime(ModeRender)
	ctx := NewContext(context.Background(), rt)

	err := Page(ctx, "Explicit", "", func(ctx context.Context) error {
		_, err := TextInput(ctx, "Some Very Long Label", WithID("q"))
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"q"}, collectIDs(rt.Rendered()))
}

func TestSlugFallsBackToTypeForSymbolLabels(t *testing.T) {
	rt := NewRuntime(ModeRender)
	ctx := NewContext(context.Background(), rt)

	err := Page(ctx, "Symbols", "", func(ctx context.Context) error {
		_, err := TextInput(ctx, "!!!")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"text"}, collectIDs(rt.Rendered()))
}

func TestEnsureAttachesRenderRuntime(t *testing.T) {
	ctx, rt := Ensure(context.Background())
	assert.Equal(t, ModeRender, rt.Mode)

	// Ensure is idempotent for a context that already carries a runtime.
	_, again := Ensure(ctx)
	assert.Same(t, rt, again)
}
