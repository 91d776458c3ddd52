// Package runner schedules background agent work and translates backend
// callbacks into durable run events.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/agentkitdev/agentkit/internal/server/backend"
	"github.com/agentkitdev/agentkit/internal/server/db"
	"github.com/agentkitdev/agentkit/internal/server/runstore"
	"github.com/agentkitdev/agentkit/ui"
)

// Runner creates run records and executes the backend for each of them in a
// background goroutine. Once started, a run always reaches a terminal
// status; failures inside the goroutine become error events, never panics
// that escape or errors that vanish.
type Runner struct {
	store   *runstore.Store
	backend backend.Backend
	logger  *slog.Logger

	wg sync.WaitGroup
}

var _ ui.RunStarter = (*Runner)(nil)

// New builds a runner over the given store and backend.
func New(store *runstore.Store, be backend.Backend, logger *slog.Logger) *Runner {
	return &Runner{store: store, backend: be, logger: logger}
}

// StartRun persists a pending run and schedules the backend invocation. It
// returns as soon as the run record exists; the caller never waits for the
// backend. The background work is detached from the caller's context on
// purpose: a triggering request finishing does not cancel its run.
func (r *Runner) StartRun(ctx context.Context, inputs map[string]any, files []string) (string, error) {
	runID, err := r.store.CreateRun(ctx, inputs)
	if err != nil {
		return "", fmt.Errorf("runner: create run: %w", err)
	}

	r.wg.Add(1)
	go r.execute(context.WithoutCancel(ctx), runID, inputs, files)
	return runID, nil
}

// Wait blocks until all scheduled runs have reached a terminal status.
// Used by tests and the offline smoke path.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, runID string, inputs map[string]any, files []string) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(ctx, runID, fmt.Sprintf("agent panicked: %v", rec))
		}
	}()

	r.appendEvent(ctx, runID, db.EventTypeStatus, map[string]any{"message": "Agent started."})

	sink := &eventSink{runner: r, ctx: ctx, runID: runID}
	finalText, err := r.backend.Invoke(ctx, buildPrompt(inputs, files), sink)
	if err != nil {
		r.fail(ctx, runID, err.Error())
		return
	}

	r.appendEvent(ctx, runID, db.EventTypeFinal, map[string]any{
		"text":      finalText,
		"artifacts": files,
	})
	if err := r.store.FinishRun(ctx, runID, db.RunStatusSucceeded); err != nil {
		r.logger.Error("finish run", "run_id", runID, "error", err)
	}
}

// fail is the single place run failures are recorded.
func (r *Runner) fail(ctx context.Context, runID, message string) {
	r.appendEvent(ctx, runID, db.EventTypeError, map[string]any{"message": message})
	if err := r.store.FinishRun(ctx, runID, db.RunStatusFailed); err != nil {
		r.logger.Error("finish failed run", "run_id", runID, "error", err)
	}
}

func (r *Runner) appendEvent(ctx context.Context, runID string, typ db.EventType, payload map[string]any) {
	if err := r.store.AppendEvent(ctx, runID, typ, payload); err != nil {
		r.logger.Error("append event", "run_id", runID, "type", string(typ), "error", err)
	}
}

// eventSink adapts backend callbacks onto the run's event log.
type eventSink struct {
	runner *Runner
	ctx    context.Context
	runID  string
}

var _ backend.Sink = (*eventSink)(nil)

func (s *eventSink) Token(text string) {
	s.runner.appendEvent(s.ctx, s.runID, db.EventTypeToken, map[string]any{"text": text})
}

func (s *eventSink) ToolStart(tool, input string) {
	s.runner.appendEvent(s.ctx, s.runID, db.EventTypeToolStart, map[string]any{"tool": tool, "input": input})
}

func (s *eventSink) ToolEnd(output string) {
	s.runner.appendEvent(s.ctx, s.runID, db.EventTypeToolEnd, map[string]any{"output": output})
}

func buildPrompt(inputs map[string]any, files []string) string {
	encoded, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		encoded = []byte("{}")
	}

	parts := []string{"Task:", string(encoded)}
	if len(files) > 0 {
		parts = append(parts, "Files provided:")
		parts = append(parts, files...)
	}
	return strings.Join(parts, "\n")
}
