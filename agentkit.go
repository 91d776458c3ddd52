// Package agentkit is a thin framework for single-page agent applications:
// a declarative page DSL, a server that re-executes the page per request,
// and a durable run/event store streamed live to the browser.
package agentkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentkitdev/agentkit/internal/server/app"
	"github.com/agentkitdev/agentkit/internal/server/backend"
	"github.com/agentkitdev/agentkit/internal/server/config"
	"github.com/agentkitdev/agentkit/internal/server/db/sqlite"
	"github.com/agentkitdev/agentkit/internal/server/eventbus/memory"
	"github.com/agentkitdev/agentkit/internal/server/httpapi"
	"github.com/agentkitdev/agentkit/internal/server/runner"
	"github.com/agentkitdev/agentkit/internal/server/runstore"
	"github.com/agentkitdev/agentkit/internal/shared/logging"
	"github.com/agentkitdev/agentkit/ui"
)

// App is a declarative page description executed once per request.
type App = ui.App

// ErrNoRunner is returned by RunAgent when the current execution has no run
// executor attached (an app executed standalone, outside the server).
var ErrNoRunner = errors.New("agentkit: no runner attached to this execution")

// RunAgent schedules background agent work for the posted inputs and
// records the new run id in the current execution so the server can report
// it. It returns once the run record exists; the agent proceeds in the
// background.
func RunAgent(ctx context.Context, inputs map[string]any, files ...string) (string, error) {
	rt := ui.FromContext(ctx)
	if rt == nil || rt.Starter == nil {
		return "", ErrNoRunner
	}

	runID, err := rt.Starter.StartRun(ctx, inputs, files)
	if err != nil {
		return "", err
	}
	rt.RecordRun(runID)
	return runID, nil
}

// Serve runs the AgentKit server for app until ctx is cancelled.
// Configuration comes from the environment and agent.yaml; without an
// OPENAI_API_KEY the server still works, answering runs with the offline
// stub.
func Serve(ctx context.Context, appFn App) error {
	logger := logging.New("agentkitd")

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	agentCfg, err := config.LoadAgentConfig(cfg.AgentConfigPath)
	if err != nil {
		logger.Warn("agent config unusable, using defaults", "path", cfg.AgentConfigPath, "error", err)
	}

	dbStore, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	events := memory.New()
	store := runstore.New(dbStore, events, logger)

	var be backend.Backend
	if cfg.OpenAIAPIKey != "" {
		be = backend.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, agentCfg.Model.Name, agentCfg.Model.Temperature)
	} else {
		logger.Warn("no OPENAI_API_KEY configured, runs answer with the offline stub")
		be = backend.NewOffline()
	}

	exec := runner.New(store, be, logger)
	handler := httpapi.New(logger, appFn, store, exec, cfg.UploadDir())

	daemon, err := app.New(cfg, logger, dbStore, handler)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	return daemon.Run(ctx)
}
