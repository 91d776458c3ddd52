package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentkitdev/agentkit"
	"github.com/agentkitdev/agentkit/internal/shared/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := agentkit.Serve(ctx, agentkit.DemoApp); err != nil {
		logger := logging.New("agentkitd")
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
