package main

import (
	"context"
	"os/signal"
	"syscall"

	"qfree/queue-service/cmd/queue-service/command"
	"qfree/queue-service/internal/config"
	"qfree/queue-service/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if err := command.Root(ctx, cfg, logger).Execute(); err != nil {
		logger.WithError(err).Fatal("command failed")
	}
}
