package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gpufleet/fleet/internal/agent"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Fleet Agent", "version", AppVersion, "agent_id", config.Agent.ID)

	client := agent.NewClient(config.Coordinator.URL, time.Duration(config.Coordinator.TimeoutSeconds)*time.Second)
	collector := &agent.SMICollector{Logger: slog.Default()}
	executor := agent.NewExecutor(client, slog.Default())

	loop := &agent.Loop{
		AgentID:        config.Agent.ID,
		CredentialFile: config.Agent.CredentialFile,
		Client:         client,
		Collector:      collector,
		Executor:       executor,
		Logger:         slog.Default(),
		PollInterval:   time.Duration(config.Agent.PollIntervalSeconds) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Agent exited", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
