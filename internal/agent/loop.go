package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// DefaultPollInterval is the pause between poll cycles.
const DefaultPollInterval = 5 * time.Second

// Loop drives the agent: each cycle submits telemetry, fetches at most
// one command and runs it to completion before the next cycle starts.
// Commands therefore never run concurrently on one agent.
type Loop struct {
	AgentID        string
	CredentialFile string
	Client         Coordinator
	Collector      Collector
	Executor       *Executor
	Logger         *slog.Logger
	PollInterval   time.Duration

	reregistered bool
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Loop) pollInterval() time.Duration {
	if l.PollInterval > 0 {
		return l.PollInterval
	}
	return DefaultPollInterval
}

// Run registers if needed, then polls until ctx is cancelled. A cycle
// that fails is logged and retried on the next tick; the loop itself
// only exits on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.ensureCredential(ctx); err != nil {
		return err
	}
	l.logger().Info("agent ready", "agent_id", l.AgentID, "poll_interval", l.pollInterval())

	ticker := time.NewTicker(l.pollInterval())
	defer ticker.Stop()
	for {
		l.cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ensureCredential loads a persisted credential, registering for a
// fresh one when none is stored. Registration retries until it succeeds
// so an agent started before its coordinator eventually comes up.
func (l *Loop) ensureCredential(ctx context.Context) error {
	if l.CredentialFile != "" {
		raw, err := os.ReadFile(l.CredentialFile)
		if err == nil {
			credential := strings.TrimSpace(string(raw))
			if credential != "" {
				if setter, ok := l.Client.(interface{ SetCredential(string) }); ok {
					setter.SetCredential(credential)
				}
				l.logger().Info("loaded stored credential", "path", l.CredentialFile)
				return nil
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read credential file: %w", err)
		}
	}
	return l.register(ctx)
}

func (l *Loop) register(ctx context.Context) error {
	for {
		credential, err := l.Client.Register(ctx, l.AgentID)
		if err == nil {
			l.persistCredential(credential)
			l.logger().Info("registered with coordinator", "agent_id", l.AgentID)
			return nil
		}
		l.logger().Warn("registration failed, retrying", "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval()):
		}
	}
}

func (l *Loop) persistCredential(credential string) {
	if l.CredentialFile == "" {
		return
	}
	if err := os.WriteFile(l.CredentialFile, []byte(credential+"\n"), 0o600); err != nil {
		l.logger().Warn("failed to persist credential", "path", l.CredentialFile, "error", err)
	}
}

// cycle runs one poll iteration. Every failure is swallowed after
// logging so a flaky coordinator never kills the agent.
func (l *Loop) cycle(ctx context.Context) {
	log := l.logger()

	reading, err := l.Collector.Collect(ctx)
	if err != nil {
		log.Warn("telemetry collection failed", "error", err)
	}
	if err := l.Client.SubmitTelemetry(ctx, reading); err != nil {
		if errors.Is(err, ErrUnauthorized) && !l.reregistered {
			// Coordinator lost our registration. Re-register once and
			// retry the submission on this cycle.
			l.reregistered = true
			log.Warn("credential rejected, re-registering")
			if err := l.register(ctx); err != nil {
				return
			}
			if err := l.Client.SubmitTelemetry(ctx, reading); err != nil {
				log.Warn("telemetry submission failed", "error", err)
				return
			}
		} else {
			log.Warn("telemetry submission failed", "error", err)
			return
		}
	}
	l.reregistered = false

	pending, err := l.Client.FetchNextCommand(ctx)
	if err != nil {
		log.Warn("command fetch failed", "error", err)
		return
	}
	if pending == nil {
		return
	}

	log.Info("executing command", "command_id", pending.ID, "command", pending.Text)
	status := l.Executor.Run(ctx, pending.ID, pending.Text)
	log.Info("command finished", "command_id", pending.ID, "status", status)
}
