package agent

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/fleet/internal/protocol"
)

// fakeCoordinator scripts the coordinator side of the dispatch protocol
// for loop tests.
type fakeCoordinator struct {
	mu            sync.Mutex
	credential    string
	registers     int
	telemetry     []protocol.TelemetryRequest
	rejectSubmits int
	queue         []PendingCommand
	reports       []reportCall
	commandStatus string
}

func (f *fakeCoordinator) Register(_ context.Context, agentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers++
	f.credential = "ak_" + agentID
	return f.credential, nil
}

func (f *fakeCoordinator) SetCredential(credential string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credential = credential
}

func (f *fakeCoordinator) SubmitTelemetry(_ context.Context, req protocol.TelemetryRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectSubmits > 0 {
		f.rejectSubmits--
		return ErrUnauthorized
	}
	f.telemetry = append(f.telemetry, req)
	return nil
}

func (f *fakeCoordinator) FetchNextCommand(context.Context) (*PendingCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return &next, nil
}

func (f *fakeCoordinator) ReportOutput(_ context.Context, commandID int64, status, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, reportCall{commandID, status, output})
	return nil
}

func (f *fakeCoordinator) PollCommandStatus(context.Context, int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commandStatus == "" {
		return protocol.StatusRunning, nil
	}
	return f.commandStatus, nil
}

type staticCollector struct{}

func (staticCollector) Collect(context.Context) (protocol.TelemetryRequest, error) {
	return protocol.TelemetryRequest{Timestamp: time.Now().UTC()}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, nil))
}

func newTestLoop(t *testing.T, coordinator *fakeCoordinator) *Loop {
	t.Helper()
	return &Loop{
		AgentID:        "gpu-node-1",
		CredentialFile: filepath.Join(t.TempDir(), "credential"),
		Client:         coordinator,
		Collector:      staticCollector{},
		Executor: &Executor{
			Reporter:           coordinator,
			Logger:             quietLogger(),
			ReportInterval:     50 * time.Millisecond,
			StatusPollInterval: 50 * time.Millisecond,
			KillGrace:          200 * time.Millisecond,
		},
		Logger:       quietLogger(),
		PollInterval: 20 * time.Millisecond,
	}
}

func runLoopFor(t *testing.T, loop *Loop, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	err := loop.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopRegistersAndPersistsCredential(t *testing.T) {
	coordinator := &fakeCoordinator{}
	loop := newTestLoop(t, coordinator)

	runLoopFor(t, loop, 150*time.Millisecond)

	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	assert.Equal(t, 1, coordinator.registers)
	assert.NotEmpty(t, coordinator.telemetry, "expected telemetry submissions")

	stored, err := os.ReadFile(loop.CredentialFile)
	require.NoError(t, err)
	assert.Equal(t, "ak_gpu-node-1\n", string(stored))
}

func TestLoopSkipsRegisterWithStoredCredential(t *testing.T) {
	coordinator := &fakeCoordinator{}
	loop := newTestLoop(t, coordinator)
	require.NoError(t, os.WriteFile(loop.CredentialFile, []byte("ak_stored\n"), 0o600))

	runLoopFor(t, loop, 100*time.Millisecond)

	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	assert.Zero(t, coordinator.registers, "stored credential should skip registration")
	assert.Equal(t, "ak_stored", coordinator.credential)
}

func TestLoopReregistersOnAuthFailure(t *testing.T) {
	coordinator := &fakeCoordinator{rejectSubmits: 1}
	loop := newTestLoop(t, coordinator)
	require.NoError(t, os.WriteFile(loop.CredentialFile, []byte("ak_stale\n"), 0o600))

	runLoopFor(t, loop, 150*time.Millisecond)

	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	assert.Equal(t, 1, coordinator.registers, "rejected credential should trigger one re-registration")
	assert.NotEmpty(t, coordinator.telemetry, "submission should be retried after re-registering")
}

func TestLoopExecutesFetchedCommand(t *testing.T) {
	coordinator := &fakeCoordinator{
		queue: []PendingCommand{{ID: 9, Text: "echo from-loop"}},
	}
	loop := newTestLoop(t, coordinator)

	runLoopFor(t, loop, 400*time.Millisecond)

	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	require.NotEmpty(t, coordinator.reports)
	final := coordinator.reports[len(coordinator.reports)-1]
	assert.Equal(t, int64(9), final.commandID)
	assert.Equal(t, protocol.StatusCompleted, final.status)
	assert.Equal(t, "from-loop\n", final.output)
}
