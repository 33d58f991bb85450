package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpufleet/fleet/internal/protocol"
)

// fakeReporter records every report and serves a programmable status to
// the executor's stop polls. A nonzero pollDelay stalls each status
// poll, like a slow coordinator round trip.
type fakeReporter struct {
	mu        sync.Mutex
	reports   []reportCall
	status    string
	pollDelay time.Duration
}

type reportCall struct {
	commandID int64
	status    string
	output    string
}

func (f *fakeReporter) ReportOutput(_ context.Context, commandID int64, status, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, reportCall{commandID, status, output})
	return nil
}

func (f *fakeReporter) PollCommandStatus(context.Context, int64) (string, error) {
	if f.pollDelay > 0 {
		time.Sleep(f.pollDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == "" {
		return protocol.StatusRunning, nil
	}
	return f.status, nil
}

func (f *fakeReporter) setStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeReporter) last() reportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[len(f.reports)-1]
}

func newTestExecutor(reporter *fakeReporter) *Executor {
	return &Executor{
		Reporter:           reporter,
		Logger:             slog.New(slog.NewTextHandler(testWriter{}, nil)),
		ReportInterval:     50 * time.Millisecond,
		StatusPollInterval: 50 * time.Millisecond,
		KillGrace:          200 * time.Millisecond,
	}
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRunCompleted(t *testing.T) {
	reporter := &fakeReporter{}
	exec := newTestExecutor(reporter)

	status := exec.Run(t.Context(), 1, "echo hello")

	assert.Equal(t, protocol.StatusCompleted, status)
	final := reporter.last()
	assert.Equal(t, int64(1), final.commandID)
	assert.Equal(t, protocol.StatusCompleted, final.status)
	assert.Equal(t, "hello\n", final.output)
}

func TestRunFailedExitCode(t *testing.T) {
	reporter := &fakeReporter{}
	exec := newTestExecutor(reporter)

	status := exec.Run(t.Context(), 2, "echo partial && exit 3")

	assert.Equal(t, protocol.StatusFailed, status)
	final := reporter.last()
	assert.Equal(t, protocol.StatusFailed, final.status)
	assert.Contains(t, final.output, "partial\n")
}

func TestRunStderrPrefixed(t *testing.T) {
	reporter := &fakeReporter{}
	exec := newTestExecutor(reporter)

	status := exec.Run(t.Context(), 3, "echo out; echo oops 1>&2")

	assert.Equal(t, protocol.StatusCompleted, status)
	final := reporter.last()
	assert.Contains(t, final.output, "out\n")
	assert.Contains(t, final.output, "STDERR: oops\n")
}

func TestRunLaunchFailure(t *testing.T) {
	reporter := &fakeReporter{}
	exec := newTestExecutor(reporter)
	exec.Shell = "/nonexistent/shell"

	status := exec.Run(t.Context(), 4, "echo hi")

	assert.Equal(t, protocol.StatusFailed, status)
	final := reporter.last()
	assert.Equal(t, protocol.StatusFailed, final.status)
	assert.Contains(t, final.output, "failed to start command")
}

func TestRunStopRequested(t *testing.T) {
	reporter := &fakeReporter{}
	exec := newTestExecutor(reporter)
	reporter.setStatus(protocol.StatusStopping)

	start := time.Now()
	status := exec.Run(t.Context(), 5, "sleep 60")

	require.Equal(t, protocol.StatusStopped, status)
	assert.Less(t, time.Since(start), 10*time.Second, "stop should not wait for the command")
	final := reporter.last()
	assert.Equal(t, protocol.StatusStopped, final.status)
	assert.Contains(t, final.output, "manually stopped")
}

func TestRunTimeout(t *testing.T) {
	reporter := &fakeReporter{}
	exec := newTestExecutor(reporter)
	exec.MaxRuntime = 200 * time.Millisecond

	start := time.Now()
	status := exec.Run(t.Context(), 6, "sleep 60")

	require.Equal(t, protocol.StatusFailed, status)
	assert.Less(t, time.Since(start), 10*time.Second)
	final := reporter.last()
	assert.Equal(t, protocol.StatusFailed, final.status)
	assert.Contains(t, final.output, "exceeded maximum runtime")
}

func TestRunIncrementalReports(t *testing.T) {
	reporter := &fakeReporter{}
	exec := newTestExecutor(reporter)

	status := exec.Run(t.Context(), 7, "echo one; sleep 0.3; echo two")

	require.Equal(t, protocol.StatusCompleted, status)

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	var sawRunning bool
	for _, r := range reporter.reports[:len(reporter.reports)-1] {
		assert.Equal(t, protocol.StatusRunning, r.status)
		if strings.Contains(r.output, "one\n") {
			sawRunning = true
		}
	}
	assert.True(t, sawRunning, "expected an incremental report carrying early output")
	assert.Equal(t, "one\ntwo\n", reporter.reports[len(reporter.reports)-1].output)
}

func TestRunStopWithBackloggedOutput(t *testing.T) {
	// The output burst lands while a slow status poll is in flight, so
	// by the time the stop is seen the line channel is full and the
	// readers are blocked on it. Termination must still drain and
	// deliver the final report.
	reporter := &fakeReporter{pollDelay: 300 * time.Millisecond}
	reporter.setStatus(protocol.StatusStopping)
	exec := newTestExecutor(reporter)

	statusCh := make(chan string, 1)
	go func() {
		statusCh <- exec.Run(t.Context(), 9, "sleep 0.1; seq 1 2000; sleep 60")
	}()

	var status string
	select {
	case status = <-statusCh:
	case <-time.After(20 * time.Second):
		t.Fatal("executor never returned after stop request")
	}

	require.Equal(t, protocol.StatusStopped, status)
	final := reporter.last()
	assert.Equal(t, protocol.StatusStopped, final.status)
	assert.Contains(t, final.output, "\n2000\n", "backlogged output should survive termination")
	assert.Contains(t, final.output, "manually stopped")
}

func TestRunSIGTERMIgnoringProcessIsKilled(t *testing.T) {
	reporter := &fakeReporter{}
	exec := newTestExecutor(reporter)
	reporter.setStatus(protocol.StatusStopping)

	start := time.Now()
	status := exec.Run(t.Context(), 8, "trap '' TERM; sleep 60")

	require.Equal(t, protocol.StatusStopped, status)
	assert.Less(t, time.Since(start), 10*time.Second, "SIGKILL should end a TERM-ignoring process")
}
