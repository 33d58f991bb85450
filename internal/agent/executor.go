package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gpufleet/fleet/internal/protocol"
)

const (
	// DefaultMaxRuntime caps a single command's wall-clock time.
	DefaultMaxRuntime = time.Hour
	// DefaultReportInterval is how often an incremental output report
	// is pushed while the command runs.
	DefaultReportInterval = 5 * time.Second
	// DefaultStatusPollInterval is how often the coordinator is asked
	// whether an operator requested a stop.
	DefaultStatusPollInterval = 5 * time.Second
	// DefaultKillGrace is the window between SIGTERM and SIGKILL.
	DefaultKillGrace = 1 * time.Second
)

const (
	stoppedNotice  = "\n\nCommand was manually stopped."
	timeoutNotice  = "\n\nCommand exceeded maximum runtime of 1 hour and was terminated."
	shutdownNotice = "\n\nAgent shut down while command was running."
)

// Reporter is the slice of the coordinator protocol the executor needs:
// pushing output and checking for stop requests.
type Reporter interface {
	ReportOutput(ctx context.Context, commandID int64, status, output string) error
	PollCommandStatus(ctx context.Context, commandID int64) (string, error)
}

// Executor runs one command at a time inside a shell subprocess,
// streaming merged stdout/stderr back to the coordinator. Zero-value
// intervals fall back to the defaults above.
type Executor struct {
	Reporter           Reporter
	Logger             *slog.Logger
	Shell              string
	MaxRuntime         time.Duration
	ReportInterval     time.Duration
	StatusPollInterval time.Duration
	KillGrace          time.Duration
}

func NewExecutor(reporter Reporter, logger *slog.Logger) *Executor {
	return &Executor{Reporter: reporter, Logger: logger}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Executor) maxRuntime() time.Duration {
	if e.MaxRuntime > 0 {
		return e.MaxRuntime
	}
	return DefaultMaxRuntime
}

func (e *Executor) reportInterval() time.Duration {
	if e.ReportInterval > 0 {
		return e.ReportInterval
	}
	return DefaultReportInterval
}

func (e *Executor) statusPollInterval() time.Duration {
	if e.StatusPollInterval > 0 {
		return e.StatusPollInterval
	}
	return DefaultStatusPollInterval
}

func (e *Executor) killGrace() time.Duration {
	if e.KillGrace > 0 {
		return e.KillGrace
	}
	return DefaultKillGrace
}

func (e *Executor) shell() string {
	if e.Shell != "" {
		return e.Shell
	}
	return "sh"
}

// Run executes text to completion, cancellation or timeout, and always
// issues one final report before returning. The returned status is the
// terminal status that was reported.
func (e *Executor) Run(ctx context.Context, commandID int64, text string) string {
	log := e.logger().With("command_id", commandID)

	cmd := exec.Command(e.shell(), "-c", text)
	// Run the shell in its own process group so termination reaches
	// any children it spawned, not just the shell itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.finish(ctx, log, commandID, protocol.StatusFailed,
			fmt.Sprintf("failed to start command: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return e.finish(ctx, log, commandID, protocol.StatusFailed,
			fmt.Sprintf("failed to start command: %v", err))
	}
	if err := cmd.Start(); err != nil {
		return e.finish(ctx, log, commandID, protocol.StatusFailed,
			fmt.Sprintf("failed to start command: %v", err))
	}
	log.Info("command started", "pid", cmd.Process.Pid)

	// Line readers close lines once both pipes hit EOF, then the wait
	// goroutine reaps the process. Wait must not run before the readers
	// finish or it would close the pipes under them.
	lines := make(chan string, 64)
	var readers sync.WaitGroup
	readers.Add(2)
	go streamLines(stdout, "", lines, &readers)
	go streamLines(stderr, "STDERR: ", lines, &readers)

	done := make(chan error, 1)
	go func() {
		readers.Wait()
		close(lines)
		done <- cmd.Wait()
	}()

	e.report(ctx, log, commandID, protocol.StatusRunning, "Command started, waiting for output...\n")

	reportTicker := time.NewTicker(e.reportInterval())
	defer reportTicker.Stop()
	pollTicker := time.NewTicker(e.statusPollInterval())
	defer pollTicker.Stop()
	deadline := time.NewTimer(e.maxRuntime())
	defer deadline.Stop()

	var buf strings.Builder
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Pipes are closed; the process exit lands on done.
				lines = nil
				continue
			}
			buf.WriteString(line)

		case err := <-done:
			drain(lines, &buf)
			status := protocol.StatusCompleted
			if err != nil {
				status = protocol.StatusFailed
			}
			log.Info("command exited", "status", status)
			return e.finish(ctx, log, commandID, status, buf.String())

		case <-reportTicker.C:
			e.report(ctx, log, commandID, protocol.StatusRunning, buf.String())

		case <-pollTicker.C:
			status, err := e.Reporter.PollCommandStatus(ctx, commandID)
			if err != nil {
				log.Warn("status poll failed", "error", err)
				continue
			}
			if status == protocol.StatusStopping {
				log.Info("stop requested, terminating command")
				e.terminate(cmd, done, lines, &buf)
				drain(lines, &buf)
				buf.WriteString(stoppedNotice)
				return e.finish(ctx, log, commandID, protocol.StatusStopped, buf.String())
			}

		case <-deadline.C:
			log.Warn("command exceeded maximum runtime, terminating")
			e.terminate(cmd, done, lines, &buf)
			drain(lines, &buf)
			buf.WriteString(timeoutNotice)
			return e.finish(ctx, log, commandID, protocol.StatusFailed, buf.String())

		case <-ctx.Done():
			e.terminate(cmd, done, lines, &buf)
			drain(lines, &buf)
			buf.WriteString(shutdownNotice)
			return e.finish(ctx, log, commandID, protocol.StatusFailed, buf.String())
		}
	}
}

// terminate sends SIGTERM to the command's process group, waits the
// grace period, then SIGKILLs the group. It keeps consuming lines into
// buf while waiting: the readers block on a full channel otherwise and
// the process would never be reaped. Returns once the process is gone.
func (e *Executor) terminate(cmd *exec.Cmd, done <-chan error, lines <-chan string, buf *strings.Builder) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)

	grace := time.NewTimer(e.killGrace())
	defer grace.Stop()
	graceC := grace.C
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			buf.WriteString(line)
		case <-done:
			return
		case <-graceC:
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			graceC = nil
		}
	}
}

// finish issues the mandatory final report. The report call gets a
// fresh timeout so a shutdown that cancelled ctx still delivers it.
func (e *Executor) finish(ctx context.Context, log *slog.Logger, commandID int64, status, output string) string {
	reportCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		reportCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	e.report(reportCtx, log, commandID, status, output)
	return status
}

func (e *Executor) report(ctx context.Context, log *slog.Logger, commandID int64, status, output string) {
	if err := e.Reporter.ReportOutput(ctx, commandID, status, output); err != nil {
		log.Warn("report failed", "status", status, "error", err)
	}
}

// streamLines copies r line by line into lines, delimiters preserved,
// prefixing each line. A trailing fragment without a newline is sent
// as-is.
func streamLines(r io.Reader, prefix string, lines chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines <- prefix + line
		}
		if err != nil {
			return
		}
	}
}

func drain(lines <-chan string, buf *strings.Builder) {
	if lines == nil {
		return
	}
	for line := range lines {
		buf.WriteString(line)
	}
}
