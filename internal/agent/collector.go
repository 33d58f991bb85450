package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/gpufleet/fleet/internal/protocol"
)

// Collector produces one telemetry submission per poll cycle.
type Collector interface {
	Collect(ctx context.Context) (protocol.TelemetryRequest, error)
}

const smiQueryFields = "index,name,temperature.gpu,utilization.gpu,power.draw,memory.total,memory.used,memory.free"

// SMICollector reads GPU stats from nvidia-smi and host stats from the
// OS. A host without nvidia-smi yields an empty GPU list rather than an
// error, so CPU-only machines still report.
type SMICollector struct {
	Logger *slog.Logger
}

var _ Collector = (*SMICollector)(nil)

func (c *SMICollector) Collect(ctx context.Context) (protocol.TelemetryRequest, error) {
	req := protocol.TelemetryRequest{Timestamp: time.Now().UTC()}

	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu="+smiQueryFields,
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		if c.Logger != nil {
			c.Logger.Debug("nvidia-smi unavailable", "error", err)
		}
	} else {
		gpus, err := parseSMIOutput(string(out))
		if err != nil {
			return req, fmt.Errorf("parse nvidia-smi output: %w", err)
		}
		req.GPUs = gpus
	}

	host, err := collectHost(ctx)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn("host stats unavailable", "error", err)
		}
	} else {
		req.Host = host
	}
	return req, nil
}

// parseSMIOutput turns nvidia-smi CSV rows into GPU readings. Fields
// nvidia-smi reports as [N/A] (power draw on some boards) are left nil.
func parseSMIOutput(out string) ([]protocol.GPUReading, error) {
	var gpus []protocol.GPUReading
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 8 {
			return nil, fmt.Errorf("unexpected field count %d in %q", len(fields), line)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		index, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("gpu index %q: %w", fields[0], err)
		}
		temp, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("gpu temperature %q: %w", fields[2], err)
		}
		util, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("gpu utilization %q: %w", fields[3], err)
		}
		total, err := strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return nil, fmt.Errorf("gpu memory total %q: %w", fields[5], err)
		}
		used, err := strconv.ParseFloat(fields[6], 64)
		if err != nil {
			return nil, fmt.Errorf("gpu memory used %q: %w", fields[6], err)
		}
		free, err := strconv.ParseFloat(fields[7], 64)
		if err != nil {
			return nil, fmt.Errorf("gpu memory free %q: %w", fields[7], err)
		}

		reading := protocol.GPUReading{
			Index:       index,
			Model:       fields[1],
			Temperature: temp,
			Utilization: util,
			Memory: protocol.Memory{
				TotalMB: total,
				UsedMB:  used,
				FreeMB:  free,
			},
		}
		if total > 0 {
			reading.Memory.PercentUsed = used / total * 100
		}
		if power, err := strconv.ParseFloat(fields[4], 64); err == nil {
			reading.PowerDraw = &power
		}
		gpus = append(gpus, reading)
	}
	return gpus, nil
}

func collectHost(ctx context.Context) (*protocol.HostReading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	host := &protocol.HostReading{
		MemoryUsedMB:  float64(vm.Used) / 1024 / 1024,
		MemoryTotalMB: float64(vm.Total) / 1024 / 1024,
	}
	if len(percents) > 0 {
		host.CPUPercent = percents[0]
	}
	return host, nil
}
