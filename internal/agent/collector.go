package agent

import (
	"context"

	"github.com/couuas/serv00-ghost/internal/models"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// StatsSource produces the telemetry attached to each heartbeat.
type StatsSource interface {
	Collect(ctx context.Context) models.Stats
}

// Collector gathers host telemetry with gopsutil. Every probe is
// independent: a failing one leaves its field at zero and is logged.
type Collector struct {
	logger *zap.Logger
}

// NewCollector creates a ready-to-use Collector.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{logger: logger}
}

// Collect gathers the current snapshot.
func (c *Collector) Collect(ctx context.Context) models.Stats {
	var s models.Stats

	// CPU: percent since the previous call; the first call after start reads 0
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		s.CPU = pcts[0]
	} else if avg, lerr := load.AvgWithContext(ctx); lerr == nil {
		// shared hosts often hide /proc/stat but still expose the load average
		s.CPU = avg.Load1
	} else {
		c.logger.Debug("cpu probe failed", zap.Error(err), zap.NamedError("load_error", lerr))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.RAMUsage = vm.Used
		s.RAMTotal = vm.Total
	} else {
		c.logger.Debug("memory probe failed", zap.Error(err))
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		s.DiskUsage = du.UsedPercent
	} else {
		c.logger.Debug("disk probe failed", zap.Error(err))
	}

	if pids, err := process.PidsWithContext(ctx); err == nil {
		s.Processes = len(pids)
	} else {
		c.logger.Debug("process probe failed", zap.Error(err))
	}

	return s
}
