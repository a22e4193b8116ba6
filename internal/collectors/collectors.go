// Package collectors samples host resource usage for /serverinfo and the
// stats endpoint. It is a deliberately small slice of a fleet-agent style
// collector set: this host only needs enough signal for a client to judge
// whether encoding headroom exists.
package collectors

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("collectors")

// cacheWindow bounds how often the (comparatively slow) gopsutil calls run;
// /serverinfo is polled aggressively by clients scanning the LAN.
const cacheWindow = 2 * time.Second

// HostStats samples CPU load and memory pressure with a short-lived cache.
type HostStats struct {
	mu         sync.Mutex
	sampledAt  time.Time
	cpuPercent float64
	memPercent float64
}

// NewHostStats returns an empty sampler; the first Snapshot call fills it.
func NewHostStats() *HostStats {
	return &HostStats{}
}

// Snapshot returns the host's current CPU utilization percentage.
func (h *HostStats) Snapshot() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if time.Since(h.sampledAt) < cacheWindow {
		return h.cpuPercent, nil
	}

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) > 0 {
		h.cpuPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		h.memPercent = vm.UsedPercent
	} else {
		log.Debug("failed to sample memory", "error", err)
	}

	h.sampledAt = time.Now()
	return h.cpuPercent, nil
}

// Memory returns the most recent memory utilization sample.
func (h *HostStats) Memory() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.memPercent
}
