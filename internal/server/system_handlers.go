package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystem reports process and host resource usage.
func (h *apiHandlers) handleSystem(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.systemStats()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":        time.Since(h.startedAt).String(),
		"cpu_percent":   cpuPercent,
		"ram_percent":   ramPercent,
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc_mb": float64(ms.HeapAlloc) / (1024 * 1024),
		"quotes_held":   h.store.Len(),
	})
}

func (h *apiHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Debug().Err(err).Msg("Failed to read CPU usage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Debug().Err(err).Msg("Failed to read memory usage")
		return cpuPercent[0], 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
