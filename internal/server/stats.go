package server

import (
	"sync"
	"time"

	"mirrorstore/internal/proto"
)

// CommandStats are the counters kept per command.
type CommandStats struct {
	Requests uint64 `json:"requests"`
	Failures uint64 `json:"failures"`
	BytesIn  uint64 `json:"bytes_in"`
	BytesOut uint64 `json:"bytes_out"`
}

// StatsSnapshot is a point-in-time copy of collected stats.
type StatsSnapshot struct {
	StartedUnix int64                          `json:"started_unix"`
	UptimeSec   int64                          `json:"uptime_sec"`
	TotalReq    uint64                         `json:"total_requests"`
	TotalErr    uint64                         `json:"total_errors"`
	Dropped     uint64                         `json:"dropped"`
	BytesIn     uint64                         `json:"bytes_in"`
	BytesOut    uint64                         `json:"bytes_out"`
	AvgMs       uint64                         `json:"avg_ms"`
	ByCommand   map[proto.Command]CommandStats `json:"by_command"`
}

// statsHub keeps lightweight request counters.
type statsHub struct {
	mu sync.Mutex

	started time.Time

	totalReq   uint64
	totalErr   uint64
	dropped    uint64
	bytesIn    uint64
	bytesOut   uint64
	totalDurMs uint64

	byCmd map[proto.Command]*CommandStats
}

func newStatsHub() *statsHub {
	return &statsHub{
		started: time.Now(),
		byCmd:   make(map[proto.Command]*CommandStats, len(proto.Commands)),
	}
}

func (h *statsHub) add(cmd proto.Command, status byte, in, out int64, dur time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cs := h.byCmd[cmd]
	if cs == nil {
		cs = &CommandStats{}
		h.byCmd[cmd] = cs
	}
	h.totalReq++
	cs.Requests++
	if status != proto.StatusSuccess {
		h.totalErr++
		cs.Failures++
	}
	if in > 0 {
		h.bytesIn += uint64(in)
		cs.BytesIn += uint64(in)
	}
	if out > 0 {
		h.bytesOut += uint64(out)
		cs.BytesOut += uint64(out)
	}
	if ms := dur.Milliseconds(); ms > 0 {
		h.totalDurMs += uint64(ms)
	}
}

// addDropped counts connections closed without a response (bad request line).
func (h *statsHub) addDropped() {
	h.mu.Lock()
	h.dropped++
	h.mu.Unlock()
}

func (h *statsHub) snapshot() StatsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	by := make(map[proto.Command]CommandStats, len(h.byCmd))
	for k, v := range h.byCmd {
		by[k] = *v
	}
	avg := uint64(0)
	if h.totalReq > 0 {
		avg = h.totalDurMs / h.totalReq
	}
	return StatsSnapshot{
		StartedUnix: h.started.Unix(),
		UptimeSec:   int64(time.Since(h.started).Seconds()),
		TotalReq:    h.totalReq,
		TotalErr:    h.totalErr,
		Dropped:     h.dropped,
		BytesIn:     h.bytesIn,
		BytesOut:    h.bytesOut,
		AvgMs:       avg,
		ByCommand:   by,
	}
}

// Stats returns a snapshot of the request counters.
func (s *Server) Stats() StatsSnapshot {
	return s.stats.snapshot()
}
