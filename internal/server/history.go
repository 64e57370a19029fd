package server

import (
	"sync"
	"time"

	"mirrorstore/internal/proto"
)

// historySize is how many requests the server remembers.
const historySize = 256

// RequestRecord is a compact per-request entry kept for shutdown reports and
// debugging.
type RequestRecord struct {
	ID         uint64        `json:"id"`
	At         time.Time     `json:"at"`
	Remote     string        `json:"remote"`
	Command    proto.Command `json:"cmd"`
	Path       string        `json:"path"`
	Status     byte          `json:"status"`
	Err        string        `json:"err,omitempty"`
	BytesIn    int64         `json:"bytes_in"`
	BytesOut   int64         `json:"bytes_out"`
	DurationMs int64         `json:"duration_ms"`
}

func (r RequestRecord) Failed() bool { return r.Status != proto.StatusSuccess }

// history is a fixed-size ring of recent requests.
type history struct {
	mu      sync.Mutex
	ring    []RequestRecord
	nextPos int
	count   int
	nextID  uint64
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = historySize
	}
	return &history{ring: make([]RequestRecord, capacity)}
}

func (h *history) add(r RequestRecord) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	r.ID = h.nextID
	h.ring[h.nextPos] = r
	h.nextPos = (h.nextPos + 1) % len(h.ring)
	if h.count < len(h.ring) {
		h.count++
	}
}

// recent returns up to limit of the newest records in chronological order.
// With onlyFailures set, non-failed records are skipped before the limit
// applies.
func (h *history) recent(limit int, onlyFailures bool) []RequestRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	out := make([]RequestRecord, 0, limit)
	// Walk newest to oldest, then reverse.
	for i := 0; i < h.count && len(out) < limit; i++ {
		idx := (h.nextPos - 1 - i + 2*len(h.ring)) % len(h.ring)
		r := h.ring[idx]
		if onlyFailures && !r.Failed() {
			continue
		}
		out = append(out, r)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Recent returns up to limit of the most recent requests, oldest first. A
// limit of 0 returns everything remembered.
func (s *Server) Recent(limit int, onlyFailures bool) []RequestRecord {
	return s.history.recent(limit, onlyFailures)
}
