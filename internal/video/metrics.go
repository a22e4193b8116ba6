// Package video ties the capture, encode and packetize stages into the
// per-session video stream: one capture thread, one encode thread and an
// async sender that learns the client's address from its first PING
// datagram.
package video

import (
	"sync"
	"time"
)

// StreamMetrics tracks real-time performance counters for one streaming
// session. A single instance is shared by the video stream and the stats
// endpoint.
type StreamMetrics struct {
	mu sync.RWMutex

	FramesCaptured uint64
	FramesEncoded  uint64
	FramesSent     uint64
	FramesDropped  uint64
	IDRFramesSent  uint64

	DataShardsSent   uint64
	ParityShardsSent uint64

	LastEncodeTime time.Duration
	LastFrameSize  int

	TotalBytesSent uint64
	startTime      time.Time
}

// NewStreamMetrics returns zeroed metrics with the uptime clock started.
func NewStreamMetrics() *StreamMetrics {
	return &StreamMetrics{startTime: time.Now()}
}

func (m *StreamMetrics) RecordCapture() {
	m.mu.Lock()
	m.FramesCaptured++
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordEncode(d time.Duration, size int, idr bool) {
	m.mu.Lock()
	m.FramesEncoded++
	m.LastEncodeTime = d
	m.LastFrameSize = size
	if idr {
		m.IDRFramesSent++
	}
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordDrop(count uint64) {
	m.mu.Lock()
	m.FramesDropped += count
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordShards(dataShards, parityShards int) {
	m.mu.Lock()
	m.DataShardsSent += uint64(dataShards)
	m.ParityShardsSent += uint64(parityShards)
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordSend(bytes int) {
	m.mu.Lock()
	m.FramesSent++
	m.TotalBytesSent += uint64(bytes)
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy for logging and the stats
// endpoint.
type MetricsSnapshot struct {
	FramesCaptured uint64  `json:"framesCaptured"`
	FramesEncoded  uint64  `json:"framesEncoded"`
	FramesSent     uint64  `json:"framesSent"`
	FramesDropped  uint64  `json:"framesDropped"`
	IDRFramesSent  uint64  `json:"idrFramesSent"`
	DataShards     uint64  `json:"dataShards"`
	ParityShards   uint64  `json:"parityShards"`
	FECOverhead    float64 `json:"fecOverhead"`
	EncodeMs       float64 `json:"encodeMs"`
	LastFrameSize  int     `json:"lastFrameSize"`
	BandwidthKBps  float64 `json:"bandwidthKBps"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
}

func (m *StreamMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	bw := float64(0)
	if uptime.Seconds() > 0 {
		bw = float64(m.TotalBytesSent) / 1024 / uptime.Seconds()
	}
	overhead := float64(0)
	if m.DataShardsSent > 0 {
		overhead = float64(m.ParityShardsSent) / float64(m.DataShardsSent)
	}

	return MetricsSnapshot{
		FramesCaptured: m.FramesCaptured,
		FramesEncoded:  m.FramesEncoded,
		FramesSent:     m.FramesSent,
		FramesDropped:  m.FramesDropped,
		IDRFramesSent:  m.IDRFramesSent,
		DataShards:     m.DataShardsSent,
		ParityShards:   m.ParityShardsSent,
		FECOverhead:    overhead,
		EncodeMs:       float64(m.LastEncodeTime.Microseconds()) / 1000,
		LastFrameSize:  m.LastFrameSize,
		BandwidthKBps:  bw,
		UptimeSeconds:  uptime.Seconds(),
	}
}
