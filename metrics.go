package julink

import (
	"sync/atomic"
	"time"

	"github.com/mhradec/go-julink/internal/interfaces"
)

// Metrics tracks protocol and link statistics for one side of the
// connection. All counters are atomic; the hot paths touch them from the
// reader goroutine and the main loop concurrently.
type Metrics struct {
	// Message counters
	MessagesSent     atomic.Uint64 // Frames written to the link
	MessagesReceived atomic.Uint64 // Well-formed frames decoded off the link
	BytesSent        atomic.Uint64
	BytesReceived    atomic.Uint64

	// Protocol health
	ChecksumErrors atomic.Uint64 // Frames delivered or dropped with a bad checksum
	ResyncBytes    atomic.Uint64 // Noise bytes discarded while hunting for a type tag
	QueueDrops     atomic.Uint64 // Messages rejected by the full bounded queue

	// Computation progress
	PixelsReceived atomic.Uint64 // COMPUTE_DATA results consumed
	ChunksDone     atomic.Uint64 // DONE messages matched to an in-flight chunk

	// Link supervision
	ProbesSent     atomic.Uint64 // CONN_TEST probes issued after silence
	LinkDeadEvents atomic.Uint64

	// Lifecycle
	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano, 0 while running
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// Stop marks the session as finished for uptime accounting
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of all counters plus derived
// statistics.
type MetricsSnapshot struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64

	ChecksumErrors uint64
	ResyncBytes    uint64
	QueueDrops     uint64

	PixelsReceived uint64
	ChunksDone     uint64

	ProbesSent     uint64
	LinkDeadEvents uint64

	UptimeNs uint64

	// Derived statistics
	MessagesPerSecond float64
	ReceiveBandwidth  float64 // Bytes per second off the link
	PixelRate         float64 // Pixels per second
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		MessagesSent:     m.MessagesSent.Load(),
		MessagesReceived: m.MessagesReceived.Load(),
		BytesSent:        m.BytesSent.Load(),
		BytesReceived:    m.BytesReceived.Load(),
		ChecksumErrors:   m.ChecksumErrors.Load(),
		ResyncBytes:      m.ResyncBytes.Load(),
		QueueDrops:       m.QueueDrops.Load(),
		PixelsReceived:   m.PixelsReceived.Load(),
		ChunksDone:       m.ChunksDone.Load(),
		ProbesSent:       m.ProbesSent.Load(),
		LinkDeadEvents:   m.LinkDeadEvents.Load(),
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.MessagesPerSecond = float64(snap.MessagesSent+snap.MessagesReceived) / uptimeSeconds
		snap.ReceiveBandwidth = float64(snap.BytesReceived) / uptimeSeconds
		snap.PixelRate = float64(snap.PixelsReceived) / uptimeSeconds
	}

	return snap
}

// Reset zeroes all counters and restarts the uptime clock
func (m *Metrics) Reset() {
	m.MessagesSent.Store(0)
	m.MessagesReceived.Store(0)
	m.BytesSent.Store(0)
	m.BytesReceived.Store(0)
	m.ChecksumErrors.Store(0)
	m.ResyncBytes.Store(0)
	m.QueueDrops.Store(0)
	m.PixelsReceived.Store(0)
	m.ChunksDone.Store(0)
	m.ProbesSent.Store(0)
	m.LinkDeadEvents.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection; every method is invoked
// from a hot path and must be cheap and thread-safe.
type Observer = interfaces.Observer

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveSent(uint8, int)     {}
func (NoOpObserver) ObserveReceived(uint8, int) {}
func (NoOpObserver) ObserveChecksumError()      {}
func (NoOpObserver) ObserveResyncByte()         {}
func (NoOpObserver) ObserveQueueDrop()          {}
func (NoOpObserver) ObservePixel()              {}
func (NoOpObserver) ObserveChunkDone()          {}
func (NoOpObserver) ObserveProbe()              {}
func (NoOpObserver) ObserveLinkDead()           {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSent(msgType uint8, bytes int) {
	o.metrics.MessagesSent.Add(1)
	o.metrics.BytesSent.Add(uint64(bytes))
}

func (o *MetricsObserver) ObserveReceived(msgType uint8, bytes int) {
	o.metrics.MessagesReceived.Add(1)
	o.metrics.BytesReceived.Add(uint64(bytes))
}

func (o *MetricsObserver) ObserveChecksumError() { o.metrics.ChecksumErrors.Add(1) }
func (o *MetricsObserver) ObserveResyncByte()    { o.metrics.ResyncBytes.Add(1) }
func (o *MetricsObserver) ObserveQueueDrop()     { o.metrics.QueueDrops.Add(1) }
func (o *MetricsObserver) ObservePixel()         { o.metrics.PixelsReceived.Add(1) }
func (o *MetricsObserver) ObserveChunkDone()     { o.metrics.ChunksDone.Add(1) }
func (o *MetricsObserver) ObserveProbe()         { o.metrics.ProbesSent.Add(1) }
func (o *MetricsObserver) ObserveLinkDead()      { o.metrics.LinkDeadEvents.Add(1) }

// Compile-time interface checks
var (
	_ Observer = NoOpObserver{}
	_ Observer = (*MetricsObserver)(nil)
)
