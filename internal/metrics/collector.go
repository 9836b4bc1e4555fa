// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpGeneration     = "generation"
	OpTitle          = "title"
	OpRenderSubmit   = "render_submit"
	OpRenderPoll     = "render_poll"
	OpRenderDownload = "render_download"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (generation only)
	TotalOutputTokens int64
	MinOutputTokens   int64
	MaxOutputTokens   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64    `json:"count"`
	Failures    int64    `json:"failures"`
	TotalTimeMs int64    `json:"total_time_ms"`
	AvgTimeMs   float64  `json:"avg_time_ms"`
	MinTimeMs   int64    `json:"min_time_ms"`
	MaxTimeMs   int64    `json:"max_time_ms"`
	TotalTokens *int64   `json:"total_tokens,omitempty"`
	AvgTokens   *float64 `json:"avg_tokens,omitempty"`
}

// Snapshot represents the full runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64            `json:"uptime_seconds"`
	Generation     *OperationSnapshot `json:"generation,omitempty"`
	Title          *OperationSnapshot `json:"title,omitempty"`
	RenderSubmit   *OperationSnapshot `json:"render_submit,omitempty"`
	RenderPoll     *OperationSnapshot `json:"render_poll,omitempty"`
	RenderDownload *OperationSnapshot `json:"render_download,omitempty"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold the write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:         time.Duration(math.MaxInt64),
			MinOutputTokens: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) recordTiming(duration time.Duration) {
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).recordTiming(duration)
}

// RecordFailure records a failed operation.
func (c *Collector) RecordFailure(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(op)
	m.recordTiming(duration)
	m.Failures++
}

// RecordGeneration records timing and output token usage for one turn.
func (c *Collector) RecordGeneration(duration time.Duration, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(OpGeneration)
	m.recordTiming(duration)

	m.TotalOutputTokens += outputTokens
	if outputTokens < m.MinOutputTokens {
		m.MinOutputTokens = outputTokens
	}
	if outputTokens > m.MaxOutputTokens {
		m.MaxOutputTokens = outputTokens
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && m.TotalOutputTokens > 0 {
		total := m.TotalOutputTokens
		avg := float64(m.TotalOutputTokens) / float64(m.Count)
		snap.TotalTokens = &total
		snap.AvgTokens = &avg
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		Generation:     snapshotOp(c.ops[OpGeneration], true),
		Title:          snapshotOp(c.ops[OpTitle], false),
		RenderSubmit:   snapshotOp(c.ops[OpRenderSubmit], false),
		RenderPoll:     snapshotOp(c.ops[OpRenderPoll], false),
		RenderDownload: snapshotOp(c.ops[OpRenderDownload], false),
	}
}
