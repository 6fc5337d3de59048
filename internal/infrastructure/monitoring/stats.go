package monitoring

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// How many recent LLM call timestamps the chart ring keeps. At one
// call per second this covers several hours; older calls simply fall
// off the chart.
const callRingCapacity = 10000

// requestStats are the fleet-wide counters, incremented from polling
// workers and admin handlers concurrently.
type requestStats struct {
	MessagesTotal   uint64
	MessagesSuccess uint64
	MessagesFailed  uint64
	APICalls        uint64
}

// SeriesPoint is one chart bucket.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// Monitor collects runtime counters and the LLM call time series
// behind the dashboard and /metrics.
type Monitor struct {
	stats     requestStats
	startTime time.Time

	// Ring of recent LLM call timestamps, for the ai-requests chart.
	mu        sync.Mutex
	callTimes []time.Time
	head      int
	size      int
}

// NewMonitor creates a monitor with the process start time pinned.
func NewMonitor() *Monitor {
	return &Monitor{
		startTime: time.Now(),
		callTimes: make([]time.Time, callRingCapacity),
	}
}

func (m *Monitor) IncMessageTotal()   { atomic.AddUint64(&m.stats.MessagesTotal, 1) }
func (m *Monitor) IncMessageSuccess() { atomic.AddUint64(&m.stats.MessagesSuccess, 1) }
func (m *Monitor) IncMessageFailed()  { atomic.AddUint64(&m.stats.MessagesFailed, 1) }

// IncAPICall counts one LLM provider call and remembers when it
// happened.
func (m *Monitor) IncAPICall() {
	atomic.AddUint64(&m.stats.APICalls, 1)

	now := time.Now()
	m.mu.Lock()
	m.callTimes[m.head] = now
	m.head = (m.head + 1) % len(m.callTimes)
	if m.size < len(m.callTimes) {
		m.size++
	}
	m.mu.Unlock()
}

// Uptime reports how long the process has been running.
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// GetStats returns the dashboard counter block.
func (m *Monitor) GetStats() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := m.Uptime()

	return map[string]interface{}{
		"uptime_seconds":   uptime.Seconds(),
		"messages_total":   atomic.LoadUint64(&m.stats.MessagesTotal),
		"messages_success": atomic.LoadUint64(&m.stats.MessagesSuccess),
		"messages_failed":  atomic.LoadUint64(&m.stats.MessagesFailed),
		"api_calls_total":  atomic.LoadUint64(&m.stats.APICalls),
		"memory_mb":        float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":       runtime.NumGoroutine(),
	}
}

// CallSeries buckets the remembered LLM calls into n intervals of
// width bucket, ending now. Calls older than the window are ignored.
func (m *Monitor) CallSeries(bucket time.Duration, n int) []SeriesPoint {
	m.mu.Lock()
	times := make([]time.Time, 0, m.size)
	for i := 0; i < m.size; i++ {
		times = append(times, m.callTimes[i])
	}
	m.mu.Unlock()

	return BucketTimes(times, time.Now(), bucket, n)
}

// BucketTimes counts timestamps per interval. The window covers n
// buckets of width bucket ending at end; the returned points carry
// each bucket's start time, oldest first.
func BucketTimes(times []time.Time, end time.Time, bucket time.Duration, n int) []SeriesPoint {
	if n <= 0 || bucket <= 0 {
		return nil
	}
	start := end.Add(-bucket * time.Duration(n))
	points := make([]SeriesPoint, n)
	for i := range points {
		points[i].Timestamp = start.Add(bucket * time.Duration(i))
	}
	for _, t := range times {
		if t.Before(start) || !t.Before(end) {
			continue
		}
		idx := int(t.Sub(start) / bucket)
		if idx >= 0 && idx < n {
			points[idx].Count++
		}
	}
	return points
}
