package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
)

// PrometheusHandler serves the counters in Prometheus text exposition
// format without pulling in the client_golang dependency. Mount at
// "/metrics". activeBots reports the live worker count and may be nil.
func (m *Monitor) PrometheusHandler(activeBots func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		running := 0
		if activeBots != nil {
			running = activeBots()
		}

		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			{"botforge_messages_total", "Total chat messages processed", "counter", atomic.LoadUint64(&m.stats.MessagesTotal)},
			{"botforge_messages_success_total", "Messages answered without error", "counter", atomic.LoadUint64(&m.stats.MessagesSuccess)},
			{"botforge_messages_failed_total", "Messages that ended in an error reply", "counter", atomic.LoadUint64(&m.stats.MessagesFailed)},
			{"botforge_llm_calls_total", "LLM provider calls issued", "counter", atomic.LoadUint64(&m.stats.APICalls)},

			{"botforge_active_bots", "Bots with a live polling worker", "gauge", running},
			{"botforge_uptime_seconds", "Process uptime in seconds", "gauge", m.Uptime().Seconds()},
			{"botforge_memory_alloc_bytes", "Current memory allocation in bytes", "gauge", memStats.Alloc},
			{"botforge_memory_sys_bytes", "Total memory obtained from the OS", "gauge", memStats.Sys},
			{"botforge_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
			{"botforge_gc_cycles_total", "Completed GC cycles", "counter", memStats.NumGC},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			switch v := l.val.(type) {
			case uint64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case uint32:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case float64:
				fmt.Fprintf(w, "%s %f\n", l.name, v)
			}
			fmt.Fprintln(w)
		}
	})
}
