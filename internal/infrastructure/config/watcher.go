package config

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher polls the config file's mtime and reloads on change. Only a
// subset of settings can take effect without a restart; the onChange
// callback decides which (currently the log level).
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(*Config)
	logger   *zap.Logger

	mu      sync.Mutex
	lastMod time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewWatcher creates a watcher for path. The callback runs on the
// watcher goroutine; keep it short.
func NewWatcher(path string, onChange func(*Config), logger *zap.Logger) *Watcher {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		logger:   logger.With(zap.String("component", "config-watcher")),
		stopCh:   make(chan struct{}),
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// Start blocks until Stop; run it under safego.Go.
func (w *Watcher) Start() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkOnce()
		}
	}
}

// Stop terminates the watch loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stopCh) })
}

func (w *Watcher) checkOnce() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.lastMod)
	if changed {
		w.lastMod = info.ModTime()
	}
	w.mu.Unlock()
	if !changed {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping current settings",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("Config file changed, applying live settings",
		zap.String("path", w.path),
	)
	w.onChange(cfg)
}
