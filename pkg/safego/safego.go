package safego

import (
	"time"

	"go.uber.org/zap"
)

// Go launches fn on a new goroutine with panic recovery. A panic is
// logged with its stack and the goroutine exits cleanly instead of
// taking the process down.
//
// Usage:
//
//	safego.Go(logger, "bot-worker", func() {
//	    // work that might panic
//	})
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Loop runs fn every interval on a new goroutine until stopCh closes.
// Each tick is individually recovered, so one panicking iteration does
// not kill the loop.
func Loop(logger *zap.Logger, name string, interval time.Duration, stopCh <-chan struct{}, fn func()) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				func() {
					defer Recover(logger, name)
					fn()
				}()
			}
		}
	}()
}

// Recover is the shared deferred handler used by Go and Loop. It can
// also be deferred directly inside callbacks that run on foreign
// goroutines (e.g. per-update Telegram dispatch).
func Recover(logger *zap.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("Goroutine panicked",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}
