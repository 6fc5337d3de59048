package logger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/botforge/botforge/internal/infrastructure/eventbus"
)

// Recorder is the process-wide emission point: every call lands in the
// zap logger, the debug ring buffer, and (when a bus is attached) the
// event bus for live streaming.
type Recorder struct {
	log *zap.Logger
	buf *Buffer
	bus *eventbus.InMemoryBus
}

// NewRecorder wires the three sinks together. bus may be nil.
func NewRecorder(log *zap.Logger, buf *Buffer, bus *eventbus.InMemoryBus) *Recorder {
	return &Recorder{log: log, buf: buf, bus: bus}
}

// Zap exposes the underlying logger for components that only need
// structured process logs.
func (r *Recorder) Zap() *zap.Logger {
	return r.log
}

// Buffer exposes the ring buffer for the debug API.
func (r *Recorder) Buffer() *Buffer {
	return r.buf
}

// Info records an informational event.
func (r *Recorder) Info(category, message string, fields ...zap.Field) {
	r.emit(LevelInfo, category, message, fields)
}

// Success records a completed operation. zap has no such level, so the
// process log carries it as info with the level preserved in a field.
func (r *Recorder) Success(category, message string, fields ...zap.Field) {
	r.emit(LevelSuccess, category, message, fields)
}

// Warning records a recoverable problem.
func (r *Recorder) Warning(category, message string, fields ...zap.Field) {
	r.emit(LevelWarning, category, message, fields)
}

// Error records a failure.
func (r *Recorder) Error(category, message string, fields ...zap.Field) {
	r.emit(LevelError, category, message, fields)
}

func (r *Recorder) emit(level, category, message string, fields []zap.Field) {
	tagged := append([]zap.Field{
		zap.String("category", category),
		zap.String("level_tag", level),
	}, fields...)

	switch level {
	case LevelError:
		r.log.Error(message, tagged...)
	case LevelWarning:
		r.log.Warn(message, tagged...)
	default:
		r.log.Info(message, tagged...)
	}

	entry := r.buf.Append(level, category, message, flattenFields(fields))

	if r.bus != nil {
		r.bus.Publish(context.Background(), eventbus.NewEvent(eventbus.EventTypeLogEntry, entry))
	}
}

// flattenFields renders zap fields as a stable "k=v" line for the
// buffer's details column.
func flattenFields(fields []zap.Field) string {
	if len(fields) == 0 {
		return ""
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, enc.Fields[k]))
	}
	return strings.Join(parts, " ")
}
