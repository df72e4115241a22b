package computeview

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// attached holds devices in use by pipeline caches, with a reference count,
// so SetLogger reaches them.
var (
	attachedMu sync.Mutex
	attached   = make(map[gpucore.Device]int)
)

// SetLogger configures the logger for computeview, the shader package and
// every device currently used by a PipelineCache. By default nothing is
// logged. Pass nil to restore the silent default.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame diagnostics (skipped render passes, dispatch sizes)
//   - [slog.LevelInfo]: lifecycle events (device opened, pipeline cache built)
//   - [slog.LevelWarn]: non-fatal issues (backend fallback, release errors)
//
// SetLogger is safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	shader.SetLogger(l)

	attachedMu.Lock()
	defer attachedMu.Unlock()
	for dev := range attached {
		propagateLogger(dev, l)
	}
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(dev gpucore.Device, l *slog.Logger) {
	if ls, ok := dev.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

func attachDevice(dev gpucore.Device) {
	attachedMu.Lock()
	defer attachedMu.Unlock()
	attached[dev]++
	propagateLogger(dev, Logger())
}

func detachDevice(dev gpucore.Device) {
	attachedMu.Lock()
	defer attachedMu.Unlock()
	if attached[dev] <= 1 {
		delete(attached, dev)
		return
	}
	attached[dev]--
}
