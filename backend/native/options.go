//go:build !nogpu

package native

import (
	"log/slog"
	"time"
)

// Options configures a native Device.
type Options struct {
	// Name overrides the adapter name reported by Device.Name.
	Name string

	// FenceTimeout bounds each wait for a submitted command buffer.
	// A timeout marks the device lost.
	FenceTimeout time.Duration

	// Logger receives device diagnostics. Nil keeps the device silent.
	Logger *slog.Logger
}

// Option configures a native Device.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		FenceTimeout: 5 * time.Second,
	}
}

// WithName sets the device name.
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithFenceTimeout sets how long the device waits for a command buffer.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *Options) { o.FenceTimeout = d }
}

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
