package software

import "log/slog"

// Options configures a software Device.
type Options struct {
	// Name is reported by Device.Name.
	Name string

	// Workers is the number of dispatch workers. Zero uses GOMAXPROCS.
	Workers int

	// ThreadExecutionWidth is reported by compute pipelines.
	ThreadExecutionWidth int

	// MaxThreadsPerThreadgroup is reported by compute pipelines and bounds
	// the threadgroup size accepted by dispatches.
	MaxThreadsPerThreadgroup int

	// Logger receives device diagnostics. Nil keeps the device silent.
	Logger *slog.Logger
}

// Option configures a software Device.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Name:                     "software",
		ThreadExecutionWidth:     32,
		MaxThreadsPerThreadgroup: 1024,
	}
}

// WithName sets the device name.
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithWorkers sets the number of dispatch workers.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithThreadgroupLimits sets the execution width and thread budget that
// compute pipelines report.
func WithThreadgroupLimits(width, maxThreads int) Option {
	return func(o *Options) {
		o.ThreadExecutionWidth = width
		o.MaxThreadsPerThreadgroup = maxThreads
	}
}

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
