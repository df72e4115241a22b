// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"time"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/gputypes"
)

// Options configures an Offscreen surface.
type Options struct {
	// Format is the drawable pixel format.
	Format gputypes.TextureFormat

	// SampleCount is the sample count render pipelines must use.
	SampleCount int

	// Drawables is the swap chain depth.
	Drawables int

	// AcquireTimeout bounds how long acquiring a drawable waits for one to
	// be presented. On timeout the frame has no drawable.
	AcquireTimeout time.Duration

	// LoadAction and ClearColor initialize the drawable each frame.
	LoadAction gpucore.LoadAction
	ClearColor gpucore.ClearColor
}

// Option configures an Offscreen surface.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Format:         gputypes.TextureFormatBGRA8Unorm,
		SampleCount:    1,
		Drawables:      3,
		AcquireTimeout: time.Second,
		LoadAction:     gpucore.LoadActionClear,
		ClearColor:     gpucore.ClearColor{A: 1},
	}
}

// WithFormat sets the drawable pixel format.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(o *Options) { o.Format = f }
}

// WithSampleCount sets the sample count reported to renderers.
func WithSampleCount(n int) Option {
	return func(o *Options) { o.SampleCount = n }
}

// WithDrawables sets the swap chain depth.
func WithDrawables(n int) Option {
	return func(o *Options) { o.Drawables = n }
}

// WithAcquireTimeout sets how long drawable acquisition may block.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *Options) { o.AcquireTimeout = d }
}

// WithClearColor sets the color drawables are cleared to.
func WithClearColor(c gpucore.ClearColor) Option {
	return func(o *Options) {
		o.LoadAction = gpucore.LoadActionClear
		o.ClearColor = c
	}
}

// WithLoadAction sets how drawables are initialized each frame.
func WithLoadAction(a gpucore.LoadAction) Option {
	return func(o *Options) { o.LoadAction = a }
}
