// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/textures"
	"github.com/gogpu/gputypes"
)

// Surface errors.
var (
	// ErrInvalidSize is returned for non-positive surface dimensions.
	ErrInvalidSize = errors.New("surface: invalid size")

	// ErrClosed is returned when a closed surface is drawn.
	ErrClosed = errors.New("surface: closed")
)

// Renderer draws one frame into a render destination.
type Renderer interface {
	RenderFrame(dest gpucore.RenderDestination) error
}

// Offscreen is a headless render destination with a swap chain of drawables.
//
// Offscreen is safe for concurrent use; drawables are presented from the
// device's completion goroutine while the host acquires the next one.
type Offscreen struct {
	dev  gpucore.Device
	opts Options

	mu          sync.Mutex
	width       int
	height      int
	generation  int
	free        chan *drawable
	allocated   int
	current     *drawable
	claimed     *drawable
	unavailable bool
	closed      bool
	presented   int
	last        *image.RGBA
}

var _ gpucore.RenderDestination = (*Offscreen)(nil)

// NewOffscreen creates a width x height surface whose drawables are
// allocated from dev on first use.
func NewOffscreen(dev gpucore.Device, width, height int, opts ...Option) (*Offscreen, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Drawables < 1 {
		o.Drawables = 1
	}
	if !gpucore.IsColorRenderable(o.Format) {
		return nil, fmt.Errorf("%w: %v", gpucore.ErrUnsupportedFormat, o.Format)
	}

	return &Offscreen{
		dev:    dev,
		opts:   o,
		width:  width,
		height: height,
		free:   make(chan *drawable, o.Drawables),
	}, nil
}

// Size returns the current surface size.
func (s *Offscreen) Size() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// ColorPixelFormat returns the drawable format.
func (s *Offscreen) ColorPixelFormat() gputypes.TextureFormat { return s.opts.Format }

// SampleCount returns the sample count renderers must use.
func (s *Offscreen) SampleCount() int { return s.opts.SampleCount }

// SetUnavailable toggles the unavailable state. While unavailable the
// surface has no pass descriptor and no drawable.
func (s *Offscreen) SetUnavailable(v bool) {
	s.mu.Lock()
	s.unavailable = v
	s.mu.Unlock()
}

// Resize changes the surface size. Drawables of the old size still in
// flight are presented but not reused.
func (s *Offscreen) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if width == s.width && height == s.height {
		return nil
	}
	s.width, s.height = width, height
	s.generation++
	s.free = make(chan *drawable, s.opts.Drawables)
	s.allocated = 0
	s.current = nil
	s.claimed = nil
	return nil
}

// CurrentRenderPassDescriptor returns a pass targeting the current drawable,
// or nil while the surface is unavailable.
func (s *Offscreen) CurrentRenderPassDescriptor() *gpucore.RenderPassDescriptor {
	d := s.acquire()
	if d == nil {
		return nil
	}
	return &gpucore.RenderPassDescriptor{
		Label: "offscreen",
		ColorAttachment: gpucore.ColorAttachment{
			Texture:     d.tex,
			LoadAction:  s.opts.LoadAction,
			StoreAction: gpucore.StoreActionStore,
			ClearColor:  s.opts.ClearColor,
		},
	}
}

// CurrentDrawable returns the frame's drawable, or nil while the surface is
// unavailable or no drawable could be acquired in time. The drawable is
// handed off: the next pass descriptor targets a fresh one, whether or not
// the frame went through Draw.
func (s *Offscreen) CurrentDrawable() gpucore.Drawable {
	d := s.acquire()
	if d == nil {
		return nil
	}
	s.mu.Lock()
	if s.current == d {
		s.current = nil
	}
	s.claimed = d
	s.mu.Unlock()
	return d
}

// Draw renders one frame and releases its drawable. When the renderer fails
// the drawable goes straight back to the swap chain, as does a drawable that
// was acquired for a pass but never handed off.
func (s *Offscreen) Draw(r Renderer) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	err := r.RenderFrame(s)

	s.mu.Lock()
	d, claimed := s.current, s.claimed
	s.current, s.claimed = nil, nil
	if d != nil {
		s.recycleLocked(d)
	}
	if err != nil && claimed != nil && claimed != d {
		s.recycleLocked(claimed)
	}
	s.mu.Unlock()
	return err
}

// Presented returns the number of presented drawables.
func (s *Offscreen) Presented() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}

// LastPresented returns the contents of the most recently presented
// drawable, or nil before the first present.
func (s *Offscreen) LastPresented() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close stops the surface from handing out drawables.
func (s *Offscreen) Close() error {
	s.mu.Lock()
	s.closed = true
	s.current = nil
	s.claimed = nil
	s.mu.Unlock()
	return nil
}

// acquire returns the frame's drawable, allocating one while the swap chain
// is below its depth and otherwise waiting for a presented one.
func (s *Offscreen) acquire() *drawable {
	s.mu.Lock()
	if s.unavailable || s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.current != nil {
		d := s.current
		s.mu.Unlock()
		return d
	}
	select {
	case d := <-s.free:
		s.current = d
		s.mu.Unlock()
		return d
	default:
	}
	if s.allocated < s.opts.Drawables {
		d, err := s.allocateLocked()
		s.mu.Unlock()
		if err != nil {
			return nil
		}
		return d
	}
	free, gen := s.free, s.generation
	s.mu.Unlock()

	select {
	case d := <-free:
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation || s.closed {
			return nil
		}
		s.current = d
		return d
	case <-time.After(s.opts.AcquireTimeout):
		return nil
	}
}

func (s *Offscreen) allocateLocked() (*drawable, error) {
	tex, err := s.dev.NewTexture(gpucore.TextureDescriptor{
		Label:  fmt.Sprintf("drawable %d", s.allocated),
		Width:  s.width,
		Height: s.height,
		Format: s.opts.Format,
		Usage:  gpucore.TextureUsageRenderTarget | gpucore.TextureUsageShaderRead,
	})
	if err != nil {
		return nil, err
	}
	s.allocated++
	d := &drawable{s: s, tex: tex, generation: s.generation}
	s.current = d
	return d, nil
}

func (s *Offscreen) recycleLocked(d *drawable) {
	if d.generation != s.generation || s.closed {
		return
	}
	select {
	case s.free <- d:
	default:
	}
}

func (s *Offscreen) present(d *drawable) error {
	img, err := textures.ToImage(d.tex)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented++
	if err == nil {
		s.last = img
	}
	s.recycleLocked(d)
	return err
}

// drawable is a swap chain image.
type drawable struct {
	s          *Offscreen
	tex        gpucore.Texture
	generation int
}

func (d *drawable) Texture() gpucore.Texture { return d.tex }

func (d *drawable) Present() error { return d.s.present(d) }
