package computeview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"testing"

	"github.com/gogpu/computeview/backend/software"
	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/computeview/surface"
	"github.com/gogpu/computeview/textures"
	"github.com/gogpu/gputypes"
)

func newDevice(t *testing.T) *software.Device {
	t.Helper()
	dev := software.New(software.WithWorkers(4))
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func newSurface(t *testing.T, dev gpucore.Device, w, h int, opts ...surface.Option) *surface.Offscreen {
	t.Helper()
	s, err := surface.NewOffscreen(dev, w, h, opts...)
	if err != nil {
		t.Fatalf("NewOffscreen: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// bumpHeightmap returns a heightmap with a raised square in the middle and
// a horizontal ramp elsewhere.
func bumpHeightmap(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(x * 255 / max(w-1, 1))
			if x > w/4 && x < 3*w/4 && y > h/4 && y < 3*h/4 {
				v = 255 - v/2
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func newNormalMap(t *testing.T, dev gpucore.Device, dest RenderDestination, w, h int, opts ...OrchestratorOption) *Renderer {
	t.Helper()
	r, err := NewNormalMapRenderer(dev, dest, bumpHeightmap(w, h), opts...)
	if err != nil {
		t.Fatalf("NewNormalMapRenderer: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func readImage(t *testing.T, tex gpucore.Texture) *image.RGBA {
	t.Helper()
	img, err := textures.ToImage(tex)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestBuildPipelineCache_Errors(t *testing.T) {
	dev := newDevice(t)
	lib := shader.NormalMapLibrary()
	format := gputypes.TextureFormatBGRA8Unorm

	tests := []struct {
		name    string
		eps     shader.EntryPoints
		samples int
		wantErr error
	}{
		{
			name:    "missing kernel",
			eps:     shader.EntryPoints{Vertex: shader.BaseVertex, Fragment: shader.BaseFragment, Kernel: "missing"},
			samples: 1,
			wantErr: shader.ErrMissingEntryPoint,
		},
		{
			name:    "missing vertex",
			eps:     shader.EntryPoints{Vertex: "vs_main", Fragment: shader.BaseFragment},
			samples: 1,
			wantErr: shader.ErrMissingEntryPoint,
		},
		{
			name:    "fragment used as kernel",
			eps:     shader.EntryPoints{Vertex: shader.BaseVertex, Fragment: shader.BaseFragment, Kernel: shader.BaseFragment},
			samples: 1,
			wantErr: shader.ErrStageMismatch,
		},
		{
			name:    "unsupported sample count",
			eps:     shader.NormalMapProgram().EntryPoints,
			samples: 2,
			wantErr: gpucore.ErrIncompatiblePipeline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := BuildPipelineCache(dev, lib, tt.eps, format, tt.samples)
			if err == nil {
				_ = c.Close()
				t.Fatal("expected error")
			}
			if !IsConfigError(err) {
				t.Errorf("error %v is not a *ConfigError", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := BuildPipelineCache(nil, lib, shader.NormalMapProgram().EntryPoints, format, 1); !errors.Is(err, ErrNilDevice) {
		t.Errorf("nil device: %v", err)
	}
}

func TestBuildPipelineCache_WithoutKernel(t *testing.T) {
	dev := newDevice(t)
	c, err := BuildPipelineCache(dev, shader.RaytraceLibrary(),
		shader.EntryPoints{Vertex: shader.BaseVertex, Fragment: shader.UVFragment},
		gputypes.TextureFormatRGBA8Unorm, 4)
	if err != nil {
		t.Fatalf("BuildPipelineCache: %v", err)
	}
	defer c.Close()

	if c.ComputePipeline() != nil {
		t.Error("compute pipeline built without a kernel")
	}
	if c.RenderPipeline() == nil || c.CommandQueue() == nil {
		t.Error("render pipeline or queue missing")
	}
	if c.RenderPipeline().SampleCount() != 4 {
		t.Errorf("sample count = %d, want 4", c.RenderPipeline().SampleCount())
	}
}

func TestRenderFrame_NilDestination(t *testing.T) {
	dev := newDevice(t)
	s := newSurface(t, dev, 16, 16)
	r := newNormalMap(t, dev, s, 16, 16)

	if err := r.RenderFrame(nil); err != nil {
		t.Fatalf("RenderFrame(nil): %v", err)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if s.Presented() != 0 {
		t.Errorf("presented %d drawables for a nil destination", s.Presented())
	}
	if r.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", r.Frames())
	}

	// The compute pass still ran.
	img := readImage(t, r.Output())
	if img.RGBAAt(0, 0).A != 255 {
		t.Errorf("normal map not written: %v", img.RGBAAt(0, 0))
	}
}

func TestRenderFrame_StrengthZeroIsFlat(t *testing.T) {
	dev := newDevice(t)
	r := newNormalMap(t, dev, newSurface(t, dev, 24, 10), 24, 10, WithStrength(0))

	if err := r.RenderFrame(nil); err != nil {
		t.Fatal(err)
	}
	_ = dev.WaitIdle()

	img := readImage(t, r.Output())
	want := color.RGBA{128, 128, 255, 255}
	for y := range 10 {
		for x := range 24 {
			if got := img.RGBAAt(x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestRenderFrame_Deterministic(t *testing.T) {
	render := func() []byte {
		dev := newDevice(t)
		r := newNormalMap(t, dev, newSurface(t, dev, 37, 23), 37, 23, WithStrength(3))
		for range 3 {
			if err := r.RenderFrame(nil); err != nil {
				t.Fatal(err)
			}
		}
		_ = dev.WaitIdle()
		return readImage(t, r.Output()).Pix
	}

	a, b := render(), render()
	if !bytes.Equal(a, b) {
		t.Fatal("compute output differs between runs")
	}
}

func TestRenderFrame_StrengthTiltsNormals(t *testing.T) {
	dev := newDevice(t)
	r := newNormalMap(t, dev, newSurface(t, dev, 32, 32), 32, 32, WithStrength(4))
	if err := r.RenderFrame(nil); err != nil {
		t.Fatal(err)
	}
	_ = dev.WaitIdle()

	// On the ramp the height rises to the right, so normals lean left (red < 128).
	c := readImage(t, r.Output()).RGBAAt(2, 2)
	if c.R >= 128 || c.G != 128 || c.B == 255 {
		t.Errorf("ramp normal = %v, want red < 128, green 128, blue < 255", c)
	}
}

// normalMapAt renders one w x h normal map of bumpHeightmap at strength.
func normalMapAt(t *testing.T, w, h int, strength float32) *image.RGBA {
	t.Helper()
	dev := newDevice(t)
	r := newNormalMap(t, dev, newSurface(t, dev, w, h), w, h, WithStrength(strength))
	if err := r.RenderFrame(nil); err != nil {
		t.Fatal(err)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	return readImage(t, r.Output())
}

func TestRenderFrame_UnavailableThenAvailable(t *testing.T) {
	dev := newDevice(t)
	s := newSurface(t, dev, 20, 12)
	r := newNormalMap(t, dev, s, 20, 12)

	s.SetUnavailable(true)
	for i := range 5 {
		r.SetStrength(float32(i + 1))
		if err := s.Draw(r); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	s.SetUnavailable(false)
	r.SetStrength(8)
	if err := s.Draw(r); err != nil {
		t.Fatalf("frame 6: %v", err)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}

	if s.Presented() != 1 {
		t.Fatalf("presented = %d, want 1", s.Presented())
	}
	if r.Frames() != 6 {
		t.Errorf("Frames() = %d, want 6", r.Frames())
	}

	got := s.LastPresented()
	want := normalMapAt(t, 20, 12, 8)
	if !got.Bounds().Eq(want.Bounds()) || !bytes.Equal(got.Pix, want.Pix) {
		t.Fatal("presented drawable does not match the normal map at the latest strength")
	}
	if first := normalMapAt(t, 20, 12, 1); bytes.Equal(got.Pix, first.Pix) {
		t.Fatal("presented drawable shows the first skipped frame's normal map")
	}
}

func TestRenderFrame_Multisampled(t *testing.T) {
	dev := newDevice(t)
	s := newSurface(t, dev, 16, 16, surface.WithSampleCount(4), surface.WithFormat(gputypes.TextureFormatRGBA8Unorm))
	r := newNormalMap(t, dev, s, 16, 16, WithStrength(1))

	if err := s.Draw(r); err != nil {
		t.Fatal(err)
	}
	_ = dev.WaitIdle()

	got := s.LastPresented()
	want := readImage(t, r.Output())
	if got == nil || !bytes.Equal(got.Pix, want.Pix) {
		t.Fatal("multisampled frame does not match the normal map")
	}
}

// countingDevice records every command buffer handed out by its queues.
type countingDevice struct {
	gpucore.Device

	mu      sync.Mutex
	buffers []gpucore.CommandBuffer
}

type countingQueue struct {
	gpucore.CommandQueue
	dev *countingDevice
}

func (d *countingDevice) NewCommandQueue() (gpucore.CommandQueue, error) {
	q, err := d.Device.NewCommandQueue()
	if err != nil {
		return nil, err
	}
	return &countingQueue{CommandQueue: q, dev: d}, nil
}

func (q *countingQueue) NewCommandBuffer() (gpucore.CommandBuffer, error) {
	cb, err := q.CommandQueue.NewCommandBuffer()
	if err == nil {
		q.dev.mu.Lock()
		q.dev.buffers = append(q.dev.buffers, cb)
		q.dev.mu.Unlock()
	}
	return cb, err
}

func TestRenderFrame_FreshCommandBufferPerFrame(t *testing.T) {
	dev := &countingDevice{Device: newDevice(t)}
	s := newSurface(t, dev, 8, 8)
	r := newNormalMap(t, dev, s, 8, 8)

	for range 4 {
		if err := s.Draw(r); err != nil {
			t.Fatal(err)
		}
	}
	_ = dev.WaitIdle()

	if len(dev.buffers) != 4 {
		t.Fatalf("%d command buffers for 4 frames", len(dev.buffers))
	}
	seen := map[gpucore.CommandBuffer]bool{}
	for i, cb := range dev.buffers {
		if seen[cb] {
			t.Fatalf("command buffer %d reused", i)
		}
		seen[cb] = true
		if cb.Status() != gpucore.CommandBufferCompleted {
			t.Errorf("buffer %d status = %v", i, cb.Status())
		}
		if err := cb.Commit(); !errors.Is(err, gpucore.ErrAlreadyCommitted) {
			t.Errorf("recommit buffer %d = %v, want ErrAlreadyCommitted", i, err)
		}
	}
}

func TestRenderFrame_DeviceLost(t *testing.T) {
	dev := newDevice(t)
	r := newNormalMap(t, dev, newSurface(t, dev, 8, 8), 8, 8)

	dev.Lose()
	err := r.RenderFrame(nil)
	if !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("RenderFrame = %v, want ErrDeviceLost", err)
	}
	if r.Frames() != 0 {
		t.Errorf("Frames() = %d after failed commit", r.Frames())
	}
}

func TestRenderFrame_FormatMismatch(t *testing.T) {
	dev := newDevice(t)
	bgra := newSurface(t, dev, 8, 8)
	rgba := newSurface(t, dev, 8, 8, surface.WithFormat(gputypes.TextureFormatRGBA8Unorm))
	r := newNormalMap(t, dev, bgra, 8, 8)

	err := rgba.Draw(r)
	if !IsConfigError(err) || !errors.Is(err, gpucore.ErrIncompatiblePipeline) {
		t.Fatalf("Draw = %v, want ConfigError wrapping ErrIncompatiblePipeline", err)
	}
	if r.Frames() != 0 {
		t.Errorf("Frames() = %d after a rejected frame", r.Frames())
	}

	// The abandoned buffer does not block the next frame.
	if err := bgra.Draw(r); err != nil {
		t.Fatalf("Draw after rejected frame: %v", err)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if r.Frames() != 1 || bgra.Presented() != 1 {
		t.Errorf("frames = %d, presented = %d, want 1 and 1", r.Frames(), bgra.Presented())
	}
}

func TestRaytrace_ComputeOffByDefault(t *testing.T) {
	dev := newDevice(t)
	s := newSurface(t, dev, 8, 4, surface.WithFormat(gputypes.TextureFormatRGBA8Unorm))
	r, err := NewRaytraceRenderer(dev, s, 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.ComputeEnabled() {
		t.Fatal("raytrace compute pass enabled by default")
	}
	if err := s.Draw(r); err != nil {
		t.Fatal(err)
	}
	_ = dev.WaitIdle()

	canvas := readImage(t, r.Output())
	if canvas.RGBAAt(3, 2) != (color.RGBA{}) {
		t.Errorf("canvas written with compute disabled: %v", canvas.RGBAAt(3, 2))
	}
	c := s.LastPresented().RGBAAt(0, 0)
	if c.B != 128 || c.A != 255 {
		t.Errorf("uv quad pixel = %v, want blue 128", c)
	}

	r.SetComputeEnabled(true)
	r.SetStrength(1)
	if err := s.Draw(r); err != nil {
		t.Fatal(err)
	}
	_ = dev.WaitIdle()

	canvas = readImage(t, r.Output())
	if got := canvas.RGBAAt(3, 2); got.B != 255 || got.A != 255 {
		t.Errorf("gradient pixel = %v, want blue 255", got)
	}
	if !bytes.Equal(s.LastPresented().Pix, canvas.Pix) {
		t.Error("presented frame does not show the gradient canvas")
	}
}

func TestRaytrace_ResizeAppliedNextFrame(t *testing.T) {
	dev := newDevice(t)
	s := newSurface(t, dev, 8, 8)
	r, err := NewRaytraceRenderer(dev, s, 8, 8, WithComputeEnabled(true))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	r.Resize(16, 4)
	if r.Output().Width() != 8 {
		t.Fatal("resize applied before the next frame")
	}
	if err := s.Resize(16, 4); err != nil {
		t.Fatal(err)
	}
	if err := s.Draw(r); err != nil {
		t.Fatal(err)
	}
	_ = dev.WaitIdle()

	if w, h := r.Viewport(); w != 16 || h != 4 {
		t.Errorf("Viewport() = %dx%d, want 16x4", w, h)
	}
	if r.Output().Width() != 16 || r.Output().Height() != 4 {
		t.Errorf("canvas = %dx%d, want 16x4", r.Output().Width(), r.Output().Height())
	}
	if got := s.LastPresented().Bounds(); got.Dx() != 16 || got.Dy() != 4 {
		t.Errorf("presented %v, want 16x4", got)
	}
}

func TestRaytrace_EmptyResizeKeepsCanvas(t *testing.T) {
	dev := newDevice(t)
	s := newSurface(t, dev, 8, 8)
	r, err := NewRaytraceRenderer(dev, s, 8, 8, WithComputeEnabled(true))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	r.Resize(8, 8)
	if err := s.Draw(r); err != nil {
		t.Fatal(err)
	}
	r.Resize(0, 0)
	if err := s.Draw(r); err != nil {
		t.Fatalf("Draw after empty resize: %v", err)
	}
	if w, h := r.Viewport(); w != 8 || h != 8 {
		t.Errorf("Viewport() = %dx%d after empty resize, want 8x8", w, h)
	}
	if r.Output().Width() != 8 || r.Output().Height() != 8 {
		t.Errorf("canvas = %dx%d, want 8x8", r.Output().Width(), r.Output().Height())
	}

	r.Resize(8, 4)
	if err := s.Resize(8, 4); err != nil {
		t.Fatal(err)
	}
	if err := s.Draw(r); err != nil {
		t.Fatal(err)
	}
	if err := dev.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if w, h := r.Viewport(); w != 8 || h != 4 {
		t.Errorf("Viewport() = %dx%d, want 8x4", w, h)
	}
	if r.Output().Height() != 4 {
		t.Errorf("canvas height = %d, want 4", r.Output().Height())
	}
	if r.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", r.Frames())
	}
}

func TestNewFrameOrchestrator_Validation(t *testing.T) {
	dev := newDevice(t)
	c, err := BuildPipelineCache(dev, shader.NormalMapLibrary(), shader.NormalMapProgram().EntryPoints,
		gputypes.TextureFormatBGRA8Unorm, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewFrameOrchestrator(c); !errors.Is(err, ErrNoOutput) {
		t.Errorf("no output: %v", err)
	}
	_ = c.Close()
	if _, err := NewFrameOrchestrator(c); !errors.Is(err, ErrClosed) {
		t.Errorf("closed cache: %v", err)
	}
}

// recordHandler captures log messages.
type recordHandler struct {
	mu   sync.Mutex
	msgs []string
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.msgs = append(h.msgs, r.Message)
	h.mu.Unlock()
	return nil
}
func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) has(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func TestSetLogger(t *testing.T) {
	h := &recordHandler{}
	SetLogger(slog.New(h))
	t.Cleanup(func() { SetLogger(nil) })

	dev := newDevice(t)
	r := newNormalMap(t, dev, newSurface(t, dev, 4, 4), 4, 4)
	if err := r.RenderFrame(nil); err != nil {
		t.Fatal(err)
	}
	_ = dev.WaitIdle()

	for _, msg := range []string{"pipeline cache built", "compute pass encoded", "render pass skipped: destination unavailable"} {
		if !h.has(msg) {
			t.Errorf("missing log record %q", msg)
		}
	}
	if Logger().Handler() != h {
		t.Error("Logger() does not return the configured logger")
	}
}
