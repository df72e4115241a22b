//go:build !nogpu

package native

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// newNoopDevice wraps a noop HAL device. The noop backend accepts every
// call without touching hardware.
func newNoopDevice(t *testing.T) (*Device, hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d, err := NewFromHAL(openDev.Device, openDev.Queue, WithName("noop"), WithFenceTimeout(time.Second))
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		t.Fatalf("NewFromHAL failed: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return d, openDev.Device, openDev.Queue
}

func TestComputePipelineReportsWorkgroup(t *testing.T) {
	d, _, _ := newNoopDevice(t)

	tests := []struct {
		name      string
		program   shader.Program
		function  string
		wantGroup gpucore.Size
	}{
		{"normals", shader.NormalMapProgram(), "tangentSpaceNormals", gpucore.Size{Width: 8, Height: 8, Depth: 1}},
		{"gradient", shader.RaytraceProgram(), "gradient", gpucore.Size{Width: 16, Height: 4, Depth: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := d.NewComputePipeline(gpucore.ComputePipelineDescriptor{
				Label:    tt.name,
				Library:  tt.program.Library,
				Function: tt.function,
			})
			if err != nil {
				t.Fatalf("NewComputePipeline: %v", err)
			}
			if got := gpucore.ThreadgroupSize(p); got != tt.wantGroup {
				t.Errorf("ThreadgroupSize = %v, want %v", got, tt.wantGroup)
			}
		})
	}
}

func TestPipelineErrors(t *testing.T) {
	d, _, _ := newNoopDevice(t)
	lib := shader.NormalMapProgram().Library

	_, err := d.NewComputePipeline(gpucore.ComputePipelineDescriptor{Library: lib, Function: "base_fragment"})
	if !errors.Is(err, shader.ErrStageMismatch) {
		t.Errorf("compute from fragment: err = %v, want ErrStageMismatch", err)
	}

	tests := []struct {
		name    string
		format  gputypes.TextureFormat
		samples int
		want    error
	}{
		{"r8 target", gputypes.TextureFormatR8Unorm, 1, gpucore.ErrIncompatiblePipeline},
		{"two samples", gputypes.TextureFormatBGRA8Unorm, 2, gpucore.ErrIncompatiblePipeline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.NewRenderPipeline(gpucore.RenderPipelineDescriptor{
				Library:          lib,
				VertexFunction:   "base_vertex",
				FragmentFunction: "base_fragment",
				ColorFormat:      tt.format,
				SampleCount:      tt.samples,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTextureKinds(t *testing.T) {
	d, _, _ := newNoopDevice(t)

	storage, err := d.NewTexture(gpucore.TextureDescriptor{
		Label: "heights", Width: 4, Height: 4,
		Format: gputypes.TextureFormatR8Unorm,
		Usage:  gpucore.TextureUsageShaderRead,
	})
	if err != nil {
		t.Fatalf("storage texture: %v", err)
	}
	if tex := storage.(*Texture); tex.buf == nil || tex.tex != nil {
		t.Error("shader texture should be a storage buffer only")
	}

	target, err := d.NewTexture(gpucore.TextureDescriptor{
		Label: "target", Width: 4, Height: 4,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Usage:  gpucore.TextureUsageRenderTarget | gpucore.TextureUsageShaderRead,
	})
	if err != nil {
		t.Fatalf("render target: %v", err)
	}
	if tex := target.(*Texture); tex.tex == nil || tex.buf != nil {
		t.Error("render target should be a HAL texture only")
	}

	_, err = d.NewTexture(gpucore.TextureDescriptor{
		Width: 4, Height: 4,
		Format: gputypes.TextureFormatR8Unorm,
		Usage:  gpucore.TextureUsageRenderTarget,
	})
	if !errors.Is(err, gpucore.ErrUnsupportedFormat) {
		t.Errorf("R8 render target: err = %v, want ErrUnsupportedFormat", err)
	}

	if err := storage.WritePixels(make([]byte, 3), 0); !errors.Is(err, gpucore.ErrPixelDataSize) {
		t.Errorf("short WritePixels: err = %v, want ErrPixelDataSize", err)
	}
}

func TestPackTexels(t *testing.T) {
	tests := []struct {
		name   string
		format gputypes.TextureFormat
		pix    []byte
		stride int
		packed []byte
	}{
		{
			name:   "rgba",
			format: gputypes.TextureFormatRGBA8Unorm,
			pix:    []byte{1, 2, 3, 4},
			stride: 4,
			packed: []byte{1, 2, 3, 4},
		},
		{
			name:   "bgra swizzles to rgba",
			format: gputypes.TextureFormatBGRA8Unorm,
			pix:    []byte{10, 20, 30, 40},
			stride: 4,
			packed: []byte{30, 20, 10, 40},
		},
		{
			name:   "r8 keeps red byte with padded rows",
			format: gputypes.TextureFormatR8Unorm,
			pix:    []byte{7, 0xEE, 9, 0xEE},
			stride: 2,
			packed: []byte{7, 0, 0, 0, 9, 0, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpp := gpucore.BytesPerPixel(tt.format)
			h := len(tt.packed) / 4
			got := packTexels(tt.format, tt.pix, 1, h, tt.stride)
			if !bytes.Equal(got, tt.packed) {
				t.Fatalf("packTexels = %v, want %v", got, tt.packed)
			}

			back := unpackTexels(tt.format, got, h)
			want := make([]byte, 0, h*bpp)
			for y := range h {
				want = append(want, tt.pix[y*tt.stride:y*tt.stride+bpp]...)
			}
			if !bytes.Equal(back, want) {
				t.Errorf("unpackTexels = %v, want %v", back, want)
			}
		})
	}
}

func TestEncodingErrorsFailCommit(t *testing.T) {
	d, _, _ := newNoopDevice(t)
	prog := shader.NormalMapProgram()

	kernel, err := d.NewComputePipeline(gpucore.ComputePipelineDescriptor{Library: prog.Library, Function: "tangentSpaceNormals"})
	if err != nil {
		t.Fatal(err)
	}
	in, _ := d.NewTexture(gpucore.TextureDescriptor{Width: 8, Height: 8, Format: gputypes.TextureFormatR8Unorm, Usage: gpucore.TextureUsageShaderRead})
	out, _ := d.NewTexture(gpucore.TextureDescriptor{Width: 8, Height: 8, Format: gputypes.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageShaderWrite})
	target, _ := d.NewTexture(gpucore.TextureDescriptor{Width: 8, Height: 8, Format: gputypes.TextureFormatBGRA8Unorm, Usage: gpucore.TextureUsageRenderTarget})

	tests := []struct {
		name   string
		encode func(enc gpucore.ComputeEncoder)
		want   error
	}{
		{
			name: "wrong threadgroup",
			encode: func(enc gpucore.ComputeEncoder) {
				enc.SetPipeline(kernel)
				enc.SetTexture(in, 0)
				enc.SetTexture(out, 1)
				enc.DispatchThreadgroups(gpucore.Size{Width: 1, Height: 1, Depth: 1}, gpucore.Size{Width: 32, Height: 1, Depth: 1})
			},
			want: gpucore.ErrIncompatiblePipeline,
		},
		{
			name: "render target bound to kernel",
			encode: func(enc gpucore.ComputeEncoder) {
				enc.SetPipeline(kernel)
				enc.SetTexture(target, 1)
			},
			want: gpucore.ErrTextureUsage,
		},
		{
			name: "no pipeline",
			encode: func(enc gpucore.ComputeEncoder) {
				enc.DispatchThreadgroups(gpucore.Size{Width: 1, Height: 1, Depth: 1}, gpucore.Size{Width: 8, Height: 8, Depth: 1})
			},
			want: gpucore.ErrNoPipeline,
		},
		{
			name: "read-only output",
			encode: func(enc gpucore.ComputeEncoder) {
				enc.SetPipeline(kernel)
				enc.SetTexture(out, 0)
				enc.SetTexture(in, 1)
				enc.DispatchThreadgroups(gpucore.Size{Width: 1, Height: 1, Depth: 1}, gpucore.Size{Width: 8, Height: 8, Depth: 1})
			},
			want: gpucore.ErrTextureUsage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := d.NewCommandQueue()
			if err != nil {
				t.Fatal(err)
			}
			cb, err := q.NewCommandBuffer()
			if err != nil {
				t.Fatal(err)
			}
			enc, err := cb.BeginComputePass(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			tt.encode(enc)
			_ = enc.End()

			if err := cb.Commit(); !errors.Is(err, tt.want) {
				t.Errorf("Commit err = %v, want %v", err, tt.want)
			}
			if cb.Status() != gpucore.CommandBufferError {
				t.Errorf("status = %v, want Error", cb.Status())
			}
			if err := cb.Commit(); !errors.Is(err, gpucore.ErrAlreadyCommitted) {
				t.Errorf("second Commit err = %v, want ErrAlreadyCommitted", err)
			}
		})
	}
}

func TestRenderPassValidation(t *testing.T) {
	d, _, _ := newNoopDevice(t)
	q, _ := d.NewCommandQueue()
	cb, _ := q.NewCommandBuffer()

	sampled, _ := d.NewTexture(gpucore.TextureDescriptor{Width: 2, Height: 2, Format: gputypes.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageShaderRead})
	_, err := cb.BeginRenderPass(&gpucore.RenderPassDescriptor{
		Label:           "not a target",
		ColorAttachment: gpucore.ColorAttachment{Texture: sampled},
	})
	if !errors.Is(err, gpucore.ErrTextureUsage) {
		t.Errorf("storage texture as attachment: err = %v, want ErrTextureUsage", err)
	}

	target, _ := d.NewTexture(gpucore.TextureDescriptor{Width: 2, Height: 2, Format: gputypes.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageRenderTarget})
	p, err := d.NewRenderPipeline(gpucore.RenderPipelineDescriptor{
		Library:          shader.NormalMapProgram().Library,
		VertexFunction:   "base_vertex",
		FragmentFunction: "base_fragment",
		ColorFormat:      gputypes.TextureFormatBGRA8Unorm,
		SampleCount:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	enc, err := cb.BeginRenderPass(&gpucore.RenderPassDescriptor{
		Label:           "mismatch",
		ColorAttachment: gpucore.ColorAttachment{Texture: target, LoadAction: gpucore.LoadActionClear},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cb.BeginComputePass("second"); !errors.Is(err, gpucore.ErrEncoderActive) {
		t.Errorf("second pass: err = %v, want ErrEncoderActive", err)
	}
	enc.SetPipeline(p)
	enc.SetFragmentTexture(sampled, 0)
	enc.Draw(0, 6)
	if err := enc.End(); !errors.Is(err, gpucore.ErrIncompatiblePipeline) {
		t.Errorf("End err = %v, want ErrIncompatiblePipeline", err)
	}
}

func TestCommandBufferLifecycle(t *testing.T) {
	d, _, _ := newNoopDevice(t)
	q, _ := d.NewCommandQueue()
	cb, _ := q.NewCommandBuffer()
	cb.SetLabel("empty")

	if err := cb.WaitUntilCompleted(); !errors.Is(err, errNotCommitted) {
		t.Errorf("wait before commit: err = %v", err)
	}
	done := make(chan gpucore.CommandBufferStatus, 1)
	cb.AddCompletedHandler(func(c gpucore.CommandBuffer) { done <- c.Status() })

	if err := cb.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := cb.WaitUntilCompleted(); err != nil {
		if errors.Is(err, gpucore.ErrDeviceLost) {
			t.Skipf("noop fences did not signal: %v", err)
		}
		t.Fatalf("WaitUntilCompleted: %v", err)
	}
	if st := <-done; st != gpucore.CommandBufferCompleted {
		t.Errorf("handler saw %v, want Completed", st)
	}
	if err := d.WaitIdle(); err != nil {
		t.Errorf("WaitIdle: %v", err)
	}
}

func TestClose(t *testing.T) {
	d, _, _ := newNoopDevice(t)
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	_, err := d.NewTexture(gpucore.TextureDescriptor{Width: 1, Height: 1, Format: gputypes.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageShaderRead})
	if !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("NewTexture after Close: err = %v, want ErrDeviceClosed", err)
	}
}

type halProvider struct {
	device, queue any
}

type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

type mockQueue struct{}

type mockAdapter struct{}

func (p *halProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (p *halProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (p *halProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (p *halProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p *halProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }
func (p *halProvider) HalDevice() any                        { return p.device }
func (p *halProvider) HalQueue() any                         { return p.queue }

func TestNewFromProvider(t *testing.T) {
	_, device, queue := newNoopDevice(t)

	d, err := NewFromProvider(&halProvider{device: device, queue: queue})
	if err != nil {
		t.Fatalf("NewFromProvider: %v", err)
	}
	if d.Name() != "shared" {
		t.Errorf("Name = %q, want shared", d.Name())
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	_, err = NewFromProvider(&halProvider{device: "not a device", queue: queue})
	if !errors.Is(err, ErrProviderUnsupported) {
		t.Errorf("bad device: err = %v, want ErrProviderUnsupported", err)
	}
}
