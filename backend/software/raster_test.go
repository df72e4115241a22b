package software

import (
	"testing"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/gputypes"
)

func renderUV(t *testing.T, d *Device, target *Texture, samples, vertexCount int, load gpucore.LoadAction) {
	t.Helper()
	rp, err := d.NewRenderPipeline(gpucore.RenderPipelineDescriptor{
		Library:          shader.RaytraceLibrary(),
		VertexFunction:   shader.BaseVertex,
		FragmentFunction: shader.UVFragment,
		ColorFormat:      target.Format(),
		SampleCount:      samples,
	})
	if err != nil {
		t.Fatal(err)
	}
	q, _ := d.NewCommandQueue()
	cb, _ := q.NewCommandBuffer()
	enc, err := cb.BeginRenderPass(&gpucore.RenderPassDescriptor{
		Label: "uv",
		ColorAttachment: gpucore.ColorAttachment{
			Texture:    target,
			LoadAction: load,
			ClearColor: gpucore.ClearColor{A: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	enc.SetPipeline(rp)
	enc.Draw(0, vertexCount)
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}
	if err := cb.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := cb.WaitUntilCompleted(); err != nil {
		t.Fatal(err)
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestRender_FullScreenQuad(t *testing.T) {
	for _, samples := range []int{1, 4} {
		d := newTestDevice(t)
		target := mustTexture(t, d, 8, 4, gputypes.TextureFormatBGRA8Unorm, gpucore.TextureUsageRenderTarget)
		renderUV(t, d, target, samples, 6, gpucore.LoadActionClear)

		pix, _ := target.ReadPixels()
		for y := range 4 {
			for x := range 8 {
				i := (y*8 + x) * 4
				wantR := quantize((float32(x) + 0.5) / 8)
				wantG := quantize((float32(y) + 0.5) / 4)
				if absDiff(pix[i+2], wantR) > 1 || absDiff(pix[i+1], wantG) > 1 || pix[i] != 128 || pix[i+3] != 255 {
					t.Fatalf("samples=%d pixel (%d,%d) = %v, want r=%d g=%d b=128", samples, x, y, pix[i:i+4], wantR, wantG)
				}
			}
		}
	}
}

func TestRender_SingleTriangle(t *testing.T) {
	d := newTestDevice(t)
	target := mustTexture(t, d, 4, 4, gputypes.TextureFormatRGBA8Unorm, gpucore.TextureUsageRenderTarget)
	renderUV(t, d, target, 1, 3, gpucore.LoadActionClear)

	pix, _ := target.ReadPixels()
	at := func(x, y int) []byte { i := (y*4 + x) * 4; return pix[i : i+4] }

	if c := at(0, 3); c[2] != 128 {
		t.Errorf("bottom-left pixel not covered: %v", c)
	}
	if c := at(3, 0); c[0] != 0 || c[1] != 0 || c[2] != 0 || c[3] != 255 {
		t.Errorf("top-right pixel = %v, want clear color", c)
	}
}

func TestRender_LoadKeepsContents(t *testing.T) {
	d := newTestDevice(t)
	target := mustTexture(t, d, 2, 2, gputypes.TextureFormatRGBA8Unorm, gpucore.TextureUsageRenderTarget)
	seed := []byte{
		10, 20, 30, 40, 50, 60, 70, 80,
		90, 100, 110, 120, 130, 140, 150, 160,
	}
	if err := target.WritePixels(seed, 0); err != nil {
		t.Fatal(err)
	}
	// Zero vertices: the pass only loads and stores.
	renderUV(t, d, target, 4, 0, gpucore.LoadActionLoad)

	got, _ := target.ReadPixels()
	for i := range seed {
		if got[i] != seed[i] {
			t.Fatalf("contents changed: got %v, want %v", got, seed)
		}
	}
}

func TestRender_FormatMismatch(t *testing.T) {
	d := newTestDevice(t)
	target := mustTexture(t, d, 2, 2, gputypes.TextureFormatRGBA8Unorm, gpucore.TextureUsageRenderTarget)
	rp, err := d.NewRenderPipeline(gpucore.RenderPipelineDescriptor{
		Library:          shader.RaytraceLibrary(),
		VertexFunction:   shader.BaseVertex,
		FragmentFunction: shader.UVFragment,
		ColorFormat:      gputypes.TextureFormatBGRA8Unorm,
		SampleCount:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	q, _ := d.NewCommandQueue()
	cb, _ := q.NewCommandBuffer()
	enc, _ := cb.BeginRenderPass(&gpucore.RenderPassDescriptor{ColorAttachment: gpucore.ColorAttachment{Texture: target}})
	enc.SetPipeline(rp)
	enc.Draw(0, 6)
	if err := enc.End(); err == nil {
		t.Fatal("expected format mismatch error")
	}
}

func BenchmarkDispatchNormals(b *testing.B) {
	d := New()
	defer d.Close()

	const size = 512
	height, _ := d.NewTexture(gpucore.TextureDescriptor{Width: size, Height: size,
		Format: gputypes.TextureFormatR8Unorm, Usage: gpucore.TextureUsageShaderRead})
	out, _ := d.NewTexture(gpucore.TextureDescriptor{Width: size, Height: size,
		Format: gputypes.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageShaderRead | gpucore.TextureUsageShaderWrite})
	cp, err := d.NewComputePipeline(gpucore.ComputePipelineDescriptor{Library: shader.NormalMapLibrary(), Function: shader.TangentSpaceNormals})
	if err != nil {
		b.Fatal(err)
	}
	q, _ := d.NewCommandQueue()
	group := gpucore.ThreadgroupSize(cp)
	groups := gpucore.ThreadgroupsFor(size, size, group)

	b.ResetTimer()
	for range b.N {
		cb, _ := q.NewCommandBuffer()
		enc, _ := cb.BeginComputePass("normals")
		enc.SetPipeline(cp)
		enc.SetTexture(height, 0)
		enc.SetTexture(out, 1)
		enc.SetBytes(floatBytes(1), 0)
		enc.DispatchThreadgroups(groups, group)
		_ = enc.End()
		_ = cb.Commit()
		_ = cb.WaitUntilCompleted()
	}
}
