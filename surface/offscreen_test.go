package surface

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/computeview/backend/software"
	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/gputypes"
)

// rendererFunc adapts a function to Renderer.
type rendererFunc func(gpucore.RenderDestination) error

func (f rendererFunc) RenderFrame(d gpucore.RenderDestination) error { return f(d) }

func newTestSurface(t *testing.T, opts ...Option) (*Offscreen, *software.Device) {
	t.Helper()
	dev := software.New()
	t.Cleanup(func() { _ = dev.Close() })
	s, err := NewOffscreen(dev, 4, 4, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s, dev
}

func TestNewOffscreen_Errors(t *testing.T) {
	dev := software.New()
	defer dev.Close()

	if _, err := NewOffscreen(dev, 0, 4); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("zero width: %v", err)
	}
	if _, err := NewOffscreen(dev, 4, 4, WithFormat(gputypes.TextureFormatR8Unorm)); !errors.Is(err, gpucore.ErrUnsupportedFormat) {
		t.Errorf("R8 drawables: %v", err)
	}
}

func TestOffscreen_SameDrawableWithinFrame(t *testing.T) {
	s, _ := newTestSurface(t)

	err := s.Draw(rendererFunc(func(d gpucore.RenderDestination) error {
		pass := d.CurrentRenderPassDescriptor()
		dr := d.CurrentDrawable()
		if pass == nil || dr == nil {
			t.Fatal("surface unavailable")
		}
		if pass.ColorAttachment.Texture != dr.Texture() {
			t.Error("pass descriptor targets another texture than the drawable")
		}
		if pass.ColorAttachment.LoadAction != gpucore.LoadActionClear {
			t.Errorf("load action = %v, want Clear", pass.ColorAttachment.LoadAction)
		}
		if d.ColorPixelFormat() != gputypes.TextureFormatBGRA8Unorm || d.SampleCount() != 1 {
			t.Errorf("format/samples = %v/%d", d.ColorPixelFormat(), d.SampleCount())
		}
		return dr.Present()
	}))
	if err != nil {
		t.Fatal(err)
	}
	if s.Presented() != 1 || s.LastPresented() == nil {
		t.Fatalf("presented = %d", s.Presented())
	}
}

func TestOffscreen_DrawableHandedOffWithoutDraw(t *testing.T) {
	s, _ := newTestSurface(t, WithDrawables(2))

	// Frames rendered directly, not through Draw.
	var frames []gpucore.Texture
	for i := range 2 {
		pass := s.CurrentRenderPassDescriptor()
		dr := s.CurrentDrawable()
		if pass == nil || dr == nil {
			t.Fatalf("frame %d: surface unavailable", i)
		}
		if pass.ColorAttachment.Texture != dr.Texture() {
			t.Errorf("frame %d: pass descriptor targets another texture than the drawable", i)
		}
		frames = append(frames, dr.Texture())
	}
	if frames[0] == frames[1] {
		t.Fatal("consecutive frames share a drawable")
	}
}

func TestOffscreen_Unavailable(t *testing.T) {
	s, _ := newTestSurface(t)
	s.SetUnavailable(true)

	if s.CurrentRenderPassDescriptor() != nil {
		t.Error("pass descriptor while unavailable")
	}
	if s.CurrentDrawable() != nil {
		t.Error("drawable while unavailable")
	}

	s.SetUnavailable(false)
	if s.CurrentDrawable() == nil {
		t.Error("no drawable after becoming available")
	}
}

func TestOffscreen_SwapChainRecycles(t *testing.T) {
	s, _ := newTestSurface(t, WithDrawables(2))

	// Each frame presents the previous frame's drawable, keeping one in flight.
	seen := map[gpucore.Texture]bool{}
	var inFlight gpucore.Drawable
	for range 6 {
		err := s.Draw(rendererFunc(func(d gpucore.RenderDestination) error {
			dr := d.CurrentDrawable()
			if dr == nil {
				t.Fatal("no drawable")
			}
			seen[dr.Texture()] = true
			if inFlight != nil {
				if err := inFlight.Present(); err != nil {
					return err
				}
			}
			inFlight = dr
			return nil
		}))
		if err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 2 {
		t.Errorf("swap chain used %d textures, want 2", len(seen))
	}
	if s.Presented() != 5 {
		t.Errorf("presented = %d, want 5", s.Presented())
	}
}

func TestOffscreen_AcquireTimesOut(t *testing.T) {
	s, _ := newTestSurface(t, WithDrawables(1), WithAcquireTimeout(10*time.Millisecond))

	hold := rendererFunc(func(d gpucore.RenderDestination) error {
		d.CurrentDrawable()
		return nil
	})
	if err := s.Draw(hold); err != nil {
		t.Fatal(err)
	}
	// The only drawable was never presented.
	if s.CurrentDrawable() != nil {
		t.Fatal("acquired a drawable from an exhausted swap chain")
	}
}

func TestOffscreen_FailedFrameRecycles(t *testing.T) {
	s, _ := newTestSurface(t, WithDrawables(1), WithAcquireTimeout(10*time.Millisecond))

	boom := errors.New("boom")
	err := s.Draw(rendererFunc(func(d gpucore.RenderDestination) error {
		d.CurrentDrawable()
		return boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("Draw = %v", err)
	}
	if s.CurrentDrawable() == nil {
		t.Fatal("drawable of failed frame not returned to the swap chain")
	}
}

func TestOffscreen_Resize(t *testing.T) {
	s, _ := newTestSurface(t)

	if err := s.Resize(8, 2); err != nil {
		t.Fatal(err)
	}
	if w, h := s.Size(); w != 8 || h != 2 {
		t.Errorf("Size() = %dx%d", w, h)
	}
	dr := s.CurrentDrawable()
	if dr.Texture().Width() != 8 || dr.Texture().Height() != 2 {
		t.Errorf("drawable = %dx%d, want 8x2", dr.Texture().Width(), dr.Texture().Height())
	}
	if err := s.Resize(-1, 2); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("negative resize: %v", err)
	}
}

func TestOffscreen_Closed(t *testing.T) {
	s, _ := newTestSurface(t)
	_ = s.Close()
	if err := s.Draw(rendererFunc(func(gpucore.RenderDestination) error { return nil })); !errors.Is(err, ErrClosed) {
		t.Errorf("Draw after Close = %v", err)
	}
	if s.CurrentDrawable() != nil {
		t.Error("drawable after Close")
	}
}
