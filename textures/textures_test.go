package textures

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/computeview/backend/software"
	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/gputypes"
)

func TestRoundTrip(t *testing.T) {
	dev := software.New()
	t.Cleanup(func() { _ = dev.Close() })

	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.RGBA{255, 0, 0, 255})
	src.Set(2, 1, color.RGBA{10, 20, 30, 255})

	for _, f := range []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm} {
		tex, err := FromImage(dev, src, Descriptor{Label: "src", Format: f})
		if err != nil {
			t.Fatalf("FromImage(%v): %v", f, err)
		}
		if tex.Width() != 3 || tex.Height() != 2 {
			t.Fatalf("size = %dx%d, want 3x2", tex.Width(), tex.Height())
		}
		got, err := ToImage(tex)
		if err != nil {
			t.Fatal(err)
		}
		for y := range 2 {
			for x := range 3 {
				if got.RGBAAt(x, y) != src.RGBAAt(x, y) {
					t.Errorf("%v: pixel (%d,%d) = %v, want %v", f, x, y, got.RGBAAt(x, y), src.RGBAAt(x, y))
				}
			}
		}
	}
}

func TestFromImage_GrayAndScale(t *testing.T) {
	dev := software.New()
	t.Cleanup(func() { _ = dev.Close() })

	src := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	tex, err := FromImage(dev, src, Descriptor{Width: 4, Height: 4, Format: gputypes.TextureFormatR8Unorm})
	if err != nil {
		t.Fatal(err)
	}
	if tex.Usage() != gpucore.TextureUsageShaderRead {
		t.Errorf("default usage = %v", tex.Usage())
	}
	pix, _ := tex.ReadPixels()
	for i, v := range pix {
		if v < 199 || v > 201 {
			t.Fatalf("texel %d = %d, want about 200", i, v)
		}
	}
}

func TestFromImage_Nil(t *testing.T) {
	if _, err := FromImage(nil, nil, Descriptor{}); !errors.Is(err, ErrNilImage) {
		t.Errorf("FromImage(nil) = %v, want ErrNilImage", err)
	}
}
