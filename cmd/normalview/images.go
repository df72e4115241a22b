package main

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	// Heightmap decoders.
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// proceduralHeightmap returns a field of smooth bumps over a shallow ramp.
func proceduralHeightmap(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	bumps := []struct{ cx, cy, r, amp float64 }{
		{0.30, 0.35, 0.18, 0.55},
		{0.70, 0.30, 0.12, 0.40},
		{0.55, 0.70, 0.22, 0.65},
		{0.20, 0.78, 0.08, 0.30},
	}
	for y := range h {
		v := (float64(y) + 0.5) / float64(h)
		for x := range w {
			u := (float64(x) + 0.5) / float64(w)
			z := 0.15 * u
			for _, b := range bumps {
				d := math.Hypot(u-b.cx, v-b.cy) / b.r
				if d < 1 {
					z += b.amp * 0.5 * (1 + math.Cos(math.Pi*d))
				}
			}
			z += 0.03 * math.Sin(40*u) * math.Sin(40*v)
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(255 * math.Max(0, math.Min(1, z))))})
		}
	}
	return img
}
