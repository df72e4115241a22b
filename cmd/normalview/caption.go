package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const captionSize = 13

// drawCaption writes label in white over a translucent band along the
// bottom edge of img.
func drawCaption(img *image.RGBA, label string) error {
	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    captionSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("create face: %w", err)
	}
	defer func() { _ = face.Close() }()

	m := face.Metrics()
	lineHeight := (m.Ascent + m.Descent).Ceil()
	b := img.Bounds()
	band := image.Rect(b.Min.X, b.Max.Y-lineHeight-8, b.Max.X, b.Max.Y)
	draw.Draw(img, band, image.NewUniform(color.NRGBA{A: 160}), image.Point{}, draw.Over)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(band.Min.X + 6), Y: fixed.I(band.Min.Y+4) + m.Ascent},
	}
	drawer.DrawString(label)
	return nil
}
