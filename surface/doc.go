// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface provides render destinations for hosts without a window.
//
// Offscreen implements gpucore.RenderDestination on top of any
// gpucore.Device. It owns a small swap chain of drawables; each frame the
// renderer asks for the current pass descriptor and drawable, encodes into
// it and schedules a present. When the device completes the frame the
// drawable is presented: its pixels are read back into an image and it
// returns to the swap chain.
//
// # Frame protocol
//
//	s, err := surface.NewOffscreen(dev, 640, 480)
//	...
//	for range frames {
//		if err := s.Draw(renderer); err != nil {
//			return err
//		}
//	}
//	dev.WaitIdle()
//	img := s.LastPresented()
//
// Draw hands the surface to the renderer and releases the frame's drawable
// afterwards, so the next frame acquires a fresh one.
//
// # Unavailability
//
// SetUnavailable makes the surface report no pass descriptor and no
// drawable, the way a window surface behaves while it is being resized or
// is hidden. Renderers are expected to skip their render pass for such
// frames.
package surface
