// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package computeview runs a compute-then-render frame loop on a GPU device.
//
// Two objects carry the loop:
//
//   - [PipelineCache] holds the long-lived GPU state: an optional compute
//     pipeline, the render pipeline and the command queue. It is built once
//     from named shader entry points and the surface's pixel format and
//     sample count.
//   - [FrameOrchestrator] encodes one frame per call into a fresh command
//     buffer: a compute dispatch covering the output texture, then a
//     six-vertex full-screen quad that samples it, then a present of the
//     surface's drawable once the device completes the buffer.
//
// # Quick start
//
//	dev := software.New()
//	defer dev.Close()
//
//	s, _ := surface.NewOffscreen(dev, 512, 512)
//	r, err := computeview.NewNormalMapRenderer(dev, s, heightmap,
//		computeview.WithStrength(2))
//	if err != nil {
//		log.Fatal(err) // configuration errors are fatal
//	}
//	defer r.Close()
//
//	for range 60 {
//		if err := s.Draw(r); err != nil {
//			log.Fatal(err)
//		}
//	}
//	dev.WaitIdle()
//	png.Encode(out, s.LastPresented())
//
// # Errors
//
// Configuration problems (missing entry points, stage mismatches, pipeline
// state the device cannot build) are reported as [*ConfigError] and are
// fatal at startup. A destination that has no pass descriptor or drawable
// for a frame is not an error: the compute pass still runs and the render
// pass is skipped. Device loss surfaces from RenderFrame as an error
// wrapping [ErrDeviceLost].
//
// # Backends
//
// Devices come from package backend: the native backend drives Vulkan
// through gogpu/wgpu, the software backend executes the same programs on
// the CPU and is the reference for tests.
package computeview
