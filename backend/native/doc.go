// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements gpucore.Device on top of the gogpu/wgpu HAL.
//
// Shaders are compiled from the bundled WGSL libraries. Textures that
// kernels read or write live in storage buffers of packed RGBA8 texels, one
// u32 per texel with red in the low byte. Render targets are real HAL
// textures; multisampled passes render into a transient MSAA texture and
// resolve into the target.
//
// Recorded commands are encoded into a single HAL command encoder at Commit
// and submitted with a fence. A completion goroutine waits for fences in
// submission order, presents drawables and runs completion handlers.
//
// Importing the package registers the "native" backend with the backend
// registry. Build with the nogpu tag to exclude it.
package native
