// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader compiles WGSL shader libraries with naga and exposes their
// entry points by name and stage.
//
// A [Library] plays the role of a prebuilt shader library: pipeline objects
// are built from it by naming a vertex, fragment or compute function.
// Looking up a function that does not exist, or that belongs to another
// stage, fails with [ErrMissingEntryPoint] or [ErrStageMismatch].
//
// Two programs are bundled: [NormalMapProgram] and [RaytraceProgram].
//
// # Binding layout
//
// Bundled programs share one binding convention in group 0:
//
//	0  uniform FrameParams {width, height, value, pad}   compute
//	1  storage, read       first input texture           compute
//	2  storage, read_write output texture                compute
//	3  uniform ViewParams {width, height, tw, th}        fragment
//	4  storage, read       sampled texture               fragment
//
// Texels are packed RGBA8 in a u32 with red in the low byte.
package shader
