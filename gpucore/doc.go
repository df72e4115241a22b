// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpucore defines the device abstraction shared by all computeview
// backends.
//
// The interfaces model a small, command-buffer oriented GPU API:
//
//	Device ──> ComputePipeline, RenderPipeline, CommandQueue, Texture
//	CommandQueue ──> CommandBuffer (one per frame)
//	CommandBuffer ──> ComputeEncoder, RenderEncoder, Present, Commit
//
// Backends implement these interfaces on top of a concrete API:
//
//	               +------------------+
//	               |   computeview    |
//	               | (cache, frames)  |
//	               +--------+---------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| backend/native  |          |backend/software |
//	|  (hal.Device)   |          |  (CPU kernels)  |
//	+-----------------+          +-----------------+
//
// # Command buffer lifecycle
//
// A CommandBuffer is created, encoded, committed once and then retired by
// the device:
//
//	Recording -> Commit() -> Committed -> Completed | Error
//
// Encoders record state with methods that do not return errors. The first
// recording error is reported by End and makes the command buffer fail
// on Commit.
//
// # Host surfaces
//
// [RenderDestination] is the contract a host surface implements to receive
// frames: an optional pass descriptor, an optional drawable, and the fixed
// pixel format and sample count the render pipeline is built for.
package gpucore
