// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "errors"

// Texture errors.
var (
	// ErrInvalidTextureSize is returned for non-positive texture dimensions.
	ErrInvalidTextureSize = errors.New("gpucore: invalid texture size")

	// ErrUnsupportedFormat is returned for pixel formats no backend supports.
	ErrUnsupportedFormat = errors.New("gpucore: unsupported texture format")

	// ErrTextureUsage is returned when a texture is used in a way its usage flags do not allow.
	ErrTextureUsage = errors.New("gpucore: texture usage not allowed")

	// ErrPixelDataSize is returned when pixel data does not cover the texture.
	ErrPixelDataSize = errors.New("gpucore: pixel data size mismatch")
)

// Pipeline errors.
var (
	// ErrIncompatiblePipeline is returned when fixed-function state (color
	// format, sample count) is not supported or does not match a pass.
	ErrIncompatiblePipeline = errors.New("gpucore: incompatible pipeline state")

	// ErrNoPipeline is returned when a dispatch or draw is recorded before a pipeline is set.
	ErrNoPipeline = errors.New("gpucore: no pipeline set")

	// ErrMissingBinding is returned when a pipeline reads a slot that was never bound.
	ErrMissingBinding = errors.New("gpucore: missing binding")
)

// Command buffer errors.
var (
	// ErrAlreadyCommitted is returned when a command buffer is committed or
	// encoded into after Commit.
	ErrAlreadyCommitted = errors.New("gpucore: command buffer already committed")

	// ErrEncoderActive is returned when a pass is begun while another is still open.
	ErrEncoderActive = errors.New("gpucore: another pass encoder is active")

	// ErrEncoderEnded is returned when commands are recorded into an ended encoder.
	ErrEncoderEnded = errors.New("gpucore: encoder already ended")

	// ErrDeviceLost is returned when the device can no longer execute work.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrDeviceClosed is returned when a closed device is used.
	ErrDeviceClosed = errors.New("gpucore: device closed")
)
