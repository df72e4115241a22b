// Package software implements gpucore.Device on the CPU.
//
// The software device is the reference backend: every bundled shader entry
// point has a Go implementation here that follows the WGSL source line by
// line, computing in float32 and quantizing to 8-bit texels the way a GPU
// writes unorm formats.
//
// # Execution model
//
// Committed command buffers are executed in commit order by a single queue
// goroutine. Each compute dispatch fans its threadgroups out across a
// work-stealing worker pool and completes before the next command starts,
// so a render pass always observes the results of the compute pass recorded
// before it.
//
// # Rasterization
//
// Draws are triangle lists rasterized at sample positions with 1 or 4
// samples per pixel. A sample is shaded by at most one triangle of a draw,
// so triangles sharing an edge never blend twice. Multisampled passes are
// resolved into the single-sample color attachment by averaging.
//
// # Device loss
//
// Lose marks the device lost. Later commits fail with gpucore.ErrDeviceLost
// and buffers still queued retire with the same error.
package software
