// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

// ThreadgroupSize derives a 2D threadgroup from pipeline limits:
// width is the execution width, height fills the remaining thread budget.
// Both dimensions are at least 1.
func ThreadgroupSize(p ComputePipeline) Size {
	w := p.ThreadExecutionWidth()
	if w < 1 {
		w = 1
	}
	h := p.MaxTotalThreadsPerThreadgroup() / w
	if h < 1 {
		h = 1
	}
	return Size{Width: w, Height: h, Depth: 1}
}

// ThreadgroupsFor returns the number of threadgroups needed to cover a
// width x height extent, rounding up in both dimensions.
func ThreadgroupsFor(width, height int, group Size) Size {
	if width <= 0 || height <= 0 || group.Width <= 0 || group.Height <= 0 {
		return Size{Depth: 1}
	}
	return Size{
		Width:  ceilDiv(width, group.Width),
		Height: ceilDiv(height, group.Height),
		Depth:  1,
	}
}

// Covers reports whether groups threadgroups of group threads span the extent.
func Covers(groups, group Size, width, height int) bool {
	return groups.Width*group.Width >= width && groups.Height*group.Height >= height
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
