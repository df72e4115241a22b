package software

import (
	"math"

	"github.com/gogpu/computeview/gpucore"
)

type point struct{ x, y float64 }

// samplePositions are subpixel offsets of the standard 1x and 4x patterns.
var samplePositions = map[int][]point{
	1: {{0.5, 0.5}},
	4: {{0.375, 0.125}, {0.875, 0.375}, {0.125, 0.625}, {0.625, 0.875}},
}

// edge is twice the signed area of triangle (a, b, p).
func edge(a, b, p point) float64 {
	return (b.x-a.x)*(p.y-a.y) - (b.y-a.y)*(p.x-a.x)
}

// renderPass executes a whole render pass: load, draws, resolve and store.
func (d *Device) renderPass(att gpucore.ColorAttachment, target *Texture, draws []drawCall) error {
	samples := 1
	if len(draws) > 0 {
		samples = draws[0].pipeline.sampleCount
	}

	target.mu.Lock()
	defer target.mu.Unlock()

	locked := map[*Texture]bool{}
	for _, dc := range draws {
		if dc.sampled != nil && !locked[dc.sampled] {
			locked[dc.sampled] = true
			dc.sampled.mu.RLock()
			defer dc.sampled.mu.RUnlock()
		}
	}

	w, h := target.width, target.height
	color := make([][4]float32, w*h*samples)
	switch att.LoadAction {
	case gpucore.LoadActionClear:
		c := att.ClearColor
		cc := [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
		for i := range color {
			color[i] = cc
		}
	default:
		for y := range h {
			for x := range w {
				t := target.texel(x, y)
				base := (y*w + x) * samples
				for s := range samples {
					color[base+s] = t
				}
			}
		}
	}

	covered := make([]bool, len(color))
	for _, dc := range draws {
		clear(covered)
		rasterizeDraw(dc, w, h, samples, color, covered)
	}

	if att.StoreAction == gpucore.StoreActionDontCare {
		return nil
	}

	// Resolve by averaging samples.
	for y := range h {
		for x := range w {
			base := (y*w + x) * samples
			var sum [4]float64
			for s := range samples {
				for c := range 4 {
					sum[c] += float64(color[base+s][c])
				}
			}
			n := float64(samples)
			target.setTexel(x, y, [4]float32{
				float32(sum[0] / n), float32(sum[1] / n), float32(sum[2] / n), float32(sum[3] / n),
			})
		}
	}
	return nil
}

// rasterizeDraw shades the triangles of one draw. Coverage tests are
// inclusive on every edge; covered keeps a sample from being shaded twice
// when triangles of the draw share an edge.
func rasterizeDraw(dc drawCall, w, h, samples int, color [][4]float32, covered []bool) {
	offsets := samplePositions[samples]
	p := dc.pipeline
	mask := make([]int, 0, samples)

	for v := dc.start; v+2 < dc.start+dc.count; v += 3 {
		var pos [3]point
		var uv [3][2]float32
		for i := range 3 {
			out := p.vertex(v + i)
			pos[i] = point{
				x: (float64(out.pos[0])*0.5 + 0.5) * float64(w),
				y: (0.5 - float64(out.pos[1])*0.5) * float64(h),
			}
			uv[i] = out.uv
		}

		area := edge(pos[0], pos[1], pos[2])
		if area == 0 {
			continue
		}

		minX := max(int(math.Floor(min(pos[0].x, pos[1].x, pos[2].x))), 0)
		maxX := min(int(math.Ceil(max(pos[0].x, pos[1].x, pos[2].x))), w-1)
		minY := max(int(math.Floor(min(pos[0].y, pos[1].y, pos[2].y))), 0)
		maxY := min(int(math.Ceil(max(pos[0].y, pos[1].y, pos[2].y))), h-1)

		for py := minY; py <= maxY; py++ {
			for px := minX; px <= maxX; px++ {
				base := (py*w + px) * samples
				mask = mask[:0]
				for s, off := range offsets {
					if covered[base+s] {
						continue
					}
					q := point{float64(px) + off.x, float64(py) + off.y}
					w0 := edge(pos[1], pos[2], q) / area
					w1 := edge(pos[2], pos[0], q) / area
					w2 := edge(pos[0], pos[1], q) / area
					if w0 >= 0 && w1 >= 0 && w2 >= 0 {
						mask = append(mask, s)
					}
				}
				if len(mask) == 0 {
					continue
				}

				// Interpolate at the pixel center.
				c := point{float64(px) + 0.5, float64(py) + 0.5}
				b0 := edge(pos[1], pos[2], c) / area
				b1 := edge(pos[2], pos[0], c) / area
				b2 := edge(pos[0], pos[1], c) / area
				fuv := [2]float32{
					float32(b0*float64(uv[0][0]) + b1*float64(uv[1][0]) + b2*float64(uv[2][0])),
					float32(b0*float64(uv[0][1]) + b1*float64(uv[1][1]) + b2*float64(uv[2][1])),
				}
				col := p.fragment.shade(fuv, dc.sampled)
				for _, s := range mask {
					color[base+s] = col
					covered[base+s] = true
				}
			}
		}
	}
}
