package software

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/computeview/shader"
)

// dispatchArgs are the resources bound for one dispatch.
type dispatchArgs struct {
	inputs []*Texture
	output *Texture
	param  float32
}

// kernel is the CPU implementation of a compute entry point.
type kernel struct {
	// inputs is the number of read-only textures at indices 0..inputs-1.
	// The output texture is bound at index inputs.
	inputs int

	// needsParam reports whether a float parameter must be bound at buffer 0.
	needsParam bool

	run func(a *dispatchArgs, x, y int)
}

// vertexOut is the interpolated output of a vertex function.
type vertexOut struct {
	pos [2]float32 // clip space x, y
	uv  [2]float32
}

type vertexFunc func(vid int) vertexOut

// fragment is the CPU implementation of a fragment entry point.
type fragment struct {
	// sampled reports whether fragment texture 0 must be bound.
	sampled bool

	shade func(uv [2]float32, tex *Texture) [4]float32
}

var kernels = map[string]kernel{
	shader.TangentSpaceNormals: {inputs: 1, needsParam: true, run: tangentSpaceNormals},
	shader.Gradient:            {inputs: 0, run: gradient},
}

var vertexFuncs = map[string]vertexFunc{
	shader.BaseVertex: baseVertex,
}

var fragments = map[string]fragment{
	shader.BaseFragment: {sampled: true, shade: baseFragment},
	shader.UVFragment:   {shade: uvFragment},
}

// decodeParam reads the little-endian float32 at the start of b.
func decodeParam(b []byte) float32 {
	if len(b) < 4 {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func heightAt(t *Texture, x, y int) float32 {
	x = min(max(x, 0), t.width-1)
	y = min(max(y, 0), t.height-1)
	return t.texel(x, y)[0]
}

func tangentSpaceNormals(a *dispatchArgs, x, y int) {
	out := a.output
	if x >= out.width || y >= out.height {
		return
	}
	h := a.inputs[0]

	tl := heightAt(h, x-1, y-1)
	t := heightAt(h, x, y-1)
	tr := heightAt(h, x+1, y-1)
	l := heightAt(h, x-1, y)
	r := heightAt(h, x+1, y)
	bl := heightAt(h, x-1, y+1)
	b := heightAt(h, x, y+1)
	br := heightAt(h, x+1, y+1)

	dx := (tr + 2*r + br) - (tl + 2*l + bl)
	dy := (bl + 2*b + br) - (tl + 2*t + tr)

	nx := -dx * a.param
	ny := -dy * a.param
	nz := float32(1)
	inv := float32(1 / math.Sqrt(float64(nx*nx+ny*ny+nz*nz)))

	out.setTexel(x, y, [4]float32{
		nx*inv*0.5 + 0.5,
		ny*inv*0.5 + 0.5,
		nz*inv*0.5 + 0.5,
		1,
	})
}

func gradient(a *dispatchArgs, x, y int) {
	out := a.output
	if x >= out.width || y >= out.height {
		return
	}
	u := (float32(x) + 0.5) / float32(out.width)
	v := (float32(y) + 0.5) / float32(out.height)
	out.setTexel(x, y, [4]float32{u, v, a.param, 1})
}

var quad = [6][2]float32{
	{-1, -1}, {1, -1}, {-1, 1},
	{1, -1}, {1, 1}, {-1, 1},
}

func baseVertex(vid int) vertexOut {
	p := quad[vid%len(quad)]
	return vertexOut{
		pos: p,
		uv:  [2]float32{p[0]*0.5 + 0.5, 0.5 - p[1]*0.5},
	}
}

// baseFragment fetches the nearest texel of the sampled texture.
func baseFragment(uv [2]float32, tex *Texture) [4]float32 {
	tx := min(int(max(uv[0], 0)*float32(tex.width)), tex.width-1)
	ty := min(int(max(uv[1], 0)*float32(tex.height)), tex.height-1)
	return tex.texel(tx, ty)
}

func uvFragment(uv [2]float32, _ *Texture) [4]float32 {
	return [4]float32{uv[0], uv[1], 0.5, 1}
}
