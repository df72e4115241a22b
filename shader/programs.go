// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	_ "embed"
	"sync"
)

//go:embed programs/normalmap.wgsl
var normalMapSource string

//go:embed programs/raytrace.wgsl
var raytraceSource string

// EntryPoints names the functions a pipeline cache builds from.
// Kernel is optional; when empty no compute pipeline is built.
type EntryPoints struct {
	Vertex   string
	Fragment string
	Kernel   string
}

// Program is a bundled library together with the entry points it is drawn with.
type Program struct {
	// Name identifies the program in logs and labels.
	Name string

	// Library holds the compiled shader functions.
	Library *Library

	// EntryPoints are the functions used when the compute pass runs.
	EntryPoints EntryPoints

	// StandaloneFragment replaces EntryPoints.Fragment when the compute pass
	// is disabled. Empty means the same fragment function is used.
	StandaloneFragment string

	// ComputeByDefault reports whether the compute pass is part of the frame loop
	// unless configured otherwise.
	ComputeByDefault bool
}

// Fragment returns the fragment function for the given compute setting.
func (p Program) Fragment(computeEnabled bool) string {
	if !computeEnabled && p.StandaloneFragment != "" {
		return p.StandaloneFragment
	}
	return p.EntryPoints.Fragment
}

// Entry point names shared by the bundled programs.
const (
	BaseVertex          = "base_vertex"
	BaseFragment        = "base_fragment"
	UVFragment          = "uv_fragment"
	TangentSpaceNormals = "tangentSpaceNormals"
	Gradient            = "gradient"
)

var (
	normalMapOnce sync.Once
	normalMapLib  *Library

	raytraceOnce sync.Once
	raytraceLib  *Library
)

// NormalMapLibrary returns the compiled normal-map library.
func NormalMapLibrary() *Library {
	normalMapOnce.Do(func() {
		normalMapLib = MustLibrary("normalmap", normalMapSource)
	})
	return normalMapLib
}

// RaytraceLibrary returns the compiled raytracing template library.
func RaytraceLibrary() *Library {
	raytraceOnce.Do(func() {
		raytraceLib = MustLibrary("raytrace", raytraceSource)
	})
	return raytraceLib
}

// NormalMapProgram converts a heightmap into a tangent-space normal map every
// frame and draws the result.
func NormalMapProgram() Program {
	return Program{
		Name:    "normalmap",
		Library: NormalMapLibrary(),
		EntryPoints: EntryPoints{
			Vertex:   BaseVertex,
			Fragment: BaseFragment,
			Kernel:   TangentSpaceNormals,
		},
		ComputeByDefault: true,
	}
}

// RaytraceProgram draws a full-screen quad. Its gradient kernel is built but
// only dispatched when the compute pass is enabled explicitly.
func RaytraceProgram() Program {
	return Program{
		Name:    "raytrace",
		Library: RaytraceLibrary(),
		EntryPoints: EntryPoints{
			Vertex:   BaseVertex,
			Fragment: BaseFragment,
			Kernel:   Gradient,
		},
		StandaloneFragment: UVFragment,
		ComputeByDefault:   false,
	}
}
