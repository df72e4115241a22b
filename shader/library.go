// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/computeview/internal/cache"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/msl"
	"github.com/gogpu/naga/spirv"
)

// Library errors.
var (
	// ErrMissingEntryPoint is returned when a named function is not present in the library.
	ErrMissingEntryPoint = errors.New("shader: entry point not found")

	// ErrStageMismatch is returned when a function exists but belongs to another stage.
	ErrStageMismatch = errors.New("shader: entry point has wrong stage")

	// ErrEmptySource is returned when a library is created from empty source.
	ErrEmptySource = errors.New("shader: empty source")
)

// translationKey names one translated artifact of a library.
type translationKey struct {
	lib        *Library
	target     string
	entryPoint string
}

// translations holds generated SPIR-V, MSL and GLSL so repeated pipeline
// builds and emits skip the naga backends.
var translations = cache.New[translationKey, []byte](64)

// Stage identifies the pipeline stage of an entry point.
type Stage uint8

const (
	// StageVertex is a vertex function.
	StageVertex Stage = iota

	// StageFragment is a fragment function.
	StageFragment

	// StageCompute is a compute ("kernel") function.
	StageCompute
)

// String returns the string representation of Stage.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// EntryPoint describes one function exported by a library.
type EntryPoint struct {
	// Name is the function name as written in the source.
	Name string

	// Stage is the pipeline stage the function runs in.
	Stage Stage

	// WorkgroupSize is the declared @workgroup_size for compute functions.
	// Zero for other stages.
	WorkgroupSize [3]uint32
}

// Library is a compiled WGSL shader library.
//
// The source is parsed, lowered to naga IR and validated once when the
// library is created. A Library is immutable and safe for concurrent use.
type Library struct {
	label   string
	source  string
	module  *ir.Module
	entries map[string]EntryPoint
}

// NewLibrary compiles WGSL source into a Library.
// Parse, lowering and validation failures are returned as errors.
func NewLibrary(label, source string) (*Library, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, label)
	}

	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shader: parse %s: %w", label, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shader: lower %s: %w", label, err)
	}
	validationErrors, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("shader: validate %s: %w", label, err)
	}
	if len(validationErrors) > 0 {
		return nil, fmt.Errorf("shader: validate %s: %w", label, &validationErrors[0])
	}

	entries := make(map[string]EntryPoint, len(module.EntryPoints))
	for _, ep := range module.EntryPoints {
		entries[ep.Name] = EntryPoint{
			Name:          ep.Name,
			Stage:         stageFromIR(ep.Stage),
			WorkgroupSize: ep.Workgroup,
		}
	}

	slogger().Debug("shader library compiled", "label", label, "entry_points", len(entries))

	return &Library{
		label:   label,
		source:  source,
		module:  module,
		entries: entries,
	}, nil
}

// MustLibrary is like NewLibrary but panics on error.
// It is intended for bundled sources that are known to compile.
func MustLibrary(label, source string) *Library {
	lib, err := NewLibrary(label, source)
	if err != nil {
		panic(err)
	}
	return lib
}

func stageFromIR(s ir.ShaderStage) Stage {
	switch s {
	case ir.StageVertex:
		return StageVertex
	case ir.StageFragment:
		return StageFragment
	default:
		return StageCompute
	}
}

// Label returns the library label.
func (l *Library) Label() string { return l.label }

// Source returns the WGSL source the library was built from.
func (l *Library) Source() string { return l.source }

// Function looks up an entry point by name and checks its stage.
func (l *Library) Function(name string, stage Stage) (EntryPoint, error) {
	ep, ok := l.entries[name]
	if !ok {
		return EntryPoint{}, fmt.Errorf("%w: %q in %s", ErrMissingEntryPoint, name, l.label)
	}
	if ep.Stage != stage {
		return EntryPoint{}, fmt.Errorf("%w: %q is %s, want %s", ErrStageMismatch, name, ep.Stage, stage)
	}
	return ep, nil
}

// EntryPoints returns all entry points sorted by name.
func (l *Library) EntryPoints() []EntryPoint {
	out := make([]EntryPoint, 0, len(l.entries))
	for _, ep := range l.entries {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SPIRV generates a SPIR-V 1.3 binary for the whole library.
// The result is shared and must not be modified.
func (l *Library) SPIRV() ([]byte, error) {
	return translations.GetOrCompute(translationKey{lib: l, target: "spirv"}, func() ([]byte, error) {
		code, err := naga.GenerateSPIRV(l.module, spirv.Options{Version: spirv.Version1_3})
		if err != nil {
			return nil, fmt.Errorf("shader: %s: %w", l.label, err)
		}
		slogger().Debug("shader translated", "label", l.label, "target", "spirv", "bytes", len(code))
		return code, nil
	})
}

// SPIRVWords returns the SPIR-V binary as little-endian 32-bit words.
func (l *Library) SPIRVWords() ([]uint32, error) {
	code, err := l.SPIRV()
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// MSL translates the library to Metal Shading Language.
func (l *Library) MSL() (string, error) {
	src, err := translations.GetOrCompute(translationKey{lib: l, target: "msl"}, func() ([]byte, error) {
		src, _, err := msl.Compile(l.module, msl.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("shader: %s to MSL: %w", l.label, err)
		}
		return []byte(src), nil
	})
	return string(src), err
}

// GLSL translates a single entry point to GLSL 3.30.
func (l *Library) GLSL(entryPoint string) (string, error) {
	if _, ok := l.entries[entryPoint]; !ok {
		return "", fmt.Errorf("%w: %q in %s", ErrMissingEntryPoint, entryPoint, l.label)
	}
	key := translationKey{lib: l, target: "glsl", entryPoint: entryPoint}
	src, err := translations.GetOrCompute(key, func() ([]byte, error) {
		opts := glsl.DefaultOptions()
		opts.EntryPoint = entryPoint
		src, _, err := glsl.Compile(l.module, opts)
		if err != nil {
			return nil, fmt.Errorf("shader: %s:%s to GLSL: %w", l.label, entryPoint, err)
		}
		return []byte(src), nil
	})
	return string(src), err
}
