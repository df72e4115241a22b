// Package backend selects a gpucore.Device implementation at runtime.
//
// Backend packages register a factory from init, so importing them for
// side effects makes them available:
//
//	import (
//		_ "github.com/gogpu/computeview/backend/native"
//		_ "github.com/gogpu/computeview/backend/software"
//	)
//
// Default opens the best backend that works, trying the native GPU backend
// before the CPU reference backend:
//
//	dev, name, err := backend.Default()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// Open requests a specific backend by name:
//
//	dev, err := backend.Open(backend.BackendSoftware)
package backend
