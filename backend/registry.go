package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/computeview/gpucore"
)

// Backend name constants.
const (
	// BackendNative is the GPU backend built on gogpu/wgpu HAL.
	BackendNative = "native"

	// BackendSoftware is the CPU reference backend.
	BackendSoftware = "software"
)

// Registry errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered
	// or none of the registered backends could open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// DeviceFactory opens a new device.
type DeviceFactory func() (gpucore.Device, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]DeviceFactory)

	// Priority order for Default: first factory that opens a device wins.
	backendPriority = []string{BackendNative, BackendSoftware}
)

// Register registers a device factory under name, replacing any previous one.
// Backend packages call it from init.
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens a device from the named backend.
func Open(name string) (gpucore.Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", name, err)
	}
	return dev, nil
}

// Default opens a device from the best backend that works, following the
// priority native > software, then any other registered backend in name
// order. It returns the device and the name of the backend that opened it.
func Default() (gpucore.Device, string, error) {
	registryMu.RLock()
	order := make([]string, 0, len(factories))
	for _, name := range backendPriority {
		if _, ok := factories[name]; ok {
			order = append(order, name)
		}
	}
	var rest []string
	for name := range factories {
		if !contains(backendPriority, name) {
			rest = append(rest, name)
		}
	}
	registryMu.RUnlock()

	sort.Strings(rest)
	order = append(order, rest...)

	var errs []error
	for _, name := range order {
		dev, err := Open(name)
		if err == nil {
			return dev, name, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, "", ErrBackendNotAvailable
	}
	return nil, "", fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

// MustDefault is like Default but panics when no device can be opened.
func MustDefault() gpucore.Device {
	dev, _, err := Default()
	if err != nil {
		panic(err)
	}
	return dev
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
