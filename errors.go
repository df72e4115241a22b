package computeview

import (
	"errors"
	"fmt"

	"github.com/gogpu/computeview/gpucore"
)

// Errors returned by computeview.
var (
	// ErrDeviceLost is returned by RenderFrame when the device can no longer
	// execute work. Hosts treat it as fatal.
	ErrDeviceLost = gpucore.ErrDeviceLost

	// ErrNilDevice is returned when a nil device is passed.
	ErrNilDevice = errors.New("computeview: nil device")

	// ErrNoOutput is returned when the compute pass has no output texture.
	ErrNoOutput = errors.New("computeview: compute pass needs an output texture")

	// ErrClosed is returned when a closed cache or renderer is used.
	ErrClosed = errors.New("computeview: closed")
)

// ConfigError reports a configuration problem found while building
// pipelines or binding resources. Configuration errors are fatal: the host
// cannot recover by retrying.
type ConfigError struct {
	// Op is the operation that failed, for example "build".
	Op string

	// Name identifies the program, entry point or resource involved.
	Name string

	Err error
}

func (e *ConfigError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("computeview: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("computeview: %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
