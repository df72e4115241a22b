//go:build !nogpu

package native

import (
	"github.com/gogpu/computeview/backend"
	"github.com/gogpu/computeview/gpucore"
)

func init() {
	backend.Register(backend.BackendNative, func() (gpucore.Device, error) {
		return Open()
	})
}
