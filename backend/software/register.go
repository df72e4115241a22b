package software

import (
	"github.com/gogpu/computeview/backend"
	"github.com/gogpu/computeview/gpucore"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Device, error) {
		return New(), nil
	})
}
