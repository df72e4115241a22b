package software

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/computeview/gpucore"
)

var errNotCommitted = errors.New("software: command buffer not committed")

// op is one recorded command executed on the queue goroutine.
type op struct {
	name  string
	group string
	exec  func() error
}

type commandBuffer struct {
	dev  *Device
	done chan struct{}

	mu       sync.Mutex
	label    string
	status   gpucore.CommandBufferStatus
	err      error
	open     bool
	ops      []op
	presents []gpucore.Drawable
	handlers []func(gpucore.CommandBuffer)
}

var _ gpucore.CommandBuffer = (*commandBuffer)(nil)

func (cb *commandBuffer) Label() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.label
}

func (cb *commandBuffer) SetLabel(label string) {
	cb.mu.Lock()
	cb.label = label
	cb.mu.Unlock()
}

func (cb *commandBuffer) Status() gpucore.CommandBufferStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}

func (cb *commandBuffer) Err() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.err
}

// fail records the first encoding error.
func (cb *commandBuffer) fail(err error) {
	cb.mu.Lock()
	if cb.err == nil {
		cb.err = err
	}
	cb.mu.Unlock()
}

// beginPass checks the buffer can accept a new pass and marks one open.
func (cb *commandBuffer) beginPass() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status != gpucore.CommandBufferRecording {
		return gpucore.ErrAlreadyCommitted
	}
	if cb.open {
		return gpucore.ErrEncoderActive
	}
	cb.open = true
	return nil
}

func (cb *commandBuffer) endPass(o *op) {
	cb.mu.Lock()
	if o != nil {
		cb.ops = append(cb.ops, *o)
	}
	cb.open = false
	cb.mu.Unlock()
}

func (cb *commandBuffer) BeginComputePass(label string) (gpucore.ComputeEncoder, error) {
	if err := cb.beginPass(); err != nil {
		return nil, err
	}
	return &computeEncoder{
		cb:       cb,
		label:    label,
		textures: make(map[int]*Texture),
		params:   make(map[int][]byte),
	}, nil
}

func (cb *commandBuffer) BeginRenderPass(desc *gpucore.RenderPassDescriptor) (gpucore.RenderEncoder, error) {
	if desc == nil {
		return nil, fmt.Errorf("software: nil render pass descriptor")
	}
	target, ok := desc.ColorAttachment.Texture.(*Texture)
	if !ok || target.dev != cb.dev {
		return nil, fmt.Errorf("%w: color attachment of render pass %q is not a texture of this device",
			gpucore.ErrIncompatiblePipeline, desc.Label)
	}
	if !target.usage.Has(gpucore.TextureUsageRenderTarget) {
		return nil, fmt.Errorf("%w: %q is not a render target", gpucore.ErrTextureUsage, target.label)
	}
	if err := cb.beginPass(); err != nil {
		return nil, err
	}
	return &renderEncoder{
		cb:       cb,
		label:    desc.Label,
		att:      desc.ColorAttachment,
		target:   target,
		textures: make(map[int]*Texture),
	}, nil
}

func (cb *commandBuffer) Present(d gpucore.Drawable) error {
	if d == nil {
		return fmt.Errorf("software: present nil drawable")
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status != gpucore.CommandBufferRecording {
		return gpucore.ErrAlreadyCommitted
	}
	cb.presents = append(cb.presents, d)
	return nil
}

func (cb *commandBuffer) AddCompletedHandler(fn func(gpucore.CommandBuffer)) {
	if fn == nil {
		return
	}
	cb.mu.Lock()
	if cb.status.IsRetired() {
		cb.mu.Unlock()
		fn(cb)
		return
	}
	cb.handlers = append(cb.handlers, fn)
	cb.mu.Unlock()
}

// Commit submits the buffer. Encoding errors and device loss fail the commit
// and retire the buffer with the error.
func (cb *commandBuffer) Commit() error {
	cb.mu.Lock()
	if cb.status != gpucore.CommandBufferRecording {
		cb.mu.Unlock()
		return fmt.Errorf("%w: %q", gpucore.ErrAlreadyCommitted, cb.label)
	}
	err := cb.err
	if err == nil && cb.open {
		err = gpucore.ErrEncoderActive
	}
	if err == nil && cb.dev.lost.Load() {
		err = fmt.Errorf("%w: commit %q", gpucore.ErrDeviceLost, cb.label)
	}
	cb.status = gpucore.CommandBufferCommitted
	cb.mu.Unlock()

	if err == nil {
		err = cb.dev.submit(cb)
	}
	if err != nil {
		cb.retire(err)
		return err
	}
	return nil
}

// retire moves the buffer to its terminal state and runs completion handlers.
func (cb *commandBuffer) retire(err error) {
	cb.mu.Lock()
	if cb.status.IsRetired() {
		cb.mu.Unlock()
		return
	}
	if err != nil {
		cb.status = gpucore.CommandBufferError
		cb.err = err
	} else {
		cb.status = gpucore.CommandBufferCompleted
	}
	handlers := cb.handlers
	cb.handlers = nil
	cb.ops = nil
	cb.mu.Unlock()

	for _, fn := range handlers {
		fn(cb)
	}
	close(cb.done)
}

func (cb *commandBuffer) WaitUntilCompleted() error {
	if cb.Status() == gpucore.CommandBufferRecording {
		return errNotCommitted
	}
	<-cb.done
	return cb.Err()
}

// debugGroups is a stack of debug group names.
type debugGroups []string

func (g *debugGroups) push(name string) { *g = append(*g, name) }

func (g *debugGroups) pop() {
	if n := len(*g); n > 0 {
		*g = (*g)[:n-1]
	}
}

func (g debugGroups) String() string { return strings.Join(g, "/") }
