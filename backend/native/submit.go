//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// frameResources are the transient objects one command buffer needs until
// its fence signals.
type frameResources struct {
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup
}

func (f *frameResources) release(dev hal.Device) {
	for _, bg := range f.bindGroups {
		dev.DestroyBindGroup(bg)
	}
	for _, b := range f.buffers {
		dev.DestroyBuffer(b)
	}
	f.bindGroups, f.buffers = nil, nil
}

// uniform creates a small uniform buffer holding data.
func (d *Device) uniform(fr *frameResources, label string, data []byte) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	fr.buffers = append(fr.buffers, buf)
	d.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// submit encodes cb into a HAL command buffer, submits it with a fence and
// queues it for completion.
func (d *Device) submit(cb *commandBuffer) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return gpucore.ErrDeviceClosed
	}
	d.pending++
	d.mu.Unlock()

	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	if err := d.encodeAndSubmit(cb); err != nil {
		d.finish()
		return err
	}

	d.mu.Lock()
	d.inflight = append(d.inflight, cb)
	d.cond.Broadcast()
	d.mu.Unlock()
	return nil
}

func (d *Device) encodeAndSubmit(cb *commandBuffer) error {
	label := cb.Label()
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}

	fr := &frameResources{}
	for _, p := range cb.passes {
		if err := p.encode(d, encoder, fr); err != nil {
			encoder.DiscardEncoding()
			fr.release(d.device)
			return fmt.Errorf("native: %s: %w", p.name(), err)
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		fr.release(d.device)
		return fmt.Errorf("native: end encoding: %w", err)
	}
	fence, err := d.device.CreateFence()
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		fr.release(d.device)
		return fmt.Errorf("native: create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		d.device.FreeCommandBuffer(cmdBuf)
		fr.release(d.device)
		d.markLost(err)
		return fmt.Errorf("%w: submit %q: %v", gpucore.ErrDeviceLost, label, err)
	}

	cb.cmdBuf, cb.fence, cb.frame = cmdBuf, fence, fr
	return nil
}

// finish marks one submitted buffer as done.
func (d *Device) finish() {
	d.mu.Lock()
	d.pending--
	d.cond.Broadcast()
	d.mu.Unlock()
}

// run waits for in-flight command buffers in submission order until the
// device closes.
func (d *Device) run() {
	defer close(d.exited)
	for {
		d.mu.Lock()
		for len(d.inflight) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.inflight) == 0 {
			d.mu.Unlock()
			return
		}
		cb := d.inflight[0]
		d.inflight[0] = nil
		d.inflight = d.inflight[1:]
		d.mu.Unlock()

		d.complete(cb)
		d.finish()
	}
}

func (d *Device) complete(cb *commandBuffer) {
	defer func() {
		d.device.DestroyFence(cb.fence)
		d.device.FreeCommandBuffer(cb.cmdBuf)
		cb.frame.release(d.device)
	}()

	if d.lost.Load() {
		cb.retire(fmt.Errorf("%w: command buffer %q", gpucore.ErrDeviceLost, cb.Label()))
		return
	}
	ok, err := d.device.Wait(cb.fence, 1, d.opts.FenceTimeout)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("fence timeout after %v", d.opts.FenceTimeout)
		}
		d.markLost(err)
		cb.retire(fmt.Errorf("%w: command buffer %q: %v", gpucore.ErrDeviceLost, cb.Label(), err))
		return
	}

	for _, dr := range cb.presents {
		if err := dr.Present(); err != nil {
			d.log().Warn("present failed", "command_buffer", cb.Label(), "err", err)
		}
	}
	cb.retire(nil)
}
