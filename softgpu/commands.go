package softgpu

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/offscreen/gpu"
	"github.com/vkngwrapper/offscreen/shader"
)

type bufferState int

const (
	bufferInitial bufferState = iota
	bufferRecording
	bufferExecutable
	bufferConsumed
)

type commandBuffer struct {
	object
	pool  *commandPool
	state bufferState
	ops   []func() error

	// Recording state.
	err      error
	pass     *framebuffer
	pipeline *pipeline
}

type fence struct {
	object
	signaled bool
}

// fault records the first recording error; it surfaces from EndCommandBuffer.
func (b *commandBuffer) fault(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (d *device) recording(call string, h gpu.CommandBuffer) (*commandBuffer, error) {
	buffer, err := lookup[*commandBuffer](d, h)
	if err != nil {
		return nil, d.invalid(call, "%v", err)
	}
	if buffer.state != bufferRecording {
		return nil, d.invalid(call, "CommandBuffer#%d is not recording", buffer.id)
	}
	return buffer, nil
}

func (d *device) BeginCommandBuffer(h gpu.CommandBuffer) error {
	const call = "vkBeginCommandBuffer"
	if err := d.backend.fail(call); err != nil {
		return err
	}

	buffer, err := lookup[*commandBuffer](d, h)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	if buffer.state != bufferInitial {
		return d.invalid(call, "CommandBuffer#%d is not in the initial state", buffer.id)
	}

	buffer.state = bufferRecording
	return nil
}

func (d *device) EndCommandBuffer(h gpu.CommandBuffer) error {
	const call = "vkEndCommandBuffer"
	if err := d.backend.fail(call); err != nil {
		return err
	}

	buffer, err := d.recording(call, h)
	if err != nil {
		return err
	}
	if buffer.err != nil {
		return buffer.err
	}
	if buffer.pass != nil {
		return d.invalid(call, "CommandBuffer#%d ended inside a render pass", buffer.id)
	}

	buffer.state = bufferExecutable
	return nil
}

func (d *device) CmdBeginRenderPass(h gpu.CommandBuffer, info gpu.RenderPassBeginInfo) error {
	const call = "vkCmdBeginRenderPass"
	buffer, err := d.recording(call, h)
	if err != nil {
		return err
	}
	if buffer.pass != nil {
		return d.invalid(call, "render pass already active")
	}

	rp, err := lookup[*renderPass](d, info.RenderPass)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	fb, err := lookup[*framebuffer](d, info.Framebuffer)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	if fb.renderPass != rp {
		return d.invalid(call, "Framebuffer#%d was created for RenderPass#%d", fb.id, fb.renderPass.id)
	}
	if info.Extent.Width > fb.extent.Width || info.Extent.Height > fb.extent.Height {
		return d.invalid(call, "render area %s exceeds framebuffer %s", info.Extent, fb.extent)
	}

	buffer.pass = fb
	target := fb.view.image
	buffer.ops = append(buffer.ops, func() error {
		if rp.info.InitialLayout != gpu.ImageLayoutUndefined && target.layout != rp.info.InitialLayout {
			return errors.Newf("Image#%d is in layout %s, render pass expects %s", target.id, target.layout, rp.info.InitialLayout)
		}
		if rp.info.LoadOp == gpu.AttachmentLoadOpClear {
			fill(target, info.Extent, info.Clear)
		}
		target.layout = gpu.ImageLayoutColorAttachmentOptimal
		return nil
	})
	return nil
}

func (d *device) CmdBindPipeline(h gpu.CommandBuffer, hPipeline gpu.Pipeline) {
	const call = "vkCmdBindPipeline"
	buffer, err := d.recording(call, h)
	if err != nil {
		return
	}

	p, err := lookup[*pipeline](d, hPipeline)
	if err != nil {
		buffer.fault(d.invalid(call, "%v", err))
		return
	}
	buffer.pipeline = p
}

func (d *device) CmdDraw(h gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int) {
	const call = "vkCmdDraw"
	buffer, err := d.recording(call, h)
	if err != nil {
		return
	}
	if buffer.pass == nil {
		buffer.fault(d.invalid(call, "draw outside a render pass"))
		return
	}
	if buffer.pipeline == nil {
		buffer.fault(d.invalid(call, "no pipeline bound"))
		return
	}
	if firstVertex < 0 || firstVertex+vertexCount > shader.TriangleVertexCount {
		buffer.fault(d.invalid(call, "vertices [%d, %d) exceed the %d the vertex stage defines",
			firstVertex, firstVertex+vertexCount, shader.TriangleVertexCount))
		return
	}

	p, fb := buffer.pipeline, buffer.pass
	buffer.ops = append(buffer.ops, func() error {
		for i := 0; i < instanceCount; i++ {
			rasterize(p, fb.view.image, fb.extent, firstVertex, vertexCount)
		}
		return nil
	})
}

func (d *device) CmdEndRenderPass(h gpu.CommandBuffer) {
	const call = "vkCmdEndRenderPass"
	buffer, err := d.recording(call, h)
	if err != nil {
		return
	}
	if buffer.pass == nil {
		buffer.fault(d.invalid(call, "no render pass active"))
		return
	}

	fb := buffer.pass
	buffer.pass = nil
	buffer.ops = append(buffer.ops, func() error {
		fb.view.image.layout = fb.renderPass.info.FinalLayout
		return nil
	})
}

func (d *device) CmdPipelineBarrier(h gpu.CommandBuffer, barrier gpu.ImageBarrier) error {
	const call = "vkCmdPipelineBarrier"
	buffer, err := d.recording(call, h)
	if err != nil {
		return err
	}
	if buffer.pass != nil {
		return d.invalid(call, "image barrier inside a render pass")
	}

	img, err := lookup[*image](d, barrier.Image)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	if barrier.NewLayout == gpu.ImageLayoutUndefined {
		return d.invalid(call, "cannot transition to %s", barrier.NewLayout)
	}

	buffer.ops = append(buffer.ops, func() error {
		if barrier.OldLayout != gpu.ImageLayoutUndefined && img.layout != barrier.OldLayout {
			return errors.Newf("Image#%d is in layout %s, barrier expects %s", img.id, img.layout, barrier.OldLayout)
		}
		img.layout = barrier.NewLayout
		return nil
	})
	return nil
}

func (d *device) CmdCopyImage(h gpu.CommandBuffer, region gpu.ImageCopy) error {
	const call = "vkCmdCopyImage"
	buffer, err := d.recording(call, h)
	if err != nil {
		return err
	}
	if buffer.pass != nil {
		return d.invalid(call, "copy inside a render pass")
	}

	src, err := lookup[*image](d, region.Src)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	dst, err := lookup[*image](d, region.Dst)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	if region.SrcLayout != gpu.ImageLayoutTransferSrcOptimal && region.SrcLayout != gpu.ImageLayoutGeneral {
		return d.invalid(call, "source layout %s is not a transfer layout", region.SrcLayout)
	}
	if region.DstLayout != gpu.ImageLayoutTransferDstOptimal && region.DstLayout != gpu.ImageLayoutGeneral {
		return d.invalid(call, "destination layout %s is not a transfer layout", region.DstLayout)
	}
	if src.info.Format != dst.info.Format {
		return d.invalid(call, "formats %s and %s differ", src.info.Format, dst.info.Format)
	}
	for _, img := range []*image{src, dst} {
		if region.Extent.Width > img.info.Extent.Width || region.Extent.Height > img.info.Extent.Height {
			return d.invalid(call, "region %s exceeds Image#%d extent %s", region.Extent, img.id, img.info.Extent)
		}
		if img.info.Usage&gpu.ImageUsageTransferSrc == 0 && img == src {
			return d.invalid(call, "Image#%d lacks transfer source usage", img.id)
		}
		if img.info.Usage&gpu.ImageUsageTransferDst == 0 && img == dst {
			return d.invalid(call, "Image#%d lacks transfer destination usage", img.id)
		}
	}

	buffer.ops = append(buffer.ops, func() error {
		if src.layout != region.SrcLayout {
			return errors.Newf("source Image#%d is in layout %s, copy expects %s", src.id, src.layout, region.SrcLayout)
		}
		if dst.layout != region.DstLayout {
			return errors.Newf("destination Image#%d is in layout %s, copy expects %s", dst.id, dst.layout, region.DstLayout)
		}
		if src.memory == nil || dst.memory == nil {
			return errors.New("copy between images without bound memory")
		}

		rowBytes := region.Extent.Width * src.info.Format.BytesPerPixel()
		for y := 0; y < region.Extent.Height; y++ {
			from := src.offset + y*src.rowPitch
			to := dst.offset + y*dst.rowPitch
			copy(dst.memory.data[to:to+rowBytes], src.memory.data[from:from+rowBytes])
		}
		return nil
	})
	return nil
}

func (d *device) ResetFence(h gpu.Fence) error {
	const call = "vkResetFences"
	if err := d.backend.fail(call); err != nil {
		return err
	}

	f, err := lookup[*fence](d, h)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	f.signaled = false
	return nil
}

// QueueSubmit executes the buffer before returning unless the queue is stalled.
func (d *device) QueueSubmit(hQueue gpu.Queue, hBuffer gpu.CommandBuffer, hFence gpu.Fence) error {
	const call = "vkQueueSubmit"
	if err := d.backend.fail(call); err != nil {
		return err
	}

	if q, ok := hQueue.Native().(*queue); !ok || q.device != d {
		return d.invalid(call, "queue does not belong to this device")
	}
	buffer, err := lookup[*commandBuffer](d, hBuffer)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	if buffer.state != bufferExecutable {
		return d.invalid(call, "CommandBuffer#%d is not executable", buffer.id)
	}
	var f *fence
	if hFence.Valid() {
		if f, err = lookup[*fence](d, hFence); err != nil {
			return d.invalid(call, "%v", err)
		}
		if f.signaled {
			return d.invalid(call, "Fence#%d is already signaled", f.id)
		}
	}

	buffer.state = bufferConsumed
	if d.backend.stalled {
		return nil
	}

	for _, op := range buffer.ops {
		if err := op(); err != nil {
			d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "%s: CommandBuffer#%d: %v", call, buffer.id, err)
			return errors.Wrapf(gpu.CallFailed(call, codeDeviceLost), "executing CommandBuffer#%d: %v", buffer.id, err)
		}
	}

	if f != nil {
		f.signaled = true
	}
	return nil
}

func (d *device) WaitForFence(h gpu.Fence, timeout time.Duration) (bool, error) {
	const call = "vkWaitForFences"
	if err := d.backend.fail(call); err != nil {
		return false, err
	}

	f, err := lookup[*fence](d, h)
	if err != nil {
		return false, d.invalid(call, "%v", err)
	}
	if f.signaled {
		return true, nil
	}

	waitStalled(timeout)
	return false, nil
}
