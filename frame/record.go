package frame

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/offscreen/gpu"
)

type drawTarget struct {
	renderPass  gpu.RenderPass
	framebuffer gpu.Framebuffer
	pipeline    gpu.Pipeline
	extent      gpu.Extent2D
}

func recordDraw(dev gpu.Device, cmd gpu.CommandBuffer, target drawTarget, clear gpu.ClearColor) error {
	if err := dev.BeginCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "beginning draw commands")
	}

	err := dev.CmdBeginRenderPass(cmd, gpu.RenderPassBeginInfo{
		RenderPass:  target.renderPass,
		Framebuffer: target.framebuffer,
		Extent:      target.extent,
		Clear:       clear,
	})
	if err != nil {
		return errors.Wrap(err, "beginning render pass")
	}

	dev.CmdBindPipeline(cmd, target.pipeline)
	dev.CmdDraw(cmd, 3, 1, 0, 0)
	dev.CmdEndRenderPass(cmd)

	if err := dev.EndCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "ending draw commands")
	}
	return nil
}

// recordCopy copies the render target, already in TransferSrcOptimal, into the staging
// image and leaves the staging image in General for host reads.
func recordCopy(dev gpu.Device, cmd gpu.CommandBuffer, src, dst gpu.Image, extent gpu.Extent2D) error {
	if err := dev.BeginCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "beginning copy commands")
	}

	err := dev.CmdPipelineBarrier(cmd, gpu.ImageBarrier{
		Image:     dst,
		OldLayout: gpu.ImageLayoutUndefined,
		NewLayout: gpu.ImageLayoutTransferDstOptimal,
		DstAccess: gpu.AccessTransferWrite,
		SrcStage:  gpu.PipelineStageTransfer,
		DstStage:  gpu.PipelineStageTransfer,
	})
	if err != nil {
		return errors.Wrap(err, "transitioning staging image for transfer")
	}

	err = dev.CmdCopyImage(cmd, gpu.ImageCopy{
		Src:       src,
		SrcLayout: gpu.ImageLayoutTransferSrcOptimal,
		Dst:       dst,
		DstLayout: gpu.ImageLayoutTransferDstOptimal,
		Extent:    extent,
	})
	if err != nil {
		return errors.Wrap(err, "copying render target")
	}

	err = dev.CmdPipelineBarrier(cmd, gpu.ImageBarrier{
		Image:     dst,
		OldLayout: gpu.ImageLayoutTransferDstOptimal,
		NewLayout: gpu.ImageLayoutGeneral,
		SrcAccess: gpu.AccessTransferWrite,
		DstAccess: gpu.AccessMemoryRead,
		SrcStage:  gpu.PipelineStageTransfer,
		DstStage:  gpu.PipelineStageTransfer,
	})
	if err != nil {
		return errors.Wrap(err, "transitioning staging image for host reads")
	}

	if err := dev.EndCommandBuffer(cmd); err != nil {
		return errors.Wrap(err, "ending copy commands")
	}
	return nil
}
