package vulkan

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/offscreen/gpu"
)

func (d *device) BeginCommandBuffer(buffer gpu.CommandBuffer) error {
	res, err := d.driver.BeginCommandBuffer(native[core1_0.CommandBuffer](buffer), core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return failed("vkBeginCommandBuffer", res, err)
}

func (d *device) EndCommandBuffer(buffer gpu.CommandBuffer) error {
	res, err := d.driver.EndCommandBuffer(native[core1_0.CommandBuffer](buffer))
	return failed("vkEndCommandBuffer", res, err)
}

func (d *device) CmdBeginRenderPass(buffer gpu.CommandBuffer, info gpu.RenderPassBeginInfo) error {
	return d.driver.CmdBeginRenderPass(native[core1_0.CommandBuffer](buffer), core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  native[core1_0.RenderPass](info.RenderPass),
			Framebuffer: native[core1_0.Framebuffer](info.Framebuffer),
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: core1_0.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat(info.Clear),
			},
		})
}

func (d *device) CmdBindPipeline(buffer gpu.CommandBuffer, pipeline gpu.Pipeline) {
	d.driver.CmdBindPipeline(native[core1_0.CommandBuffer](buffer), core1_0.PipelineBindPointGraphics, native[core1_0.Pipeline](pipeline))
}

func (d *device) CmdDraw(buffer gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int) {
	d.driver.CmdDraw(native[core1_0.CommandBuffer](buffer), vertexCount, instanceCount, uint32(firstVertex), uint32(firstInstance))
}

func (d *device) CmdEndRenderPass(buffer gpu.CommandBuffer) {
	d.driver.CmdEndRenderPass(native[core1_0.CommandBuffer](buffer))
}

func (d *device) CmdPipelineBarrier(buffer gpu.CommandBuffer, barrier gpu.ImageBarrier) error {
	return d.driver.CmdPipelineBarrier(native[core1_0.CommandBuffer](buffer),
		core1_0.PipelineStageFlags(barrier.SrcStage),
		core1_0.PipelineStageFlags(barrier.DstStage),
		0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				SrcAccessMask:       core1_0.AccessFlags(barrier.SrcAccess),
				DstAccessMask:       core1_0.AccessFlags(barrier.DstAccess),
				OldLayout:           core1_0.ImageLayout(barrier.OldLayout),
				NewLayout:           core1_0.ImageLayout(barrier.NewLayout),
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               native[core1_0.Image](barrier.Image),
				SubresourceRange:    colorSubresource,
			},
		})
}

func (d *device) CmdCopyImage(buffer gpu.CommandBuffer, region gpu.ImageCopy) error {
	return d.driver.CmdCopyImage(native[core1_0.CommandBuffer](buffer),
		native[core1_0.Image](region.Src), core1_0.ImageLayout(region.SrcLayout),
		native[core1_0.Image](region.Dst), core1_0.ImageLayout(region.DstLayout),
		core1_0.ImageCopy{
			SrcSubresource: colorLayers,
			SrcOffset:      core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			DstSubresource: colorLayers,
			DstOffset:      core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			Extent:         core1_0.Extent3D{Width: region.Extent.Width, Height: region.Extent.Height, Depth: 1},
		})
}
