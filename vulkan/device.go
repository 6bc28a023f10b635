package vulkan

import (
	"time"
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/offscreen/gpu"
)

type device struct {
	instance       *instance
	driver         core1_0.CoreDeviceDriver
	physicalDevice core1_0.PhysicalDevice
	queueFamily    int
	queue          core1_0.Queue
}

type nativeHandle interface {
	Native() any
}

// native unwraps a handle created by this backend. Handles from anywhere else unwrap to
// the zero value, which the driver rejects.
func native[T any](h nativeHandle) T {
	v, _ := h.Native().(T)
	return v
}

var colorSubresource = core1_0.ImageSubresourceRange{
	AspectMask:     core1_0.ImageAspectColor,
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

var colorLayers = core1_0.ImageSubresourceLayers{
	AspectMask:     core1_0.ImageAspectColor,
	MipLevel:       0,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

func (d *device) Queue() gpu.Queue { return gpu.NewQueue(d.queue) }

func (d *device) FormatFeatures(format gpu.Format, tiling gpu.ImageTiling) gpu.FormatFeatureFlags {
	props := d.instance.driver.GetPhysicalDeviceFormatProperties(d.physicalDevice, core1_0.Format(format))
	if tiling == gpu.ImageTilingLinear {
		return gpu.FormatFeatureFlags(props.LinearTilingFeatures)
	}
	return gpu.FormatFeatureFlags(props.OptimalTilingFeatures)
}

func (d *device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	image, res, err := d.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        core1_0.Format(info.Format),
		Tiling:        core1_0.ImageTiling(info.Tiling),
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         core1_0.ImageUsageFlags(info.Usage),
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return gpu.Image{}, failed("vkCreateImage", res, err)
	}
	return gpu.NewImage(image), nil
}

func (d *device) DestroyImage(image gpu.Image) {
	d.driver.DestroyImage(native[core1_0.Image](image), nil)
}

func (d *device) ImageMemoryRequirements(image gpu.Image) gpu.MemoryRequirements {
	reqs := d.driver.GetImageMemoryRequirements(native[core1_0.Image](image))
	return gpu.MemoryRequirements{
		Size:           reqs.Size,
		Alignment:      reqs.Alignment,
		MemoryTypeBits: reqs.MemoryTypeBits,
	}
}

func (d *device) ImageSubresourceLayout(image gpu.Image) gpu.SubresourceLayout {
	layout := d.driver.GetImageSubresourceLayout(native[core1_0.Image](image), &core1_0.ImageSubresource{
		AspectMask: core1_0.ImageAspectColor,
		MipLevel:   0,
		ArrayLayer: 0,
	})
	return gpu.SubresourceLayout{
		Offset:   layout.Offset,
		Size:     layout.Size,
		RowPitch: layout.RowPitch,
	}
}

func (d *device) CreateImageView(image gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	view, res, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:            native[core1_0.Image](image),
		ViewType:         core1_0.ImageViewType2D,
		Format:           core1_0.Format(format),
		SubresourceRange: colorSubresource,
	})
	if err != nil {
		return gpu.ImageView{}, failed("vkCreateImageView", res, err)
	}
	return gpu.NewImageView(view), nil
}

func (d *device) DestroyImageView(view gpu.ImageView) {
	d.driver.DestroyImageView(native[core1_0.ImageView](view), nil)
}

func (d *device) AllocateMemory(size int, memoryTypeIndex int) (gpu.Memory, error) {
	memory, res, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return gpu.Memory{}, failed("vkAllocateMemory", res, err)
	}
	return gpu.NewMemory(memory), nil
}

func (d *device) FreeMemory(memory gpu.Memory) {
	d.driver.FreeMemory(native[core1_0.DeviceMemory](memory), nil)
}

func (d *device) BindImageMemory(image gpu.Image, memory gpu.Memory) error {
	res, err := d.driver.BindImageMemory(native[core1_0.Image](image), native[core1_0.DeviceMemory](memory), 0)
	return failed("vkBindImageMemory", res, err)
}

// MapMemory returns a slice over the mapping. It aliases driver memory and is only valid
// until UnmapMemory.
func (d *device) MapMemory(memory gpu.Memory, offset int, size int) ([]byte, error) {
	ptr, res, err := d.driver.MapMemory(native[core1_0.DeviceMemory](memory), offset, size, 0)
	if err != nil {
		return nil, failed("vkMapMemory", res, err)
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *device) UnmapMemory(memory gpu.Memory) {
	d.driver.UnmapMemory(native[core1_0.DeviceMemory](memory))
}

func (d *device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	module, res, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return gpu.ShaderModule{}, failed("vkCreateShaderModule", res, err)
	}
	return gpu.NewShaderModule(module), nil
}

func (d *device) DestroyShaderModule(module gpu.ShaderModule) {
	d.driver.DestroyShaderModule(native[core1_0.ShaderModule](module), nil)
}

func (d *device) CreateRenderPass(info gpu.RenderPassCreateInfo) (gpu.RenderPass, error) {
	renderPass, res, err := d.driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         core1_0.Format(info.Format),
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOp(info.LoadOp),
				StoreOp:        core1_0.AttachmentStoreOp(info.StoreOp),
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayout(info.InitialLayout),
				FinalLayout:    core1_0.ImageLayout(info.FinalLayout),
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
			{
				SrcSubpass: 0,
				DstSubpass: core1_0.SubpassExternal,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: core1_0.AccessColorAttachmentWrite,

				DstStageMask:  core1_0.PipelineStageTransfer,
				DstAccessMask: core1_0.AccessTransferRead,
			},
		},
	})
	if err != nil {
		return gpu.RenderPass{}, failed("vkCreateRenderPass", res, err)
	}
	return gpu.NewRenderPass(renderPass), nil
}

func (d *device) DestroyRenderPass(renderPass gpu.RenderPass) {
	d.driver.DestroyRenderPass(native[core1_0.RenderPass](renderPass), nil)
}

func (d *device) CreatePipelineLayout() (gpu.PipelineLayout, error) {
	layout, res, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return gpu.PipelineLayout{}, failed("vkCreatePipelineLayout", res, err)
	}
	return gpu.NewPipelineLayout(layout), nil
}

func (d *device) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	d.driver.DestroyPipelineLayout(native[core1_0.PipelineLayout](layout), nil)
}

func (d *device) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) (gpu.Pipeline, error) {
	module := native[core1_0.ShaderModule](info.Module)
	extent := core1_0.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height}

	colorBlend := core1_0.PipelineColorBlendAttachmentState{
		BlendEnabled:   info.Blend,
		ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
	}
	if info.Blend {
		colorBlend.SrcColorBlendFactor = core1_0.BlendFactorSrcAlpha
		colorBlend.DstColorBlendFactor = core1_0.BlendFactorOneMinusSrcAlpha
		colorBlend.ColorBlendOp = core1_0.BlendOpAdd
		colorBlend.SrcAlphaBlendFactor = core1_0.BlendFactorOne
		colorBlend.DstAlphaBlendFactor = core1_0.BlendFactorZero
		colorBlend.AlphaBlendOp = core1_0.BlendOpAdd
	}

	var depthStencil *core1_0.PipelineDepthStencilStateCreateInfo
	if info.DepthTest {
		depthStencil = &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  true,
			DepthWriteEnable: true,
			DepthCompareOp:   core1_0.CompareOpLess,
		}
	}

	pipelines, res, err := d.driver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: module,
					Name:   info.VertexEntry,
				},
				{
					Stage:  core1_0.StageFragment,
					Module: module,
					Name:   info.FragmentEntry,
				},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               core1_0.PrimitiveTopology(info.Topology),
				PrimitiveRestartEnable: false,
			},
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{
					{
						X:        0,
						Y:        0,
						Width:    float32(info.Extent.Width),
						Height:   float32(info.Extent.Height),
						MinDepth: 0,
						MaxDepth: 1,
					},
				},
				Scissors: []core1_0.Rect2D{
					{
						Offset: core1_0.Offset2D{X: 0, Y: 0},
						Extent: extent,
					},
				},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				DepthClampEnable:        false,
				RasterizerDiscardEnable: false,

				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    core1_0.CullModeFlags(info.CullMode),
				FrontFace:   core1_0.FrontFace(info.FrontFace),

				DepthBiasEnable: false,

				LineWidth: 1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				SampleShadingEnable:  false,
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			DepthStencilState: depthStencil,
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOpEnabled: false,
				LogicOp:        core1_0.LogicOpCopy,

				BlendConstants: [4]float32{0, 0, 0, 0},
				Attachments:    []core1_0.PipelineColorBlendAttachmentState{colorBlend},
			},
			Layout:            native[core1_0.PipelineLayout](info.Layout),
			RenderPass:        native[core1_0.RenderPass](info.RenderPass),
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return gpu.Pipeline{}, failed("vkCreateGraphicsPipelines", res, err)
	}
	return gpu.NewPipeline(pipelines[0]), nil
}

func (d *device) DestroyPipeline(pipeline gpu.Pipeline) {
	d.driver.DestroyPipeline(native[core1_0.Pipeline](pipeline), nil)
}

func (d *device) CreateFramebuffer(info gpu.FramebufferCreateInfo) (gpu.Framebuffer, error) {
	framebuffer, res, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  native[core1_0.RenderPass](info.RenderPass),
		Layers:      1,
		Attachments: []core1_0.ImageView{native[core1_0.ImageView](info.Attachment)},
		Width:       info.Extent.Width,
		Height:      info.Extent.Height,
	})
	if err != nil {
		return gpu.Framebuffer{}, failed("vkCreateFramebuffer", res, err)
	}
	return gpu.NewFramebuffer(framebuffer), nil
}

func (d *device) DestroyFramebuffer(framebuffer gpu.Framebuffer) {
	d.driver.DestroyFramebuffer(native[core1_0.Framebuffer](framebuffer), nil)
}

func (d *device) CreateCommandPool() (gpu.CommandPool, error) {
	pool, res, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: d.queueFamily,
	})
	if err != nil {
		return gpu.CommandPool{}, failed("vkCreateCommandPool", res, err)
	}
	return gpu.NewCommandPool(pool), nil
}

func (d *device) DestroyCommandPool(pool gpu.CommandPool) {
	d.driver.DestroyCommandPool(native[core1_0.CommandPool](pool), nil)
}

func (d *device) AllocateCommandBuffer(pool gpu.CommandPool) (gpu.CommandBuffer, error) {
	buffers, res, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        native[core1_0.CommandPool](pool),
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return gpu.CommandBuffer{}, failed("vkAllocateCommandBuffers", res, err)
	}
	return gpu.NewCommandBuffer(buffers[0]), nil
}

func (d *device) FreeCommandBuffer(pool gpu.CommandPool, buffer gpu.CommandBuffer) {
	d.driver.FreeCommandBuffers(native[core1_0.CommandBuffer](buffer))
}

func (d *device) CreateFence(signaled bool) (gpu.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	fence, res, err := d.driver.CreateFence(nil, info)
	if err != nil {
		return gpu.Fence{}, failed("vkCreateFence", res, err)
	}
	return gpu.NewFence(fence), nil
}

func (d *device) DestroyFence(fence gpu.Fence) {
	d.driver.DestroyFence(native[core1_0.Fence](fence), nil)
}

func (d *device) ResetFence(fence gpu.Fence) error {
	res, err := d.driver.ResetFences(native[core1_0.Fence](fence))
	return failed("vkResetFences", res, err)
}

func (d *device) QueueSubmit(queue gpu.Queue, buffer gpu.CommandBuffer, fence gpu.Fence) error {
	nativeFence := native[core1_0.Fence](fence)
	res, err := d.driver.QueueSubmit(native[core1_0.Queue](queue), &nativeFence,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{native[core1_0.CommandBuffer](buffer)},
		})
	return failed("vkQueueSubmit", res, err)
}

func (d *device) WaitForFence(fence gpu.Fence, timeout time.Duration) (bool, error) {
	res, err := d.driver.WaitForFences(true, timeout, native[core1_0.Fence](fence))
	if err != nil {
		return false, failed("vkWaitForFences", res, err)
	}
	return res != core1_0.VKTimeout, nil
}

func (d *device) WaitIdle() error {
	res, err := d.driver.DeviceWaitIdle()
	return failed("vkDeviceWaitIdle", res, err)
}

func (d *device) Destroy() {
	d.driver.DestroyDevice(nil)
}

var _ gpu.Device = (*device)(nil)
