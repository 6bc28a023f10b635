package gpu

import "time"

// FenceWaitSlice is the longest single fence wait issued to a device. Longer waits are
// split into slices so that callers can observe a deadline between them.
const FenceWaitSlice = 100 * time.Millisecond

type DiagnosticSeverity int

const (
	SeverityVerbose DiagnosticSeverity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s DiagnosticSeverity) String() string {
	switch s {
	case SeverityVerbose:
		return "verbose"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

type DiagnosticCategory int

const (
	CategoryGeneral DiagnosticCategory = iota
	CategoryValidation
	CategoryPerformance
)

func (c DiagnosticCategory) String() string {
	switch c {
	case CategoryGeneral:
		return "general"
	case CategoryValidation:
		return "validation"
	case CategoryPerformance:
		return "performance"
	}
	return "unknown"
}

// Diagnostic is a message raised by the driver or its validation layers.
type Diagnostic struct {
	Severity DiagnosticSeverity
	Category DiagnosticCategory
	Message  string
}

type InstanceOptions struct {
	ApplicationName string
	Validation      bool

	// Diagnostics receives driver messages. It may be nil.
	Diagnostics func(Diagnostic)
}

// Backend creates instances of one graphics API.
type Backend interface {
	Name() string
	CreateInstance(options InstanceOptions) (Instance, error)
}

type Instance interface {
	Adapters() ([]Adapter, error)
	CreateDevice(selection Selection) (Device, error)
	Destroy()
}

// Device is a logical device with one queue from the selected family. Every Create or
// Allocate call must be paired with the matching Destroy or Free call.
type Device interface {
	Queue() Queue
	FormatFeatures(format Format, tiling ImageTiling) FormatFeatureFlags

	CreateImage(info ImageCreateInfo) (Image, error)
	DestroyImage(image Image)
	ImageMemoryRequirements(image Image) MemoryRequirements
	ImageSubresourceLayout(image Image) SubresourceLayout
	CreateImageView(image Image, format Format) (ImageView, error)
	DestroyImageView(view ImageView)

	AllocateMemory(size int, memoryTypeIndex int) (Memory, error)
	FreeMemory(memory Memory)
	BindImageMemory(image Image, memory Memory) error
	MapMemory(memory Memory, offset int, size int) ([]byte, error)
	UnmapMemory(memory Memory)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreateRenderPass(info RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(renderPass RenderPass)
	CreatePipelineLayout() (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)

	CreateCommandPool() (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(pool CommandPool, buffer CommandBuffer)

	BeginCommandBuffer(buffer CommandBuffer) error
	EndCommandBuffer(buffer CommandBuffer) error
	CmdBeginRenderPass(buffer CommandBuffer, info RenderPassBeginInfo) error
	CmdBindPipeline(buffer CommandBuffer, pipeline Pipeline)
	CmdDraw(buffer CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance int)
	CmdEndRenderPass(buffer CommandBuffer)
	CmdPipelineBarrier(buffer CommandBuffer, barrier ImageBarrier) error
	CmdCopyImage(buffer CommandBuffer, region ImageCopy) error

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	ResetFence(fence Fence) error
	QueueSubmit(queue Queue, buffer CommandBuffer, fence Fence) error
	// WaitForFence blocks for at most timeout and reports whether the fence signaled.
	WaitForFence(fence Fence, timeout time.Duration) (bool, error)
	WaitIdle() error

	Destroy()
}
