package gpu

import "fmt"

// Flag and enum values match their Vulkan counterparts so backends can convert with a cast.

type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 1 << iota
	QueueCompute
	QueueTransfer
	QueueSparseBinding
)

type MemoryPropertyFlags uint32

const (
	MemoryPropertyDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryPropertyHostVisible
	MemoryPropertyHostCoherent
	MemoryPropertyHostCached
	MemoryPropertyLazilyAllocated
)

func (f MemoryPropertyFlags) String() string {
	if f == 0 {
		return "None"
	}

	names := []string{"DeviceLocal", "HostVisible", "HostCoherent", "HostCached", "LazilyAllocated"}
	var out string
	for i, name := range names {
		if f&(1<<i) == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += name
	}
	return out
}

type Format int

const (
	FormatUndefined     Format = 0
	FormatR8G8B8A8Unorm Format = 37
	FormatB8G8R8A8Unorm Format = 44
)

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8Unorm"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8Unorm"
	case FormatUndefined:
		return "Undefined"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// BytesPerPixel returns the texel size of the formats this module can read back.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm:
		return 4
	}
	return 0
}

type ImageTiling int

const (
	ImageTilingOptimal ImageTiling = iota
	ImageTilingLinear
)

func (t ImageTiling) String() string {
	if t == ImageTilingLinear {
		return "Linear"
	}
	return "Optimal"
}

type ImageUsageFlags uint32

const (
	ImageUsageTransferSrc ImageUsageFlags = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
)

type FormatFeatureFlags uint32

const (
	FormatFeatureColorAttachment FormatFeatureFlags = 0x00000080
	FormatFeatureTransferSrc     FormatFeatureFlags = 0x00004000
	FormatFeatureTransferDst     FormatFeatureFlags = 0x00008000
)

type ImageLayout int

const (
	ImageLayoutUndefined              ImageLayout = 0
	ImageLayoutGeneral                ImageLayout = 1
	ImageLayoutColorAttachmentOptimal ImageLayout = 2
	ImageLayoutTransferSrcOptimal     ImageLayout = 6
	ImageLayoutTransferDstOptimal     ImageLayout = 7
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "Undefined"
	case ImageLayoutGeneral:
		return "General"
	case ImageLayoutColorAttachmentOptimal:
		return "ColorAttachmentOptimal"
	case ImageLayoutTransferSrcOptimal:
		return "TransferSrcOptimal"
	case ImageLayoutTransferDstOptimal:
		return "TransferDstOptimal"
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe             PipelineStageFlags = 0x00000001
	PipelineStageColorAttachmentOutput PipelineStageFlags = 0x00000400
	PipelineStageTransfer              PipelineStageFlags = 0x00001000
	PipelineStageBottomOfPipe          PipelineStageFlags = 0x00002000
	PipelineStageHost                  PipelineStageFlags = 0x00004000
)

type AccessFlags uint32

const (
	AccessColorAttachmentWrite AccessFlags = 0x00000100
	AccessTransferRead         AccessFlags = 0x00000800
	AccessTransferWrite        AccessFlags = 0x00001000
	AccessHostRead             AccessFlags = 0x00002000
	AccessMemoryRead           AccessFlags = 0x00008000
)

type PrimitiveTopology int

const (
	PrimitiveTopologyPointList    PrimitiveTopology = 0
	PrimitiveTopologyLineList     PrimitiveTopology = 1
	PrimitiveTopologyTriangleList PrimitiveTopology = 3
)

type CullMode uint32

const (
	CullModeNone  CullMode = 0
	CullModeFront CullMode = 1
	CullModeBack  CullMode = 2
)

type FrontFace int

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type AttachmentLoadOp int

const (
	AttachmentLoadOpLoad AttachmentLoadOp = iota
	AttachmentLoadOpClear
	AttachmentLoadOpDontCare
)

type AttachmentStoreOp int

const (
	AttachmentStoreOpStore AttachmentStoreOp = iota
	AttachmentStoreOpDontCare
)

type Extent2D struct {
	Width, Height int
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

type ClearColor [4]float32

type QueueFamily struct {
	Flags      QueueFlags
	QueueCount int
}

type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     int
}

type MemoryRequirements struct {
	Size           int
	Alignment      int
	MemoryTypeBits uint32
}

// SubresourceLayout describes where a linear image's texels live inside its bound memory.
type SubresourceLayout struct {
	Offset   int
	Size     int
	RowPitch int
}

type ImageCreateInfo struct {
	Extent Extent2D
	Format Format
	Tiling ImageTiling
	Usage  ImageUsageFlags
}

// RenderPassCreateInfo describes a single-subpass render pass with one color attachment.
type RenderPassCreateInfo struct {
	Format        Format
	LoadOp        AttachmentLoadOp
	StoreOp       AttachmentStoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

type GraphicsPipelineCreateInfo struct {
	Module        ShaderModule
	VertexEntry   string
	FragmentEntry string

	Topology  PrimitiveTopology
	Extent    Extent2D
	CullMode  CullMode
	FrontFace FrontFace
	DepthTest bool
	Blend     bool

	Layout     PipelineLayout
	RenderPass RenderPass
}

type FramebufferCreateInfo struct {
	RenderPass RenderPass
	Attachment ImageView
	Extent     Extent2D
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	Clear       ClearColor
}

type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess AccessFlags
	DstAccess AccessFlags
	SrcStage  PipelineStageFlags
	DstStage  PipelineStageFlags
}

type ImageCopy struct {
	Src       Image
	SrcLayout ImageLayout
	Dst       Image
	DstLayout ImageLayout
	Extent    Extent2D
}
