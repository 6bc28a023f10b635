package gpu

// handle carries a backend's native object. Only the backend that created a handle knows
// what is inside it.
type handle struct {
	native any
}

// Valid reports whether the handle refers to a created object.
func (h handle) Valid() bool { return h.native != nil }

// Native returns the backend object behind the handle.
func (h handle) Native() any { return h.native }

type (
	Image          struct{ handle }
	Memory         struct{ handle }
	ImageView      struct{ handle }
	ShaderModule   struct{ handle }
	RenderPass     struct{ handle }
	PipelineLayout struct{ handle }
	Pipeline       struct{ handle }
	Framebuffer    struct{ handle }
	CommandPool    struct{ handle }
	CommandBuffer  struct{ handle }
	Fence          struct{ handle }
	Queue          struct{ handle }
)

func NewImage(native any) Image                   { return Image{handle{native}} }
func NewMemory(native any) Memory                 { return Memory{handle{native}} }
func NewImageView(native any) ImageView           { return ImageView{handle{native}} }
func NewShaderModule(native any) ShaderModule     { return ShaderModule{handle{native}} }
func NewRenderPass(native any) RenderPass         { return RenderPass{handle{native}} }
func NewPipelineLayout(native any) PipelineLayout { return PipelineLayout{handle{native}} }
func NewPipeline(native any) Pipeline             { return Pipeline{handle{native}} }
func NewFramebuffer(native any) Framebuffer       { return Framebuffer{handle{native}} }
func NewCommandPool(native any) CommandPool       { return CommandPool{handle{native}} }
func NewCommandBuffer(native any) CommandBuffer   { return CommandBuffer{handle{native}} }
func NewFence(native any) Fence                   { return Fence{handle{native}} }
func NewQueue(native any) Queue                   { return Queue{handle{native}} }

// Adapter is a physical device as reported by an Instance.
type Adapter struct {
	handle

	Name          string
	QueueFamilies []QueueFamily
	MemoryTypes   []MemoryType
}

func NewAdapter(native any, name string, queueFamilies []QueueFamily, memoryTypes []MemoryType) Adapter {
	return Adapter{
		handle:        handle{native},
		Name:          name,
		QueueFamilies: queueFamilies,
		MemoryTypes:   memoryTypes,
	}
}
