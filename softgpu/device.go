package softgpu

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/offscreen/gpu"
	"github.com/vkngwrapper/offscreen/shader"
)

const (
	codeValidation    = "VK_ERROR_VALIDATION_FAILED_EXT"
	codeInvalidShader = "VK_ERROR_INVALID_SHADER_NV"
	codeMapFailed     = "VK_ERROR_MEMORY_MAP_FAILED"
	codeDeviceLost    = "VK_ERROR_DEVICE_LOST"
)

type object struct {
	id   int
	kind string
}

func (o *object) base() *object { return o }

type tracked interface {
	base() *object
}

type nativer interface {
	Native() any
}

type image struct {
	object
	info     gpu.ImageCreateInfo
	layout   gpu.ImageLayout
	memory   *memory
	offset   int
	rowPitch int
}

func (i *image) size() int {
	return i.offset + i.rowPitch*i.info.Extent.Height
}

type memory struct {
	object
	typeIndex int
	flags     gpu.MemoryPropertyFlags
	data      []byte
	mapped    bool
}

type imageView struct {
	object
	image  *image
	format gpu.Format
}

type shaderModule struct {
	object
	code []uint32
}

type renderPass struct {
	object
	info gpu.RenderPassCreateInfo
}

type pipelineLayout struct {
	object
}

type pipeline struct {
	object
	info     gpu.GraphicsPipelineCreateInfo
	vertex   shader.VertexFunc
	fragment shader.FragmentFunc
}

type framebuffer struct {
	object
	renderPass *renderPass
	view       *imageView
	extent     gpu.Extent2D
}

type commandPool struct {
	object
	buffers map[*commandBuffer]struct{}
}

type queue struct {
	device *device
}

type device struct {
	instance    *instance
	backend     *Backend
	id          int
	memoryTypes []gpu.MemoryType
	family      int
	queue       *queue
	objects     map[any]string
}

func (d *device) add(kind string, obj tracked) {
	o := obj.base()
	o.kind = kind
	o.id = d.backend.track(kind)
	d.objects[obj] = kind
}

func (d *device) remove(obj tracked) {
	o := obj.base()
	delete(d.objects, obj)
	d.backend.untrack(o.kind, o.id)
}

// invalid reports a validation failure on the diagnostic channel and returns it as an error.
func (d *device) invalid(call string, format string, args ...any) error {
	message := fmt.Sprintf(format, args...)
	d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "%s: %s", call, message)
	return errors.Wrap(gpu.CallFailed(call, codeValidation), message)
}

func lookup[T tracked](d *device, h nativer) (T, error) {
	obj, ok := h.Native().(T)
	if !ok {
		return obj, errors.Newf("handle %v is not a %T", h.Native(), obj)
	}
	if _, ok := d.objects[obj]; !ok {
		return obj, errors.Newf("%s#%d was destroyed or belongs to another device", obj.base().kind, obj.base().id)
	}
	return obj, nil
}

func release[T tracked](d *device, call string, h nativer) (T, bool) {
	obj, err := lookup[T](d, h)
	if err != nil {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "%s: %v", call, err)
		return obj, false
	}
	d.remove(obj)
	return obj, true
}

func (d *device) Queue() gpu.Queue {
	return gpu.NewQueue(d.queue)
}

func (d *device) FormatFeatures(format gpu.Format, tiling gpu.ImageTiling) gpu.FormatFeatureFlags {
	return d.backend.formats[formatKey{format, tiling}]
}

var usageFeatures = []struct {
	usage   gpu.ImageUsageFlags
	feature gpu.FormatFeatureFlags
}{
	{gpu.ImageUsageColorAttachment, gpu.FormatFeatureColorAttachment},
	{gpu.ImageUsageTransferSrc, gpu.FormatFeatureTransferSrc},
	{gpu.ImageUsageTransferDst, gpu.FormatFeatureTransferDst},
}

func (d *device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	const call = "vkCreateImage"
	if err := d.backend.fail(call); err != nil {
		return gpu.Image{}, err
	}

	bpp := info.Format.BytesPerPixel()
	if bpp == 0 {
		return gpu.Image{}, d.invalid(call, "format %s is not renderable", info.Format)
	}
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		return gpu.Image{}, d.invalid(call, "extent %s is empty", info.Extent)
	}

	features := d.FormatFeatures(info.Format, info.Tiling)
	for _, need := range usageFeatures {
		if info.Usage&need.usage != 0 && features&need.feature == 0 {
			return gpu.Image{}, d.invalid(call, "%s %s tiling lacks feature %#x for usage %#x", info.Format, info.Tiling, need.feature, need.usage)
		}
	}

	img := &image{info: info, layout: gpu.ImageLayoutUndefined}
	if info.Tiling == gpu.ImageTilingLinear {
		img.offset = linearImageOffset
		img.rowPitch = align(info.Extent.Width*bpp, linearRowAlignment)
	} else {
		img.rowPitch = info.Extent.Width * bpp
	}
	d.add("Image", img)
	return gpu.NewImage(img), nil
}

func (d *device) DestroyImage(h gpu.Image) {
	release[*image](d, "vkDestroyImage", h)
}

func (d *device) ImageMemoryRequirements(h gpu.Image) gpu.MemoryRequirements {
	img, err := lookup[*image](d, h)
	if err != nil {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "vkGetImageMemoryRequirements: %v", err)
		return gpu.MemoryRequirements{}
	}

	bits := uint32(optimalMemoryTypeBits)
	if img.info.Tiling == gpu.ImageTilingLinear {
		bits = linearMemoryTypeBits
	}
	return gpu.MemoryRequirements{
		Size:           img.size(),
		Alignment:      linearRowAlignment,
		MemoryTypeBits: bits,
	}
}

func (d *device) ImageSubresourceLayout(h gpu.Image) gpu.SubresourceLayout {
	img, err := lookup[*image](d, h)
	if err != nil {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "vkGetImageSubresourceLayout: %v", err)
		return gpu.SubresourceLayout{}
	}
	if img.info.Tiling != gpu.ImageTilingLinear {
		d.instance.report(gpu.SeverityWarning, gpu.CategoryValidation, "vkGetImageSubresourceLayout: Image#%d does not use linear tiling", img.id)
	}

	return gpu.SubresourceLayout{
		Offset:   img.offset,
		Size:     img.rowPitch * img.info.Extent.Height,
		RowPitch: img.rowPitch,
	}
}

func (d *device) CreateImageView(h gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	const call = "vkCreateImageView"
	if err := d.backend.fail(call); err != nil {
		return gpu.ImageView{}, err
	}

	img, err := lookup[*image](d, h)
	if err != nil {
		return gpu.ImageView{}, d.invalid(call, "%v", err)
	}
	if img.memory == nil {
		return gpu.ImageView{}, d.invalid(call, "Image#%d has no memory bound", img.id)
	}
	if format != img.info.Format {
		return gpu.ImageView{}, d.invalid(call, "view format %s differs from image format %s", format, img.info.Format)
	}

	view := &imageView{image: img, format: format}
	d.add("ImageView", view)
	return gpu.NewImageView(view), nil
}

func (d *device) DestroyImageView(h gpu.ImageView) {
	release[*imageView](d, "vkDestroyImageView", h)
}

func (d *device) AllocateMemory(size int, memoryTypeIndex int) (gpu.Memory, error) {
	const call = "vkAllocateMemory"
	if err := d.backend.fail(call); err != nil {
		return gpu.Memory{}, err
	}
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(d.memoryTypes) {
		return gpu.Memory{}, d.invalid(call, "memory type %d out of range", memoryTypeIndex)
	}
	if size <= 0 {
		return gpu.Memory{}, d.invalid(call, "allocation size %d", size)
	}

	mem := &memory{
		typeIndex: memoryTypeIndex,
		flags:     d.memoryTypes[memoryTypeIndex].PropertyFlags,
		data:      make([]byte, size),
	}
	d.add("Memory", mem)
	return gpu.NewMemory(mem), nil
}

func (d *device) FreeMemory(h gpu.Memory) {
	release[*memory](d, "vkFreeMemory", h)
}

func (d *device) BindImageMemory(hImage gpu.Image, hMemory gpu.Memory) error {
	const call = "vkBindImageMemory"
	if err := d.backend.fail(call); err != nil {
		return err
	}

	img, err := lookup[*image](d, hImage)
	if err != nil {
		return d.invalid(call, "%v", err)
	}
	mem, err := lookup[*memory](d, hMemory)
	if err != nil {
		return d.invalid(call, "%v", err)
	}

	if img.memory != nil {
		return d.invalid(call, "Image#%d already has memory bound", img.id)
	}
	if d.ImageMemoryRequirements(hImage).MemoryTypeBits&(1<<uint(mem.typeIndex)) == 0 {
		return d.invalid(call, "memory type %d is not allowed for Image#%d", mem.typeIndex, img.id)
	}
	if len(mem.data) < img.size() {
		return d.invalid(call, "Memory#%d holds %d bytes, Image#%d needs %d", mem.id, len(mem.data), img.id, img.size())
	}

	img.memory = mem
	return nil
}

func (d *device) MapMemory(h gpu.Memory, offset int, size int) ([]byte, error) {
	const call = "vkMapMemory"
	if err := d.backend.fail(call); err != nil {
		return nil, err
	}

	mem, err := lookup[*memory](d, h)
	if err != nil {
		return nil, d.invalid(call, "%v", err)
	}
	if mem.flags&gpu.MemoryPropertyHostVisible == 0 {
		return nil, errors.Wrapf(gpu.CallFailed(call, codeMapFailed), "memory type %d is %s", mem.typeIndex, mem.flags)
	}
	if mem.mapped {
		return nil, d.invalid(call, "Memory#%d is already mapped", mem.id)
	}
	if offset < 0 || size < 0 || offset+size > len(mem.data) {
		return nil, d.invalid(call, "range [%d, %d) exceeds %d bytes", offset, offset+size, len(mem.data))
	}

	mem.mapped = true
	return mem.data[offset : offset+size : offset+size], nil
}

func (d *device) UnmapMemory(h gpu.Memory) {
	mem, err := lookup[*memory](d, h)
	if err != nil {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "vkUnmapMemory: %v", err)
		return
	}
	if !mem.mapped {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "vkUnmapMemory: Memory#%d is not mapped", mem.id)
	}
	mem.mapped = false
}

func (d *device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	const call = "vkCreateShaderModule"
	if err := d.backend.fail(call); err != nil {
		return gpu.ShaderModule{}, err
	}
	if len(code) == 0 || code[0] != 0x07230203 {
		return gpu.ShaderModule{}, errors.Wrap(gpu.CallFailed(call, codeInvalidShader), "code is not SPIR-V")
	}

	module := &shaderModule{code: append([]uint32(nil), code...)}
	d.add("ShaderModule", module)
	return gpu.NewShaderModule(module), nil
}

func (d *device) DestroyShaderModule(h gpu.ShaderModule) {
	release[*shaderModule](d, "vkDestroyShaderModule", h)
}

func (d *device) CreateRenderPass(info gpu.RenderPassCreateInfo) (gpu.RenderPass, error) {
	const call = "vkCreateRenderPass"
	if err := d.backend.fail(call); err != nil {
		return gpu.RenderPass{}, err
	}
	if info.FinalLayout == gpu.ImageLayoutUndefined {
		return gpu.RenderPass{}, d.invalid(call, "final layout must not be %s", info.FinalLayout)
	}

	rp := &renderPass{info: info}
	d.add("RenderPass", rp)
	return gpu.NewRenderPass(rp), nil
}

func (d *device) DestroyRenderPass(h gpu.RenderPass) {
	release[*renderPass](d, "vkDestroyRenderPass", h)
}

func (d *device) CreatePipelineLayout() (gpu.PipelineLayout, error) {
	if err := d.backend.fail("vkCreatePipelineLayout"); err != nil {
		return gpu.PipelineLayout{}, err
	}

	layout := &pipelineLayout{}
	d.add("PipelineLayout", layout)
	return gpu.NewPipelineLayout(layout), nil
}

func (d *device) DestroyPipelineLayout(h gpu.PipelineLayout) {
	release[*pipelineLayout](d, "vkDestroyPipelineLayout", h)
}

func (d *device) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) (gpu.Pipeline, error) {
	const call = "vkCreateGraphicsPipelines"
	if err := d.backend.fail(call); err != nil {
		return gpu.Pipeline{}, err
	}

	module, err := lookup[*shaderModule](d, info.Module)
	if err != nil {
		return gpu.Pipeline{}, d.invalid(call, "%v", err)
	}
	if _, err := lookup[*pipelineLayout](d, info.Layout); err != nil {
		return gpu.Pipeline{}, d.invalid(call, "%v", err)
	}
	if _, err := lookup[*renderPass](d, info.RenderPass); err != nil {
		return gpu.Pipeline{}, d.invalid(call, "%v", err)
	}
	if info.Topology != gpu.PrimitiveTopologyTriangleList {
		return gpu.Pipeline{}, d.invalid(call, "topology %d is not supported", info.Topology)
	}
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		return gpu.Pipeline{}, d.invalid(call, "viewport %s is empty", info.Extent)
	}

	err = shader.Require(module.code,
		shader.EntryPoint{Name: info.VertexEntry, Stage: shader.StageVertex},
		shader.EntryPoint{Name: info.FragmentEntry, Stage: shader.StageFragment},
	)
	if err != nil {
		return gpu.Pipeline{}, errors.Wrapf(gpu.CallFailed(call, codeInvalidShader), "%v", err)
	}

	program, err := shader.Find(module.code, d.backend.programs...)
	if err != nil {
		return gpu.Pipeline{}, errors.Wrapf(gpu.CallFailed(call, codeInvalidShader), "%v", err)
	}

	p := &pipeline{info: info, vertex: program.Vertex, fragment: program.Fragment}
	d.add("Pipeline", p)
	return gpu.NewPipeline(p), nil
}

func (d *device) DestroyPipeline(h gpu.Pipeline) {
	release[*pipeline](d, "vkDestroyPipeline", h)
}

func (d *device) CreateFramebuffer(info gpu.FramebufferCreateInfo) (gpu.Framebuffer, error) {
	const call = "vkCreateFramebuffer"
	if err := d.backend.fail(call); err != nil {
		return gpu.Framebuffer{}, err
	}

	rp, err := lookup[*renderPass](d, info.RenderPass)
	if err != nil {
		return gpu.Framebuffer{}, d.invalid(call, "%v", err)
	}
	view, err := lookup[*imageView](d, info.Attachment)
	if err != nil {
		return gpu.Framebuffer{}, d.invalid(call, "%v", err)
	}
	imageExtent := view.image.info.Extent
	if info.Extent.Width > imageExtent.Width || info.Extent.Height > imageExtent.Height {
		return gpu.Framebuffer{}, d.invalid(call, "extent %s exceeds attachment extent %s", info.Extent, imageExtent)
	}
	if view.format != rp.info.Format {
		return gpu.Framebuffer{}, d.invalid(call, "attachment format %s differs from render pass format %s", view.format, rp.info.Format)
	}

	fb := &framebuffer{renderPass: rp, view: view, extent: info.Extent}
	d.add("Framebuffer", fb)
	return gpu.NewFramebuffer(fb), nil
}

func (d *device) DestroyFramebuffer(h gpu.Framebuffer) {
	release[*framebuffer](d, "vkDestroyFramebuffer", h)
}

func (d *device) CreateCommandPool() (gpu.CommandPool, error) {
	if err := d.backend.fail("vkCreateCommandPool"); err != nil {
		return gpu.CommandPool{}, err
	}

	pool := &commandPool{buffers: map[*commandBuffer]struct{}{}}
	d.add("CommandPool", pool)
	return gpu.NewCommandPool(pool), nil
}

// DestroyCommandPool frees any buffers still allocated from the pool.
func (d *device) DestroyCommandPool(h gpu.CommandPool) {
	pool, err := lookup[*commandPool](d, h)
	if err != nil {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "vkDestroyCommandPool: %v", err)
		return
	}
	for buffer := range pool.buffers {
		d.remove(buffer)
	}
	d.remove(pool)
}

func (d *device) AllocateCommandBuffer(h gpu.CommandPool) (gpu.CommandBuffer, error) {
	const call = "vkAllocateCommandBuffers"
	if err := d.backend.fail(call); err != nil {
		return gpu.CommandBuffer{}, err
	}

	pool, err := lookup[*commandPool](d, h)
	if err != nil {
		return gpu.CommandBuffer{}, d.invalid(call, "%v", err)
	}

	buffer := &commandBuffer{pool: pool}
	pool.buffers[buffer] = struct{}{}
	d.add("CommandBuffer", buffer)
	return gpu.NewCommandBuffer(buffer), nil
}

func (d *device) FreeCommandBuffer(hPool gpu.CommandPool, hBuffer gpu.CommandBuffer) {
	pool, err := lookup[*commandPool](d, hPool)
	if err != nil {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "vkFreeCommandBuffers: %v", err)
		return
	}
	buffer, ok := release[*commandBuffer](d, "vkFreeCommandBuffers", hBuffer)
	if !ok {
		return
	}
	if buffer.pool != pool {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "vkFreeCommandBuffers: CommandBuffer#%d was allocated from CommandPool#%d", buffer.id, buffer.pool.id)
	}
	delete(buffer.pool.buffers, buffer)
}

func (d *device) CreateFence(signaled bool) (gpu.Fence, error) {
	if err := d.backend.fail("vkCreateFence"); err != nil {
		return gpu.Fence{}, err
	}

	f := &fence{signaled: signaled}
	d.add("Fence", f)
	return gpu.NewFence(f), nil
}

func (d *device) DestroyFence(h gpu.Fence) {
	release[*fence](d, "vkDestroyFence", h)
}

func (d *device) WaitIdle() error {
	return d.backend.fail("vkDeviceWaitIdle")
}

func (d *device) Destroy() {
	if len(d.objects) > 0 {
		d.instance.report(gpu.SeverityError, gpu.CategoryValidation, "vkDestroyDevice: %d objects are still alive", len(d.objects))
	}
	d.instance.devices--
	d.backend.untrack("Device", d.id)
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}
