package softgpu_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"

	"github.com/vkngwrapper/offscreen/gpu"
	"github.com/vkngwrapper/offscreen/softgpu"
)

type harness struct {
	backend     *softgpu.Backend
	instance    gpu.Instance
	device      gpu.Device
	diagnostics []gpu.Diagnostic
}

func newHarness(c *qt.C, options ...softgpu.Option) *harness {
	h := &harness{backend: softgpu.New(options...)}

	instance, err := h.backend.CreateInstance(gpu.InstanceOptions{
		ApplicationName: c.Name(),
		Validation:      true,
		Diagnostics: func(d gpu.Diagnostic) {
			h.diagnostics = append(h.diagnostics, d)
		},
	})
	c.Assert(err, qt.IsNil)
	h.instance = instance

	adapters, err := instance.Adapters()
	c.Assert(err, qt.IsNil)
	selection, err := gpu.SelectAdapter(adapters)
	c.Assert(err, qt.IsNil)

	device, err := instance.CreateDevice(selection)
	c.Assert(err, qt.IsNil)
	h.device = device

	c.Cleanup(func() {
		h.device.Destroy()
		h.instance.Destroy()
	})
	return h
}

func (h *harness) errors() []gpu.Diagnostic {
	var out []gpu.Diagnostic
	for _, d := range h.diagnostics {
		if d.Severity == gpu.SeverityError {
			out = append(out, d)
		}
	}
	return out
}

func (h *harness) image(c *qt.C, tiling gpu.ImageTiling, usage gpu.ImageUsageFlags, required gpu.MemoryPropertyFlags) (gpu.Image, gpu.Memory) {
	img, err := h.device.CreateImage(gpu.ImageCreateInfo{
		Extent: gpu.Extent2D{Width: 8, Height: 4},
		Format: gpu.FormatR8G8B8A8Unorm,
		Tiling: tiling,
		Usage:  usage,
	})
	c.Assert(err, qt.IsNil)

	requirements := h.device.ImageMemoryRequirements(img)
	adapters, err := h.instance.Adapters()
	c.Assert(err, qt.IsNil)
	index, err := gpu.FindMemoryType(adapters[0].MemoryTypes, requirements.MemoryTypeBits, required)
	c.Assert(err, qt.IsNil)

	mem, err := h.device.AllocateMemory(requirements.Size, index)
	c.Assert(err, qt.IsNil)
	c.Assert(h.device.BindImageMemory(img, mem), qt.IsNil)

	c.Cleanup(func() {
		h.device.DestroyImage(img)
		h.device.FreeMemory(mem)
	})
	return img, mem
}

func TestDefaultAdapter(t *testing.T) {
	c := qt.New(t)

	h := newHarness(c)
	adapters, err := h.instance.Adapters()
	c.Assert(err, qt.IsNil)
	c.Assert(adapters, qt.HasLen, 1)
	c.Assert(adapters[0].Name, qt.Equals, "Software Rasterizer")

	selection, err := gpu.SelectAdapter(adapters)
	c.Assert(err, qt.IsNil)
	c.Assert(selection.QueueFamily, qt.Equals, 1)
}

func TestNoAdapters(t *testing.T) {
	c := qt.New(t)

	backend := softgpu.New(softgpu.WithNoAdapters())
	instance, err := backend.CreateInstance(gpu.InstanceOptions{})
	c.Assert(err, qt.IsNil)
	defer instance.Destroy()

	adapters, err := instance.Adapters()
	c.Assert(err, qt.IsNil)
	c.Assert(adapters, qt.HasLen, 0)

	_, err = gpu.SelectAdapter(adapters)
	c.Assert(errors.Is(err, gpu.ErrNoSuitableDevice), qt.IsTrue)
}

func TestInjectedFailure(t *testing.T) {
	c := qt.New(t)

	h := newHarness(c, softgpu.WithFailure("vkCreateFence", 2))

	first, err := h.device.CreateFence(false)
	c.Assert(err, qt.IsNil)
	defer h.device.DestroyFence(first)

	_, err = h.device.CreateFence(false)
	c.Assert(errors.Is(err, gpu.ErrBackendCallFailed), qt.IsTrue)

	var callErr *gpu.CallError
	c.Assert(errors.As(err, &callErr), qt.IsTrue)
	c.Assert(callErr.Call, qt.Equals, "vkCreateFence")
	c.Assert(callErr.Code, qt.Equals, softgpu.InjectedCode)

	third, err := h.device.CreateFence(false)
	c.Assert(err, qt.IsNil)
	h.device.DestroyFence(third)
}

func TestLinearImageLayout(t *testing.T) {
	c := qt.New(t)

	h := newHarness(c)
	optimal, _ := h.image(c, gpu.ImageTilingOptimal, gpu.ImageUsageColorAttachment|gpu.ImageUsageTransferSrc, gpu.MemoryPropertyDeviceLocal)
	linear, _ := h.image(c, gpu.ImageTilingLinear, gpu.ImageUsageTransferDst, gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent)

	c.Assert(h.device.ImageMemoryRequirements(optimal).MemoryTypeBits, qt.Equals, uint32(0b001))
	c.Assert(h.device.ImageMemoryRequirements(linear).MemoryTypeBits, qt.Equals, uint32(0b110))

	layout := h.device.ImageSubresourceLayout(linear)
	c.Assert(layout.RowPitch, qt.Equals, 256)
	c.Assert(layout.Offset, qt.Equals, 256)
	c.Assert(layout.Size, qt.Equals, 256*4)
	c.Assert(h.errors(), qt.HasLen, 0)
}

func TestMapRequiresHostVisible(t *testing.T) {
	c := qt.New(t)

	h := newHarness(c)
	_, deviceLocal := h.image(c, gpu.ImageTilingOptimal, gpu.ImageUsageColorAttachment, gpu.MemoryPropertyDeviceLocal)
	_, hostVisible := h.image(c, gpu.ImageTilingLinear, gpu.ImageUsageTransferDst, gpu.MemoryPropertyHostVisible)

	_, err := h.device.MapMemory(deviceLocal, 0, 16)
	c.Assert(errors.Is(err, gpu.ErrBackendCallFailed), qt.IsTrue)

	data, err := h.device.MapMemory(hostVisible, 0, 16)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.HasLen, 16)

	_, err = h.device.MapMemory(hostVisible, 0, 16)
	c.Assert(err, qt.ErrorMatches, `(?s).*already mapped.*`)
	h.device.UnmapMemory(hostVisible)
}

func TestUnsupportedUsage(t *testing.T) {
	c := qt.New(t)

	h := newHarness(c, softgpu.WithFormatFeatures(gpu.FormatR8G8B8A8Unorm, gpu.ImageTilingOptimal, gpu.FormatFeatureTransferSrc))
	c.Assert(h.device.FormatFeatures(gpu.FormatR8G8B8A8Unorm, gpu.ImageTilingOptimal), qt.Equals, gpu.FormatFeatureTransferSrc)

	_, err := h.device.CreateImage(gpu.ImageCreateInfo{
		Extent: gpu.Extent2D{Width: 4, Height: 4},
		Format: gpu.FormatR8G8B8A8Unorm,
		Tiling: gpu.ImageTilingOptimal,
		Usage:  gpu.ImageUsageColorAttachment,
	})
	c.Assert(errors.Is(err, gpu.ErrBackendCallFailed), qt.IsTrue)
	c.Assert(h.errors(), qt.HasLen, 1)
	c.Assert(h.errors()[0].Category, qt.Equals, gpu.CategoryValidation)
}

func TestCopyChecksLayouts(t *testing.T) {
	c := qt.New(t)

	h := newHarness(c)
	src, _ := h.image(c, gpu.ImageTilingOptimal, gpu.ImageUsageColorAttachment|gpu.ImageUsageTransferSrc, gpu.MemoryPropertyDeviceLocal)
	dst, _ := h.image(c, gpu.ImageTilingLinear, gpu.ImageUsageTransferDst, gpu.MemoryPropertyHostVisible)

	pool, err := h.device.CreateCommandPool()
	c.Assert(err, qt.IsNil)
	defer h.device.DestroyCommandPool(pool)
	buffer, err := h.device.AllocateCommandBuffer(pool)
	c.Assert(err, qt.IsNil)
	fence, err := h.device.CreateFence(false)
	c.Assert(err, qt.IsNil)
	defer h.device.DestroyFence(fence)

	// Neither image was transitioned, so the copy sees both in the undefined layout.
	c.Assert(h.device.BeginCommandBuffer(buffer), qt.IsNil)
	c.Assert(h.device.CmdCopyImage(buffer, gpu.ImageCopy{
		Src:       src,
		SrcLayout: gpu.ImageLayoutTransferSrcOptimal,
		Dst:       dst,
		DstLayout: gpu.ImageLayoutTransferDstOptimal,
		Extent:    gpu.Extent2D{Width: 8, Height: 4},
	}), qt.IsNil)
	c.Assert(h.device.EndCommandBuffer(buffer), qt.IsNil)

	err = h.device.QueueSubmit(h.device.Queue(), buffer, fence)
	c.Assert(errors.Is(err, gpu.ErrBackendCallFailed), qt.IsTrue)
	c.Assert(h.errors(), qt.Not(qt.HasLen), 0)

	signaled, err := h.device.WaitForFence(fence, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(signaled, qt.IsFalse)
}

func TestStalledQueue(t *testing.T) {
	c := qt.New(t)

	h := newHarness(c, softgpu.WithStalledQueue())

	pool, err := h.device.CreateCommandPool()
	c.Assert(err, qt.IsNil)
	defer h.device.DestroyCommandPool(pool)
	buffer, err := h.device.AllocateCommandBuffer(pool)
	c.Assert(err, qt.IsNil)
	fence, err := h.device.CreateFence(false)
	c.Assert(err, qt.IsNil)
	defer h.device.DestroyFence(fence)

	c.Assert(h.device.BeginCommandBuffer(buffer), qt.IsNil)
	c.Assert(h.device.EndCommandBuffer(buffer), qt.IsNil)
	c.Assert(h.device.QueueSubmit(h.device.Queue(), buffer, fence), qt.IsNil)

	start := time.Now()
	signaled, err := h.device.WaitForFence(fence, 10*time.Millisecond)
	c.Assert(err, qt.IsNil)
	c.Assert(signaled, qt.IsFalse)
	c.Assert(time.Since(start) >= 10*time.Millisecond, qt.IsTrue)
}

func TestEventsTrackLifetimes(t *testing.T) {
	c := qt.New(t)

	backend := softgpu.New()
	instance, err := backend.CreateInstance(gpu.InstanceOptions{})
	c.Assert(err, qt.IsNil)
	adapters, err := instance.Adapters()
	c.Assert(err, qt.IsNil)
	selection, err := gpu.SelectAdapter(adapters)
	c.Assert(err, qt.IsNil)
	device, err := instance.CreateDevice(selection)
	c.Assert(err, qt.IsNil)

	layout, err := device.CreatePipelineLayout()
	c.Assert(err, qt.IsNil)
	c.Assert(backend.Live(), qt.HasLen, 3)

	device.DestroyPipelineLayout(layout)
	device.Destroy()
	instance.Destroy()

	c.Assert(backend.Live(), qt.HasLen, 0)
	var kinds []string
	for _, event := range backend.Events() {
		kinds = append(kinds, event.String())
	}
	c.Assert(kinds, qt.DeepEquals, []string{
		"create Instance#1",
		"create Device#2",
		"create PipelineLayout#3",
		"destroy PipelineLayout#3",
		"destroy Device#2",
		"destroy Instance#1",
	})
}
