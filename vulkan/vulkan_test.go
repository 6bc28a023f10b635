package vulkan

import (
	"image"
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"go.uber.org/mock/gomock"

	"github.com/vkngwrapper/offscreen/frame"
	"github.com/vkngwrapper/offscreen/gpu"
	"github.com/vkngwrapper/offscreen/shader"
)

func TestEnumValuesMatch(t *testing.T) {
	c := qt.New(t)

	c.Assert(core1_0.Format(gpu.FormatR8G8B8A8Unorm), qt.Equals, core1_0.FormatR8G8B8A8UnsignedNormalized)
	c.Assert(core1_0.Format(gpu.FormatB8G8R8A8Unorm), qt.Equals, core1_0.FormatB8G8R8A8UnsignedNormalized)
	c.Assert(core1_0.ImageLayout(gpu.ImageLayoutTransferSrcOptimal), qt.Equals, core1_0.ImageLayoutTransferSrcOptimal)
	c.Assert(core1_0.ImageLayout(gpu.ImageLayoutTransferDstOptimal), qt.Equals, core1_0.ImageLayoutTransferDstOptimal)
	c.Assert(core1_0.ImageLayout(gpu.ImageLayoutGeneral), qt.Equals, core1_0.ImageLayoutGeneral)
	c.Assert(core1_0.ImageUsageFlags(gpu.ImageUsageColorAttachment), qt.Equals, core1_0.ImageUsageColorAttachment)
	c.Assert(core1_0.ImageUsageFlags(gpu.ImageUsageTransferSrc), qt.Equals, core1_0.ImageUsageTransferSrc)
	c.Assert(core1_0.ImageUsageFlags(gpu.ImageUsageTransferDst), qt.Equals, core1_0.ImageUsageTransferDst)
	c.Assert(core1_0.ImageTiling(gpu.ImageTilingLinear), qt.Equals, core1_0.ImageTilingLinear)
	c.Assert(core1_0.MemoryPropertyFlags(gpu.MemoryPropertyHostCoherent), qt.Equals, core1_0.MemoryPropertyHostCoherent)
	c.Assert(core1_0.QueueFlags(gpu.QueueGraphics), qt.Equals, core1_0.QueueGraphics)
	c.Assert(core1_0.PipelineStageFlags(gpu.PipelineStageTransfer), qt.Equals, core1_0.PipelineStageTransfer)
	c.Assert(core1_0.AccessFlags(gpu.AccessTransferWrite), qt.Equals, core1_0.AccessTransferWrite)
	c.Assert(core1_0.CullModeFlags(gpu.CullModeBack), qt.Equals, core1_0.CullModeBack)
	c.Assert(core1_0.FrontFace(gpu.FrontFaceCounterClockwise), qt.Equals, core1_0.FrontFaceCounterClockwise)
	c.Assert(core1_0.AttachmentLoadOp(gpu.AttachmentLoadOpClear), qt.Equals, core1_0.AttachmentLoadOpClear)
	c.Assert(core1_0.PrimitiveTopology(gpu.PrimitiveTopologyTriangleList), qt.Equals, core1_0.PrimitiveTopologyTriangleList)
	c.Assert(core1_0.FormatFeatureFlags(gpu.FormatFeatureColorAttachment), qt.Equals, core1_0.FormatFeatureColorAttachment)
}

func TestDiagnosticMapping(t *testing.T) {
	c := qt.New(t)

	d := diagnostic(ext_debug_utils.TypeValidation, ext_debug_utils.SeverityError, "bad layout")
	c.Assert(d, qt.Equals, gpu.Diagnostic{Severity: gpu.SeverityError, Category: gpu.CategoryValidation, Message: "bad layout"})

	d = diagnostic(ext_debug_utils.TypePerformance, ext_debug_utils.SeverityWarning, "slow path")
	c.Assert(d.Severity, qt.Equals, gpu.SeverityWarning)
	c.Assert(d.Category, qt.Equals, gpu.CategoryPerformance)

	d = diagnostic(ext_debug_utils.TypeGeneral, ext_debug_utils.SeverityVerbose, "loader")
	c.Assert(d.Severity, qt.Equals, gpu.SeverityVerbose)
	c.Assert(d.Category, qt.Equals, gpu.CategoryGeneral)
}

func TestFailed(t *testing.T) {
	c := qt.New(t)

	c.Assert(failed("vkQueueSubmit", core1_0.VKSuccess, nil), qt.IsNil)

	err := failed("vkQueueSubmit", core1_0.VKErrorDeviceLost, errors.New("device lost"))
	c.Assert(errors.Is(err, gpu.ErrBackendCallFailed), qt.IsTrue)
	var callErr *gpu.CallError
	c.Assert(errors.As(err, &callErr), qt.IsTrue)
	c.Assert(callErr.Call, qt.Equals, "vkQueueSubmit")

	err = failed("vkCreateInstance", core1_0.VKSuccess, errors.New("marshalling options"))
	c.Assert(err, qt.ErrorMatches, `vkCreateInstance: marshalling options`)
	c.Assert(errors.Is(err, gpu.ErrBackendCallFailed), qt.IsTrue)
}

func TestInstanceAndDeviceDrivers(t *testing.T) {
	c := qt.New(t)
	ctrl := gomock.NewController(t)

	globalDriver := mocks1_0.NewMockGlobalDriver(ctrl)
	instanceDriver := mocks1_0.NewMockCoreInstanceDriver(ctrl)
	deviceDriver := mocks1_0.NewMockCoreDeviceDriver(ctrl)

	instanceHandle := mocks.NewDummyInstance(common.Vulkan1_0, []string{})
	physicalDevice := mocks.NewDummyPhysicalDevice(instanceHandle, common.Vulkan1_0)
	deviceHandle := mocks.NewDummyDevice(common.Vulkan1_0, []string{})
	queue := mocks.NewDummyQueue(deviceHandle)

	globalDriver.EXPECT().AvailableExtensions().Return(map[string]*core1_0.ExtensionProperties{}, core1_0.VKSuccess, nil)
	globalDriver.EXPECT().CreateInstance(gomock.Nil(), gomock.Any()).
		DoAndReturn(func(_ any, info core1_0.InstanceCreateInfo) (core1_0.Instance, common.VkResult, error) {
			c.Check(info.ApplicationName, qt.Equals, "offscreen test")
			c.Check(info.EnabledLayerNames, qt.HasLen, 0)
			return instanceHandle, core1_0.VKSuccess, nil
		})
	globalDriver.EXPECT().BuildInstanceDriver(instanceHandle).Return(instanceDriver, nil)

	instanceDriver.EXPECT().EnumeratePhysicalDevices().Return([]core1_0.PhysicalDevice{physicalDevice}, core1_0.VKSuccess, nil)
	instanceDriver.EXPECT().GetPhysicalDeviceProperties(physicalDevice).Return(&core1_0.PhysicalDeviceProperties{DriverName: "Mock GPU"}, nil)
	instanceDriver.EXPECT().GetPhysicalDeviceQueueFamilyProperties(physicalDevice).Return([]*core1_0.QueueFamilyProperties{
		{QueueFlags: core1_0.QueueTransfer, QueueCount: 1},
		{QueueFlags: core1_0.QueueGraphics | core1_0.QueueTransfer, QueueCount: 2},
	})
	instanceDriver.EXPECT().GetPhysicalDeviceMemoryProperties(physicalDevice).Return(&core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{{PropertyFlags: core1_0.MemoryPropertyDeviceLocal}},
	})
	instanceDriver.EXPECT().EnumerateDeviceExtensionProperties(physicalDevice).Return(map[string]*core1_0.ExtensionProperties{}, core1_0.VKSuccess, nil)
	instanceDriver.EXPECT().CreateDevice(physicalDevice, gomock.Nil(), gomock.Any()).
		DoAndReturn(func(_ core1_0.PhysicalDevice, _ any, info core1_0.DeviceCreateInfo) (core1_0.Device, common.VkResult, error) {
			c.Check(info.QueueCreateInfos, qt.HasLen, 1)
			c.Check(info.QueueCreateInfos[0].QueueFamilyIndex, qt.Equals, 1)
			return deviceHandle, core1_0.VKSuccess, nil
		})
	instanceDriver.EXPECT().BuildDeviceDriver(deviceHandle).Return(deviceDriver, nil)
	deviceDriver.EXPECT().GetQueue(1, 0).Return(queue)

	backend := &Backend{loadDriver: func() (core1_0.GlobalDriver, error) { return globalDriver, nil }}
	inst, err := backend.CreateInstance(gpu.InstanceOptions{ApplicationName: "offscreen test"})
	c.Assert(err, qt.IsNil)

	adapters, err := inst.Adapters()
	c.Assert(err, qt.IsNil)
	c.Assert(adapters, qt.HasLen, 1)
	c.Assert(adapters[0].Name, qt.Equals, "Mock GPU")
	c.Assert(adapters[0].MemoryTypes, qt.DeepEquals, []gpu.MemoryType{{PropertyFlags: gpu.MemoryPropertyDeviceLocal}})

	selection, err := gpu.SelectAdapter(adapters)
	c.Assert(err, qt.IsNil)
	c.Assert(selection.QueueFamily, qt.Equals, 1)

	dev, err := inst.CreateDevice(selection)
	c.Assert(err, qt.IsNil)
	c.Assert(dev.Queue().Native(), qt.Equals, any(queue))

	deviceDriver.EXPECT().DestroyDevice(gomock.Nil())
	instanceDriver.EXPECT().DestroyInstance(gomock.Nil())
	dev.Destroy()
	inst.Destroy()
}

func TestValidationUnavailable(t *testing.T) {
	c := qt.New(t)
	ctrl := gomock.NewController(t)

	globalDriver := mocks1_0.NewMockGlobalDriver(ctrl)
	globalDriver.EXPECT().AvailableExtensions().Return(map[string]*core1_0.ExtensionProperties{}, core1_0.VKSuccess, nil)
	globalDriver.EXPECT().AvailableLayers().Return(map[string]*core1_0.LayerProperties{}, core1_0.VKSuccess, nil)

	backend := &Backend{loadDriver: func() (core1_0.GlobalDriver, error) { return globalDriver, nil }}
	_, err := backend.CreateInstance(gpu.InstanceOptions{Validation: true})
	c.Assert(errors.Is(err, ErrValidationUnavailable), qt.IsTrue)
	c.Assert(errors.GetAllHints(err), qt.DeepEquals, []string{"install the Vulkan SDK or disable validation"})
}

// TestRenderOnSystemDriver renders through the real loader when one is installed.
func TestRenderOnSystemDriver(t *testing.T) {
	c := qt.New(t)
	if _, err := core.CreateSystemDriver(); err != nil {
		c.Skip("no Vulkan loader: ", err)
	}

	options := frame.DefaultOptions()
	options.Validation = false
	options.Extent = gpu.Extent2D{Width: 64, Height: 48}
	compiled, err := shader.Compile()
	c.Assert(err, qt.IsNil)
	options.Shader = compiled

	var got *image.RGBA
	logger, _ := logtest.NewNullLogger()
	result, err := frame.NewRenderer(New(), options, logger).Render(frame.SinkFunc(func(img *image.RGBA) error {
		got = img
		return nil
	}))
	if errors.Is(err, gpu.ErrNoSuitableDevice) {
		c.Skip("no graphics-capable Vulkan device")
	}
	c.Assert(err, qt.IsNil)
	c.Assert(result.State, qt.Equals, frame.StateTornDown)
	c.Assert(got.Bounds(), qt.Equals, image.Rect(0, 0, 64, 48))
	c.Assert(got.RGBAAt(63, 47).A, qt.Equals, uint8(255))
}
