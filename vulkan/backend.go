// Package vulkan implements gpu.Backend on top of the system Vulkan loader. No window
// system is involved: the instance is created from the system driver and renders into
// device images only.
package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"

	"github.com/vkngwrapper/offscreen/gpu"
)

const ValidationLayer = "VK_LAYER_KHRONOS_validation"

var ErrValidationUnavailable = errors.New("validation layer " + ValidationLayer + " is not installed")

type Backend struct {
	loadDriver func() (core1_0.GlobalDriver, error)
}

func New() *Backend { return &Backend{loadDriver: core.CreateSystemDriver} }

func (b *Backend) Name() string { return "vulkan" }

func (b *Backend) CreateInstance(options gpu.InstanceOptions) (gpu.Instance, error) {
	globalDriver, err := b.loadDriver()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "loading the Vulkan driver"), gpu.ErrBackendCallFailed)
	}

	info := core1_0.InstanceCreateInfo{
		ApplicationName:    options.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "offscreen",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_0,
	}

	extensions, res, err := globalDriver.AvailableExtensions()
	if err != nil {
		return nil, failed("vkEnumerateInstanceExtensionProperties", res, err)
	}

	// Makes the instance see portability implementations such as MoltenVK
	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	i := &instance{diagnostics: options.Diagnostics}

	var messengerInfo ext_debug_utils.DebugUtilsMessengerCreateInfo
	if options.Validation {
		layers, res, err := globalDriver.AvailableLayers()
		if err != nil {
			return nil, failed("vkEnumerateInstanceLayerProperties", res, err)
		}
		if _, ok := layers[ValidationLayer]; !ok {
			return nil, errors.WithHint(errors.WithStack(ErrValidationUnavailable),
				"install the Vulkan SDK or disable validation")
		}
		info.EnabledLayerNames = append(info.EnabledLayerNames, ValidationLayer)

		if _, ok := extensions[ext_debug_utils.ExtensionName]; ok {
			info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext_debug_utils.ExtensionName)
			messengerInfo = i.messengerOptions()
			// Chained so that instance creation and destruction are covered too
			info.Next = messengerInfo
		}
	}

	handle, res, err := globalDriver.CreateInstance(nil, info)
	if err != nil {
		return nil, failed("vkCreateInstance", res, err)
	}

	i.driver, err = globalDriver.BuildInstanceDriver(handle)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "loading instance functions"), gpu.ErrBackendCallFailed)
	}

	if messengerInfo.UserCallback != nil {
		i.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(i.driver)
		i.messenger, res, err = i.debugDriver.CreateDebugUtilsMessenger(nil, messengerInfo)
		if err != nil {
			i.driver.DestroyInstance(nil)
			return nil, failed("vkCreateDebugUtilsMessengerEXT", res, err)
		}
	}

	return i, nil
}

type instance struct {
	driver      core1_0.CoreInstanceDriver
	debugDriver ext_debug_utils.ExtensionDriver
	messenger   ext_debug_utils.DebugUtilsMessenger
	diagnostics func(gpu.Diagnostic)
}

func (i *instance) Adapters() ([]gpu.Adapter, error) {
	physicalDevices, res, err := i.driver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, failed("vkEnumeratePhysicalDevices", res, err)
	}

	adapters := make([]gpu.Adapter, 0, len(physicalDevices))
	for _, physicalDevice := range physicalDevices {
		properties, err := i.driver.GetPhysicalDeviceProperties(physicalDevice)
		if err != nil {
			return nil, errors.Wrap(err, "vkGetPhysicalDeviceProperties")
		}

		var families []gpu.QueueFamily
		for _, family := range i.driver.GetPhysicalDeviceQueueFamilyProperties(physicalDevice) {
			families = append(families, gpu.QueueFamily{
				Flags:      gpu.QueueFlags(family.QueueFlags),
				QueueCount: family.QueueCount,
			})
		}

		var memoryTypes []gpu.MemoryType
		for _, memoryType := range i.driver.GetPhysicalDeviceMemoryProperties(physicalDevice).MemoryTypes {
			memoryTypes = append(memoryTypes, gpu.MemoryType{
				PropertyFlags: gpu.MemoryPropertyFlags(memoryType.PropertyFlags),
				HeapIndex:     memoryType.HeapIndex,
			})
		}

		adapters = append(adapters, gpu.NewAdapter(physicalDevice, properties.DriverName, families, memoryTypes))
	}
	return adapters, nil
}

func (i *instance) CreateDevice(selection gpu.Selection) (gpu.Device, error) {
	physicalDevice, ok := selection.Adapter.Native().(core1_0.PhysicalDevice)
	if !ok {
		return nil, errors.Newf("adapter %q was not enumerated by this backend", selection.Adapter.Name)
	}

	var extensionNames []string
	extensions, res, err := i.driver.EnumerateDeviceExtensionProperties(physicalDevice)
	if err != nil {
		return nil, failed("vkEnumerateDeviceExtensionProperties", res, err)
	}
	if _, ok := extensions[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	handle, res, err := i.driver.CreateDevice(physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: selection.QueueFamily,
				QueuePriorities:  []float32{1.0},
			},
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, failed("vkCreateDevice", res, err)
	}

	deviceDriver, err := i.driver.BuildDeviceDriver(handle)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "loading device functions"), gpu.ErrBackendCallFailed)
	}

	return &device{
		instance:       i,
		driver:         deviceDriver,
		physicalDevice: physicalDevice,
		queueFamily:    selection.QueueFamily,
		queue:          deviceDriver.GetQueue(selection.QueueFamily, 0),
	}, nil
}

func (i *instance) Destroy() {
	if i.messenger.Initialized() {
		i.debugDriver.DestroyDebugUtilsMessenger(i.messenger, nil)
	}
	i.driver.DestroyInstance(nil)
}

func (i *instance) messengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    i.logDebug,
	}
}

func (i *instance) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	if i.diagnostics != nil {
		i.diagnostics(diagnostic(msgType, severity, data.Message))
	}
	return false
}

func diagnostic(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, message string) gpu.Diagnostic {
	d := gpu.Diagnostic{Severity: gpu.SeverityVerbose, Category: gpu.CategoryGeneral, Message: message}

	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		d.Severity = gpu.SeverityError
	case severity&ext_debug_utils.SeverityWarning != 0:
		d.Severity = gpu.SeverityWarning
	case severity&ext_debug_utils.SeverityInfo != 0:
		d.Severity = gpu.SeverityInfo
	}

	switch {
	case msgType&ext_debug_utils.TypeValidation != 0:
		d.Category = gpu.CategoryValidation
	case msgType&ext_debug_utils.TypePerformance != 0:
		d.Category = gpu.CategoryPerformance
	}
	return d
}

// failed converts a driver error into a gpu.CallError. Successful result codes with a
// non-nil error come from the wrapper rather than the driver and keep their own message.
func failed(call string, res common.VkResult, err error) error {
	if err == nil {
		return nil
	}
	if res == core1_0.VKSuccess {
		return errors.Mark(errors.Wrap(err, call), gpu.ErrBackendCallFailed)
	}
	return errors.WithSecondaryError(gpu.CallFailed(call, res), err)
}
