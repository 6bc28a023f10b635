// Package softgpu is a deterministic CPU implementation of gpu.Backend. It tracks every
// object it hands out, validates image layouts the way the validation layers would and
// rasterizes with the reference stages from the shader package.
package softgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/offscreen/gpu"
	"github.com/vkngwrapper/offscreen/shader"
)

// InjectedCode is the result code reported by calls failed with WithFailure.
const InjectedCode = "VK_ERROR_DEVICE_LOST"

const (
	linearRowAlignment = 256
	linearImageOffset  = 256
)

type Op string

const (
	OpCreate  Op = "create"
	OpDestroy Op = "destroy"
)

// Event records one object entering or leaving existence.
type Event struct {
	Op   Op
	Kind string
	ID   int
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s#%d", e.Op, e.Kind, e.ID)
}

type Option func(*Backend)

// WithAdapter replaces the default adapter list. It may be given more than once.
func WithAdapter(name string, families []gpu.QueueFamily, memoryTypes []gpu.MemoryType) Option {
	return func(b *Backend) {
		b.adapters = append(b.adapters, adapterSpec{name, families, memoryTypes})
		b.customAdapters = true
	}
}

// WithNoAdapters makes the instance report an empty device list.
func WithNoAdapters() Option {
	return func(b *Backend) {
		b.adapters = nil
		b.customAdapters = true
	}
}

// WithFailure makes the nth call (1-based) of the named native call fail with InjectedCode.
func WithFailure(call string, nth int) Option {
	return func(b *Backend) {
		b.failures[call] = nth
	}
}

// WithFormatFeatures overrides the features reported for one format and tiling.
func WithFormatFeatures(format gpu.Format, tiling gpu.ImageTiling, features gpu.FormatFeatureFlags) Option {
	return func(b *Backend) {
		b.formats[formatKey{format, tiling}] = features
	}
}

// WithProgram lets pipelines run modules other than the built in triangle. The backend
// executes the program's Go stages whenever a pipeline is built from its code.
func WithProgram(p shader.Program) Option {
	return func(b *Backend) {
		b.programs = append(b.programs, p)
	}
}

// WithStalledQueue makes submissions never complete.
func WithStalledQueue() Option {
	return func(b *Backend) {
		b.stalled = true
	}
}

type adapterSpec struct {
	name          string
	queueFamilies []gpu.QueueFamily
	memoryTypes   []gpu.MemoryType
}

type formatKey struct {
	format gpu.Format
	tiling gpu.ImageTiling
}

var defaultMemoryTypes = []gpu.MemoryType{
	{PropertyFlags: gpu.MemoryPropertyDeviceLocal, HeapIndex: 0},
	{PropertyFlags: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent, HeapIndex: 1},
	{PropertyFlags: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent | gpu.MemoryPropertyHostCached, HeapIndex: 1},
}

const (
	optimalMemoryTypeBits = 0b001
	linearMemoryTypeBits  = 0b110
)

// Backend is safe for concurrent use by independent renders.
type Backend struct {
	adapters       []adapterSpec
	customAdapters bool
	formats        map[formatKey]gpu.FormatFeatureFlags
	stalled        bool
	programs       []shader.Program

	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	nextID   int
	events   []Event
	live     map[int]Event
}

func New(options ...Option) *Backend {
	b := &Backend{
		formats: map[formatKey]gpu.FormatFeatureFlags{
			{gpu.FormatR8G8B8A8Unorm, gpu.ImageTilingOptimal}: gpu.FormatFeatureColorAttachment | gpu.FormatFeatureTransferSrc | gpu.FormatFeatureTransferDst,
			{gpu.FormatR8G8B8A8Unorm, gpu.ImageTilingLinear}:  gpu.FormatFeatureTransferSrc | gpu.FormatFeatureTransferDst,
		},
		failures: map[string]int{},
		calls:    map[string]int{},
		live:     map[int]Event{},
	}

	for _, option := range options {
		option(b)
	}

	if !b.customAdapters {
		b.adapters = []adapterSpec{{
			name: "Software Rasterizer",
			queueFamilies: []gpu.QueueFamily{
				{Flags: gpu.QueueTransfer, QueueCount: 1},
				{Flags: gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer, QueueCount: 1},
			},
			memoryTypes: defaultMemoryTypes,
		}}
	}

	return b
}

func (b *Backend) Name() string { return "software" }

// Events returns every create and destroy seen so far, in order.
func (b *Backend) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Event(nil), b.events...)
}

// Live returns the objects that were created and not yet destroyed.
func (b *Backend) Live() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for _, event := range b.events {
		if _, ok := b.live[event.ID]; ok && event.Op == OpCreate {
			out = append(out, event)
		}
	}
	return out
}

func (b *Backend) track(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	event := Event{Op: OpCreate, Kind: kind, ID: b.nextID}
	b.events = append(b.events, event)
	b.live[b.nextID] = event
	return b.nextID
}

func (b *Backend) untrack(kind string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, Event{Op: OpDestroy, Kind: kind, ID: id})
	delete(b.live, id)
}

// fail counts a native call and reports the injected failure for it, if any.
func (b *Backend) fail(call string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls[call]++
	if nth, ok := b.failures[call]; ok && nth == b.calls[call] {
		return gpu.CallFailed(call, InjectedCode)
	}
	return nil
}

func (b *Backend) CreateInstance(options gpu.InstanceOptions) (gpu.Instance, error) {
	if err := b.fail("vkCreateInstance"); err != nil {
		return nil, err
	}

	inst := &instance{backend: b, options: options}
	inst.id = b.track("Instance")
	return inst, nil
}

type instance struct {
	backend *Backend
	options gpu.InstanceOptions
	id      int
	devices int
}

func (i *instance) report(severity gpu.DiagnosticSeverity, category gpu.DiagnosticCategory, format string, args ...any) {
	if i.options.Diagnostics == nil {
		return
	}
	if severity < gpu.SeverityWarning && !i.options.Validation {
		return
	}
	i.options.Diagnostics(gpu.Diagnostic{
		Severity: severity,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (i *instance) Adapters() ([]gpu.Adapter, error) {
	if err := i.backend.fail("vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}

	adapters := make([]gpu.Adapter, 0, len(i.backend.adapters))
	for index, spec := range i.backend.adapters {
		adapters = append(adapters, gpu.NewAdapter(index, spec.name, spec.queueFamilies, spec.memoryTypes))
	}
	return adapters, nil
}

func (i *instance) CreateDevice(selection gpu.Selection) (gpu.Device, error) {
	index, ok := selection.Adapter.Native().(int)
	if !ok || index < 0 || index >= len(i.backend.adapters) {
		return nil, errors.Newf("adapter %q does not belong to this instance", selection.Adapter.Name)
	}
	spec := i.backend.adapters[index]
	if selection.QueueFamily < 0 || selection.QueueFamily >= len(spec.queueFamilies) {
		return nil, errors.Newf("queue family %d out of range for %q", selection.QueueFamily, spec.name)
	}
	if err := i.backend.fail("vkCreateDevice"); err != nil {
		return nil, err
	}

	d := &device{
		instance:    i,
		backend:     i.backend,
		memoryTypes: spec.memoryTypes,
		family:      selection.QueueFamily,
		objects:     map[any]string{},
	}
	d.id = i.backend.track("Device")
	d.queue = &queue{device: d}
	i.devices++
	i.report(gpu.SeverityInfo, gpu.CategoryGeneral, "created device on %s, queue family %d", spec.name, selection.QueueFamily)
	return d, nil
}

func (i *instance) Destroy() {
	if i.devices > 0 {
		i.report(gpu.SeverityError, gpu.CategoryValidation, "instance destroyed while %d devices are alive", i.devices)
	}
	i.backend.untrack("Instance", i.id)
}

// waitStalled stands in for a fence that never signals.
func waitStalled(timeout time.Duration) {
	if timeout > 0 {
		time.Sleep(timeout)
	}
}
