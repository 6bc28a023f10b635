// Package frame renders a single triangle offscreen and hands the pixels to a sink.
package frame

import (
	"fmt"
	"image"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/offscreen/gpu"
)

// Sink consumes the rendered image.
type Sink interface {
	WriteImage(img *image.RGBA) error
}

type SinkFunc func(img *image.RGBA) error

func (f SinkFunc) WriteImage(img *image.RGBA) error { return f(img) }

type Options struct {
	ApplicationName string
	Extent          gpu.Extent2D
	Format          gpu.Format
	ClearColor      gpu.ClearColor
	// Shader is a SPIR-V blob declaring the vertex and fragment entry points.
	Shader       []byte
	Validation   bool
	FenceTimeout time.Duration

	// Diagnostics, if set, sees every driver message in addition to the log.
	Diagnostics func(gpu.Diagnostic)
}

func DefaultOptions() Options {
	return Options{
		ApplicationName: "offscreen",
		Extent:          gpu.Extent2D{Width: 800, Height: 600},
		Format:          gpu.FormatR8G8B8A8Unorm,
		ClearColor:      gpu.ClearColor{0, 0, 0, 1},
		Validation:      true,
		FenceTimeout:    10 * time.Second,
	}
}

type Timing struct {
	Phase    string
	Duration time.Duration
}

type Result struct {
	// State is StateTornDown once Render returns, whether it failed or not.
	State       State
	// Reached is the furthest state before teardown: StateEncoded on success, earlier when
	// a phase failed.
	Reached     State
	Adapter     string
	Extent      gpu.Extent2D
	Output      string
	Timings     []Timing
	Diagnostics []gpu.Diagnostic
}

// Renderer owns every GPU object of one render. It is not safe for concurrent use;
// separate renderers may run concurrently.
type Renderer struct {
	backend gpu.Backend
	options Options
	logger  logrus.FieldLogger

	result   *Result
	teardown teardown

	device  gpu.Device
	queue   gpu.Queue
	objects pipelineObjects

	target      gpu.Image
	staging     gpu.Image
	stagingMem  gpu.Memory
	framebuffer gpu.Framebuffer
	drawCmd     gpu.CommandBuffer
	copyCmd     gpu.CommandBuffer
	fence       gpu.Fence
	memoryTypes []gpu.MemoryType
}

func NewRenderer(backend gpu.Backend, options Options, logger logrus.FieldLogger) *Renderer {
	return &Renderer{
		backend: backend,
		options: options,
		logger:  logger.WithField("backend", backend.Name()),
	}
}

// Render runs the whole frame: device setup, pipeline, draw, copy, readback and encode.
// Everything acquired is released before Render returns, whether it fails or not. The
// result is returned in both cases.
func (r *Renderer) Render(sink Sink) (result *Result, err error) {
	r.result = &Result{State: StateUninitialized, Reached: StateUninitialized, Extent: r.options.Extent}
	if s, ok := sink.(fmt.Stringer); ok {
		r.result.Output = s.String()
	}

	defer func() {
		if errors.Is(err, gpu.ErrSubmissionTimeout) {
			r.drain()
		}
		r.teardown.unwind(r.logger)
		if err != nil {
			r.logger.WithField("state", r.result.Reached).Debug("render aborted")
		}
		r.advance(StateTornDown)
	}()

	steps := []struct {
		phase string
		run   func() error
		next  State
	}{
		{"device", r.initDevice, StateDeviceReady},
		{"pipeline", r.initPipeline, StatePipelineReady},
		{"record", r.record, StateRecorded},
		{"draw", r.submitDraw, StateSubmitted},
		{"copy", r.submitCopy, StateCopied},
		{"encode", func() error { return r.encode(sink) }, StateEncoded},
	}

	for _, step := range steps {
		start := hrtime.Now()
		if err := step.run(); err != nil {
			return r.result, errors.Wrapf(err, "%s phase", step.phase)
		}
		elapsed := hrtime.Since(start)

		r.result.Timings = append(r.result.Timings, Timing{Phase: step.phase, Duration: elapsed})
		r.logger.WithField("elapsed", elapsed).Debugf("%s phase complete", step.phase)
		r.advance(step.next)
	}

	return r.result, nil
}

func (r *Renderer) advance(state State) {
	if state != StateTornDown {
		r.result.Reached = state
	}
	r.result.State = state
}

// drain gives work that missed its fence deadline one more wait slice before the objects it
// uses are released.
func (r *Renderer) drain() {
	signaled, err := r.device.WaitForFence(r.fence, gpu.FenceWaitSlice)
	if err == nil && signaled {
		return
	}
	r.logger.WithError(err).Warn("releasing objects while submitted work may still be running")
}

func (r *Renderer) diagnostic(d gpu.Diagnostic) {
	r.result.Diagnostics = append(r.result.Diagnostics, d)
	LogDiagnostics(r.logger)(d)
	if r.options.Diagnostics != nil {
		r.options.Diagnostics(d)
	}
}

func (r *Renderer) initDevice() error {
	instance, err := r.backend.CreateInstance(gpu.InstanceOptions{
		ApplicationName: r.options.ApplicationName,
		Validation:      r.options.Validation,
		Diagnostics:     r.diagnostic,
	})
	if err != nil {
		return errors.Wrap(err, "creating instance")
	}
	own(&r.teardown, "instance", instance, gpu.Instance.Destroy)

	adapters, err := instance.Adapters()
	if err != nil {
		return errors.Wrap(err, "enumerating adapters")
	}
	selection, err := gpu.SelectAdapter(adapters)
	if err != nil {
		return err
	}
	r.result.Adapter = selection.Adapter.Name
	r.memoryTypes = selection.Adapter.MemoryTypes
	r.logger.WithFields(logrus.Fields{
		"adapter":      selection.Adapter.Name,
		"queue_family": selection.QueueFamily,
	}).Info("selected adapter")

	device, err := instance.CreateDevice(selection)
	if err != nil {
		return errors.Wrap(err, "creating device")
	}
	r.device = own(&r.teardown, "device", device, gpu.Device.Destroy).Value()
	r.queue = device.Queue()
	return nil
}

func (r *Renderer) checkFormat() error {
	format := r.options.Format
	checks := []struct {
		tiling   gpu.ImageTiling
		required gpu.FormatFeatureFlags
	}{
		{gpu.ImageTilingOptimal, gpu.FormatFeatureColorAttachment | gpu.FormatFeatureTransferSrc},
		{gpu.ImageTilingLinear, gpu.FormatFeatureTransferDst},
	}

	for _, check := range checks {
		features := r.device.FormatFeatures(format, check.tiling)
		if features&check.required != check.required {
			return errors.Wrapf(gpu.ErrFormatUnsupported, "%s with %s tiling has features %#x, needs %#x",
				format, check.tiling, features, check.required)
		}
	}
	return nil
}

func (r *Renderer) initPipeline() error {
	if err := r.checkFormat(); err != nil {
		return err
	}

	cfg := DefaultPipelineConfig(r.options.Extent, r.options.Format)
	objects, err := buildPipeline(r.device, &r.teardown, r.options.Shader, cfg)
	if err != nil {
		return err
	}
	r.objects = objects
	return nil
}

// createImage creates an image and binds it to fresh memory with the required properties.
func (r *Renderer) createImage(label string, tiling gpu.ImageTiling, usage gpu.ImageUsageFlags, required gpu.MemoryPropertyFlags) (gpu.Image, gpu.Memory, error) {
	dev := r.device
	img, err := dev.CreateImage(gpu.ImageCreateInfo{
		Extent: r.options.Extent,
		Format: r.options.Format,
		Tiling: tiling,
		Usage:  usage,
	})
	if err != nil {
		return gpu.Image{}, gpu.Memory{}, errors.Wrapf(err, "creating %s image", label)
	}
	own(&r.teardown, label+" image", img, dev.DestroyImage)

	requirements := dev.ImageMemoryRequirements(img)
	typeIndex, err := gpu.FindMemoryType(r.memoryTypes, requirements.MemoryTypeBits, required)
	if err != nil {
		return gpu.Image{}, gpu.Memory{}, errors.Wrapf(err, "%s memory", label)
	}

	mem, err := dev.AllocateMemory(requirements.Size, typeIndex)
	if err != nil {
		return gpu.Image{}, gpu.Memory{}, errors.Wrapf(err, "allocating %s memory", label)
	}
	own(&r.teardown, label+" memory", mem, dev.FreeMemory)

	if err := dev.BindImageMemory(img, mem); err != nil {
		return gpu.Image{}, gpu.Memory{}, errors.Wrapf(err, "binding %s memory", label)
	}

	r.logger.WithFields(logrus.Fields{
		"image":       label,
		"bytes":       requirements.Size,
		"memory_type": typeIndex,
	}).Debug("allocated image memory")
	return img, mem, nil
}

func (r *Renderer) record() error {
	dev := r.device

	target, _, err := r.createImage("render target", gpu.ImageTilingOptimal,
		gpu.ImageUsageColorAttachment|gpu.ImageUsageTransferSrc, gpu.MemoryPropertyDeviceLocal)
	if err != nil {
		return err
	}
	r.target = target

	view, err := dev.CreateImageView(target, r.options.Format)
	if err != nil {
		return errors.Wrap(err, "creating render target view")
	}
	own(&r.teardown, "render target view", view, dev.DestroyImageView)

	r.staging, r.stagingMem, err = r.createImage("staging", gpu.ImageTilingLinear,
		gpu.ImageUsageTransferDst, gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent)
	if err != nil {
		return err
	}

	framebuffer, err := dev.CreateFramebuffer(gpu.FramebufferCreateInfo{
		RenderPass: r.objects.renderPass,
		Attachment: view,
		Extent:     r.options.Extent,
	})
	if err != nil {
		return errors.Wrap(err, "creating framebuffer")
	}
	r.framebuffer = own(&r.teardown, "framebuffer", framebuffer, dev.DestroyFramebuffer).Value()

	pool, err := dev.CreateCommandPool()
	if err != nil {
		return errors.Wrap(err, "creating command pool")
	}
	own(&r.teardown, "command pool", pool, dev.DestroyCommandPool)

	freeBuffer := func(cmd gpu.CommandBuffer) { dev.FreeCommandBuffer(pool, cmd) }
	for _, cmd := range []*gpu.CommandBuffer{&r.drawCmd, &r.copyCmd} {
		buffer, err := dev.AllocateCommandBuffer(pool)
		if err != nil {
			return errors.Wrap(err, "allocating command buffer")
		}
		*cmd = own(&r.teardown, "command buffer", buffer, freeBuffer).Value()
	}

	fence, err := dev.CreateFence(true)
	if err != nil {
		return errors.Wrap(err, "creating fence")
	}
	r.fence = own(&r.teardown, "fence", fence, dev.DestroyFence).Value()

	err = recordDraw(dev, r.drawCmd, drawTarget{
		renderPass:  r.objects.renderPass,
		framebuffer: r.framebuffer,
		pipeline:    r.objects.pipeline,
		extent:      r.options.Extent,
	}, r.options.ClearColor)
	if err != nil {
		return err
	}

	return recordCopy(dev, r.copyCmd, r.target, r.staging, r.options.Extent)
}

func (r *Renderer) submitDraw() error {
	if err := submitAndWait(r.device, r.queue, r.drawCmd, r.fence, r.options.FenceTimeout); err != nil {
		return err
	}
	if err := r.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for device idle")
	}
	return nil
}

func (r *Renderer) submitCopy() error {
	return submitAndWait(r.device, r.queue, r.copyCmd, r.fence, r.options.FenceTimeout)
}

func (r *Renderer) encode(sink Sink) error {
	dev := r.device
	layout := dev.ImageSubresourceLayout(r.staging)
	size := dev.ImageMemoryRequirements(r.staging).Size

	data, err := dev.MapMemory(r.stagingMem, 0, size)
	if err != nil {
		return errors.Wrap(err, "mapping staging memory")
	}
	mapping := own(&r.teardown, "staging mapping", r.stagingMem, dev.UnmapMemory)

	view, err := NewLinearView(data, layout, r.options.Extent, r.options.Format)
	if err != nil {
		return err
	}
	img, err := view.RGBA()
	if err != nil {
		return err
	}
	mapping.Release()

	r.logger.WithFields(logrus.Fields{
		"row_pitch": layout.RowPitch,
		"offset":    layout.Offset,
	}).Debug("read back staging image")

	if err := sink.WriteImage(img); err != nil {
		return errors.Wrap(err, "writing image")
	}
	return nil
}
