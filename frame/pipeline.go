package frame

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/offscreen/gpu"
	"github.com/vkngwrapper/offscreen/shader"
)

// PipelineConfig is the fixed-function state of the triangle pipeline.
type PipelineConfig struct {
	VertexEntry   string
	FragmentEntry string

	Topology  gpu.PrimitiveTopology
	CullMode  gpu.CullMode
	FrontFace gpu.FrontFace
	DepthTest bool
	Blend     bool

	Format gpu.Format
	Extent gpu.Extent2D
}

func DefaultPipelineConfig(extent gpu.Extent2D, format gpu.Format) PipelineConfig {
	return PipelineConfig{
		VertexEntry:   shader.VertexEntry,
		FragmentEntry: shader.FragmentEntry,
		Topology:      gpu.PrimitiveTopologyTriangleList,
		CullMode:      gpu.CullModeBack,
		FrontFace:     gpu.FrontFaceCounterClockwise,
		Format:        format,
		Extent:        extent,
	}
}

type pipelineObjects struct {
	renderPass gpu.RenderPass
	layout     gpu.PipelineLayout
	pipeline   gpu.Pipeline
}

func pipelineFailed(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), gpu.ErrPipelineCreation)
}

// buildPipeline creates the render pass, layout and pipeline. The shader module only lives
// until the pipeline exists.
func buildPipeline(dev gpu.Device, td *teardown, blob []byte, cfg PipelineConfig) (pipelineObjects, error) {
	var objects pipelineObjects

	code, err := shader.Bytecode(blob)
	if err != nil {
		return objects, pipelineFailed(err, "decoding shader")
	}
	err = shader.Require(code,
		shader.EntryPoint{Name: cfg.VertexEntry, Stage: shader.StageVertex},
		shader.EntryPoint{Name: cfg.FragmentEntry, Stage: shader.StageFragment},
	)
	if err != nil {
		return objects, pipelineFailed(err, "checking shader entry points")
	}

	renderPass, err := dev.CreateRenderPass(gpu.RenderPassCreateInfo{
		Format:        cfg.Format,
		LoadOp:        gpu.AttachmentLoadOpClear,
		StoreOp:       gpu.AttachmentStoreOpStore,
		InitialLayout: gpu.ImageLayoutUndefined,
		FinalLayout:   gpu.ImageLayoutTransferSrcOptimal,
	})
	if err != nil {
		return objects, pipelineFailed(err, "creating render pass")
	}
	objects.renderPass = own(td, "render pass", renderPass, dev.DestroyRenderPass).Value()

	layout, err := dev.CreatePipelineLayout()
	if err != nil {
		return objects, pipelineFailed(err, "creating pipeline layout")
	}
	objects.layout = own(td, "pipeline layout", layout, dev.DestroyPipelineLayout).Value()

	module, err := dev.CreateShaderModule(code)
	if err != nil {
		return objects, pipelineFailed(err, "creating shader module")
	}
	ownedModule := own(td, "shader module", module, dev.DestroyShaderModule)
	defer ownedModule.Release()

	pipeline, err := dev.CreateGraphicsPipeline(gpu.GraphicsPipelineCreateInfo{
		Module:        module,
		VertexEntry:   cfg.VertexEntry,
		FragmentEntry: cfg.FragmentEntry,
		Topology:      cfg.Topology,
		Extent:        cfg.Extent,
		CullMode:      cfg.CullMode,
		FrontFace:     cfg.FrontFace,
		DepthTest:     cfg.DepthTest,
		Blend:         cfg.Blend,
		Layout:        layout,
		RenderPass:    renderPass,
	})
	if err != nil {
		return objects, pipelineFailed(err, "creating graphics pipeline")
	}
	objects.pipeline = own(td, "pipeline", pipeline, dev.DestroyPipeline).Value()

	return objects, nil
}
