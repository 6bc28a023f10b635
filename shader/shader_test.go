package shader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/naga/spirv"

	"github.com/vkngwrapper/offscreen/shader"
)

func buildModule(c *qt.C, entries ...shader.EntryPoint) []uint32 {
	builder := spirv.NewModuleBuilder(spirv.Version1_3)
	builder.AddCapability(spirv.CapabilityShader)
	builder.SetMemoryModel(spirv.AddressingModelLogical, spirv.MemoryModelGLSL450)

	voidType := builder.AddTypeVoid()
	funcType := builder.AddTypeFunction(voidType)

	for _, entry := range entries {
		fn := builder.AddFunction(funcType, voidType, spirv.FunctionControlNone)
		builder.AddLabel()
		builder.AddReturn()
		builder.AddFunctionEnd()

		model := spirv.ExecutionModelVertex
		if entry.Stage == shader.StageFragment {
			model = spirv.ExecutionModelFragment
		}
		builder.AddEntryPoint(model, fn, entry.Name, nil)
	}

	code, err := shader.Bytecode(builder.Build())
	c.Assert(err, qt.IsNil)
	return code
}

func TestBytecode(t *testing.T) {
	c := qt.New(t)

	blob := make([]byte, 8)
	binary.LittleEndian.PutUint32(blob, 0x07230203)
	binary.LittleEndian.PutUint32(blob[4:], 0xdeadbeef)

	code, err := shader.Bytecode(blob)
	c.Assert(err, qt.IsNil)
	c.Assert(code, qt.DeepEquals, []uint32{0x07230203, 0xdeadbeef})

	_, err = shader.Bytecode(blob[:7])
	c.Assert(err, qt.ErrorMatches, `SPIR-V blob length 7 is not a multiple of 4`)
}

func TestEntryPoints(t *testing.T) {
	c := qt.New(t)

	code := buildModule(c,
		shader.EntryPoint{Name: shader.VertexEntry, Stage: shader.StageVertex},
		shader.EntryPoint{Name: "a_much_longer_fragment_entry_name", Stage: shader.StageFragment},
	)

	entries, err := shader.EntryPoints(code)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.DeepEquals, []shader.EntryPoint{
		{Name: shader.VertexEntry, Stage: shader.StageVertex},
		{Name: "a_much_longer_fragment_entry_name", Stage: shader.StageFragment},
	})
}

func TestRequireMissingEntry(t *testing.T) {
	c := qt.New(t)

	code := buildModule(c, shader.EntryPoint{Name: shader.VertexEntry, Stage: shader.StageVertex})

	err := shader.Require(code,
		shader.EntryPoint{Name: shader.VertexEntry, Stage: shader.StageVertex},
		shader.EntryPoint{Name: shader.FragmentEntry, Stage: shader.StageFragment},
	)
	c.Assert(err, qt.ErrorMatches, `module has no fragment entry point named "main_fs"`)

	err = shader.Require(code, shader.EntryPoint{Name: shader.VertexEntry, Stage: shader.StageFragment})
	c.Assert(err, qt.IsNotNil)
}

func TestEntryPointsMalformed(t *testing.T) {
	c := qt.New(t)

	_, err := shader.EntryPoints([]uint32{0x07230203, 0, 0})
	c.Assert(err, qt.ErrorMatches, `SPIR-V module is 3 words, shorter than its header`)

	_, err = shader.EntryPoints([]uint32{0x03022307, 0, 0, 0, 0})
	c.Assert(err, qt.ErrorMatches, `bad SPIR-V magic .*`)

	// One instruction claiming four words with only two present.
	_, err = shader.EntryPoints([]uint32{0x07230203, 0, 0, 0, 0, 4<<16 | 15, 0})
	c.Assert(err, qt.ErrorMatches, `malformed instruction at word 5`)

	// OpEntryPoint whose name runs off the end without a terminator.
	_, err = shader.EntryPoints([]uint32{0x07230203, 0, 0, 0, 0, 4<<16 | 15, 0, 1, 0x41414141})
	c.Assert(err, qt.ErrorMatches, `OpEntryPoint at word 5: unterminated literal string`)
}

func TestCompiledTriangleDeclaresStages(t *testing.T) {
	c := qt.New(t)

	blob, err := shader.Compile()
	c.Assert(err, qt.IsNil)

	code, err := shader.Bytecode(blob)
	c.Assert(err, qt.IsNil)

	err = shader.Require(code,
		shader.EntryPoint{Name: shader.VertexEntry, Stage: shader.StageVertex},
		shader.EntryPoint{Name: shader.FragmentEntry, Stage: shader.StageFragment},
	)
	c.Assert(err, qt.IsNil)
}

func TestReferenceStages(t *testing.T) {
	c := qt.New(t)

	positions := []mgl32.Vec4{{-1, -1, 0, 1}, {0, 1, 0, 1}, {1, -1, 0, 1}}
	colors := []mgl32.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for i := range positions {
		out := shader.MainVS(i)
		c.Assert(out.Position, qt.Equals, positions[i])
		c.Assert(out.Color, qt.Equals, colors[i])
	}

	c.Assert(shader.MainFS(mgl32.Vec3{0.25, 0.5, 0.75}), qt.Equals, mgl32.Vec4{0.25, 0.5, 0.75, 1})
	c.Assert(shader.MainMiss(), qt.Equals, mgl32.Vec3{1, 1, 1})

	palette := [3]mgl32.Vec3{{0.1, 0, 0}, {0, 0.2, 0}, {0, 0, 0.3}}
	c.Assert(shader.MainClosestHit(2, palette), qt.Equals, palette[2])
}

func TestFind(t *testing.T) {
	c := qt.New(t)

	builtin, err := shader.Builtin()
	c.Assert(err, qt.IsNil)
	code, err := shader.Bytecode(builtin.Code)
	c.Assert(err, qt.IsNil)

	found, err := shader.Find(code)
	c.Assert(err, qt.IsNil)
	c.Assert(found.Code, qt.DeepEquals, builtin.Code)
	c.Assert(found.Fragment(mgl32.Vec3{0, 1, 0}), qt.Equals, mgl32.Vec4{0, 1, 0, 1})

	white := strings.Replace(shader.Source, "return vec4<f32>(color, 1.0);", "return vec4<f32>(1.0, 1.0, 1.0, 1.0);", 1)
	c.Assert(white, qt.Not(qt.Equals), shader.Source)
	blob, err := shader.CompileSource(white)
	c.Assert(err, qt.IsNil)
	whiteCode, err := shader.Bytecode(blob)
	c.Assert(err, qt.IsNil)

	_, err = shader.Find(whiteCode)
	c.Assert(err, qt.ErrorMatches, "module has no reference implementation")

	registered := shader.Program{
		Code:   blob,
		Vertex: shader.MainVS,
		Fragment: func(mgl32.Vec3) mgl32.Vec4 {
			return mgl32.Vec4{1, 1, 1, 1}
		},
	}
	found, err = shader.Find(whiteCode, registered)
	c.Assert(err, qt.IsNil)
	c.Assert(found.Fragment(mgl32.Vec3{}), qt.Equals, mgl32.Vec4{1, 1, 1, 1})

	found, err = shader.Find(code, registered)
	c.Assert(err, qt.IsNil)
	c.Assert(found.Code, qt.DeepEquals, builtin.Code)
}

func TestOpen(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	builtin, err := shader.Open("")
	c.Assert(err, qt.IsNil)

	wgslPath := filepath.Join(dir, "triangle.WGSL")
	c.Assert(os.WriteFile(wgslPath, []byte(shader.Source), 0o644), qt.IsNil)
	compiled, err := shader.Open(wgslPath)
	c.Assert(err, qt.IsNil)
	c.Assert(compiled, qt.DeepEquals, builtin)

	spvPath := filepath.Join(dir, "triangle.spv")
	c.Assert(os.WriteFile(spvPath, builtin, 0o644), qt.IsNil)
	loaded, err := shader.Open(spvPath)
	c.Assert(err, qt.IsNil)
	c.Assert(loaded, qt.DeepEquals, builtin)

	brokenPath := filepath.Join(dir, "broken.wgsl")
	c.Assert(os.WriteFile(brokenPath, []byte("fn main_vs( {"), 0o644), qt.IsNil)
	_, err = shader.Open(brokenPath)
	c.Assert(err, qt.ErrorMatches, `.*broken.wgsl: compiling WGSL: .*`)

	_, err = shader.Open(filepath.Join(dir, "missing.spv"))
	c.Assert(err, qt.ErrorMatches, `reading shader .*missing.spv: .*`)
}
