package shader

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// TriangleVertexCount is the number of vertices MainVS defines.
const TriangleVertexCount = 3

var vertexColors = [3]mgl32.Vec3{
	{1, 0, 0},
	{0, 1, 0},
	{0, 0, 1},
}

type VertexOutput struct {
	Position mgl32.Vec4
	Color    mgl32.Vec3
}

type (
	VertexFunc   func(vertexIndex int) VertexOutput
	FragmentFunc func(color mgl32.Vec3) mgl32.Vec4
)

// Program pairs a SPIR-V module with Go functions computing what its vertex and fragment
// entry points do.
type Program struct {
	Code     []byte
	Vertex   VertexFunc
	Fragment FragmentFunc
}

// Matches reports whether code is the program's module.
func (p Program) Matches(code []uint32) bool {
	words, err := Bytecode(p.Code)
	return err == nil && slices.Equal(words, code)
}

var builtin = sync.OnceValues(func() (Program, error) {
	code, err := Compile()
	if err != nil {
		return Program{}, err
	}
	return Program{Code: code, Vertex: MainVS, Fragment: MainFS}, nil
})

// Builtin returns the compiled triangle with MainVS and MainFS as its stages.
func Builtin() (Program, error) {
	return builtin()
}

// Find returns the program whose module is code, checking the built in triangle after
// programs.
func Find(code []uint32, programs ...Program) (Program, error) {
	for _, p := range programs {
		if p.Matches(code) {
			return p, nil
		}
	}

	p, err := Builtin()
	if err != nil {
		return Program{}, err
	}
	if p.Matches(code) {
		return p, nil
	}
	return Program{}, errors.New("module has no reference implementation")
}

// MainVS places vertex 0, 1 and 2 at (-1,-1), (0,1) and (1,-1) in clip space and colors
// them red, green and blue.
func MainVS(vertexIndex int) VertexOutput {
	return VertexOutput{
		Position: mgl32.Vec4{
			float32(vertexIndex - 1),
			float32((vertexIndex&1)*2 - 1),
			0,
			1,
		},
		Color: vertexColors[vertexIndex],
	}
}

func MainFS(color mgl32.Vec3) mgl32.Vec4 {
	return color.Vec4(1)
}

func MainMiss() mgl32.Vec3 {
	return mgl32.Vec3{1, 1, 1}
}

func MainClosestHit(instanceID uint32, colors [3]mgl32.Vec3) mgl32.Vec3 {
	return colors[instanceID]
}
