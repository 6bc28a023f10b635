// Package shader holds the triangle program: its WGSL source, the SPIR-V it compiles to and
// Go reference implementations of every stage it defines.
package shader

import (
	_ "embed"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
)

const (
	VertexEntry   = "main_vs"
	FragmentEntry = "main_fs"
)

//go:embed triangle.wgsl
var Source string

// Compile translates Source to a SPIR-V blob.
func Compile() ([]byte, error) {
	return CompileSource(Source)
}

func CompileSource(wgsl string) ([]byte, error) {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return nil, errors.Wrap(err, "compiling WGSL")
	}
	return spirv, nil
}

// Load reads a precompiled SPIR-V blob from disk.
func Load(path string) ([]byte, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader %s", path)
	}
	return blob, nil
}

// Open returns SPIR-V for path. WGSL sources are compiled; anything else is read as a
// precompiled blob. An empty path selects the built in triangle.
func Open(path string) ([]byte, error) {
	if path == "" {
		return Compile()
	}
	if !strings.EqualFold(filepath.Ext(path), ".wgsl") {
		return Load(path)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader %s", path)
	}
	blob, err := CompileSource(string(source))
	return blob, errors.Wrapf(err, "%s", path)
}

// Bytecode reinterprets a SPIR-V blob as little-endian words.
func Bytecode(blob []byte) ([]uint32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Newf("SPIR-V blob length %d is not a multiple of 4", len(blob))
	}

	code := make([]uint32, len(blob)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(blob[i*4:])
	}
	return code, nil
}
