package shader

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

const (
	spirvMagic      = 0x07230203
	spirvHeaderSize = 5

	opEntryPoint = 15
)

// Stage is a SPIR-V execution model.
type Stage uint32

const (
	StageVertex   Stage = 0
	StageFragment Stage = 4
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	}
	return fmt.Sprintf("Stage(%d)", uint32(s))
}

type EntryPoint struct {
	Name  string
	Stage Stage
}

// EntryPoints walks the instruction stream of a SPIR-V module and returns its OpEntryPoint
// declarations in order.
func EntryPoints(code []uint32) ([]EntryPoint, error) {
	if len(code) < spirvHeaderSize {
		return nil, errors.Newf("SPIR-V module is %d words, shorter than its header", len(code))
	}
	if code[0] != spirvMagic {
		return nil, errors.Newf("bad SPIR-V magic %#08x", code[0])
	}

	var entries []EntryPoint
	for offset := spirvHeaderSize; offset < len(code); {
		wordCount := int(code[offset] >> 16)
		opcode := code[offset] & 0xffff
		if wordCount == 0 || offset+wordCount > len(code) {
			return nil, errors.Newf("malformed instruction at word %d", offset)
		}

		if opcode == opEntryPoint {
			if wordCount < 4 {
				return nil, errors.Newf("truncated OpEntryPoint at word %d", offset)
			}
			name, err := literalString(code[offset+3 : offset+wordCount])
			if err != nil {
				return nil, errors.Wrapf(err, "OpEntryPoint at word %d", offset)
			}
			entries = append(entries, EntryPoint{Name: name, Stage: Stage(code[offset+1])})
		}

		offset += wordCount
	}

	return entries, nil
}

// Require fails unless every named entry point is declared with the matching stage.
func Require(code []uint32, want ...EntryPoint) error {
	entries, err := EntryPoints(code)
	if err != nil {
		return err
	}

	for _, w := range want {
		found := false
		for _, e := range entries {
			if e == w {
				found = true
				break
			}
		}
		if !found {
			return errors.Newf("module has no %s entry point named %q", w.Stage, w.Name)
		}
	}
	return nil
}

// literalString decodes a nul-terminated UTF-8 string packed little-endian into words.
func literalString(words []uint32) (string, error) {
	var out []byte
	for _, word := range words {
		for shift := 0; shift < 32; shift += 8 {
			b := byte(word >> shift)
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
		}
	}
	return "", errors.New("unterminated literal string")
}
