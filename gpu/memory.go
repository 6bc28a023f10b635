package gpu

import "github.com/cockroachdb/errors"

// FindMemoryType returns the lowest index i such that bit i of typeBits is set and
// types[i] carries every flag in required.
func FindMemoryType(types []MemoryType, typeBits uint32, required MemoryPropertyFlags) (int, error) {
	for i, memoryType := range types {
		if i >= 32 {
			break
		}
		if typeBits&(1<<uint(i)) == 0 {
			continue
		}
		if memoryType.PropertyFlags&required != required {
			continue
		}
		return i, nil
	}

	return -1, errors.Wrapf(ErrNoSuitableMemoryType, "type bits %#b, required %s", typeBits, required)
}
