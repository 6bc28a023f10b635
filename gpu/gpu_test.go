package gpu_test

import (
	stderrors "errors"
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"

	"github.com/vkngwrapper/offscreen/gpu"
)

func adapter(name string, families ...gpu.QueueFamily) gpu.Adapter {
	return gpu.NewAdapter(name, name, families, nil)
}

func TestSelectAdapter(t *testing.T) {
	c := qt.New(t)

	compute := gpu.QueueFamily{Flags: gpu.QueueCompute | gpu.QueueTransfer, QueueCount: 2}
	graphics := gpu.QueueFamily{Flags: gpu.QueueGraphics | gpu.QueueCompute, QueueCount: 1}
	empty := gpu.QueueFamily{Flags: gpu.QueueGraphics, QueueCount: 0}

	selection, err := gpu.SelectAdapter([]gpu.Adapter{
		adapter("compute only", compute),
		adapter("empty graphics family", empty),
		adapter("discrete", compute, graphics, graphics),
		adapter("integrated", graphics),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(selection.Adapter.Name, qt.Equals, "discrete")
	c.Assert(selection.AdapterIndex, qt.Equals, 2)
	c.Assert(selection.QueueFamily, qt.Equals, 1)
	c.Assert(selection.Adapter.Native(), qt.Equals, "discrete")
}

func TestSelectAdapterNoneSuitable(t *testing.T) {
	c := qt.New(t)

	_, err := gpu.SelectAdapter(nil)
	c.Assert(errors.Is(err, gpu.ErrNoSuitableDevice), qt.IsTrue)

	_, err = gpu.SelectAdapter([]gpu.Adapter{
		adapter("transfer", gpu.QueueFamily{Flags: gpu.QueueTransfer, QueueCount: 1}),
		adapter("empty", gpu.QueueFamily{Flags: gpu.QueueGraphics}),
	})
	c.Assert(errors.Is(err, gpu.ErrNoSuitableDevice), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, `searched 2 adapters: .*`)
}

func TestFindMemoryType(t *testing.T) {
	c := qt.New(t)

	types := []gpu.MemoryType{
		{PropertyFlags: gpu.MemoryPropertyDeviceLocal},
		{PropertyFlags: gpu.MemoryPropertyHostVisible},
		{PropertyFlags: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent},
		{PropertyFlags: gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent | gpu.MemoryPropertyHostCached},
	}
	hostCoherent := gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent

	tests := []struct {
		name     string
		bits     uint32
		required gpu.MemoryPropertyFlags
		want     int
	}{
		{"first allowed", 0b1111, 0, 0},
		{"device local", 0b0001, gpu.MemoryPropertyDeviceLocal, 0},
		{"lowest superset", 0b1111, hostCoherent, 2},
		{"skips disallowed", 0b1000, hostCoherent, 3},
		{"single flag matches superset", 0b0110, gpu.MemoryPropertyHostVisible, 1},
	}
	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			index, err := gpu.FindMemoryType(types, test.bits, test.required)
			c.Assert(err, qt.IsNil)
			c.Assert(index, qt.Equals, test.want)
			c.Assert(test.bits&(1<<uint(index)), qt.Not(qt.Equals), uint32(0))
			c.Assert(types[index].PropertyFlags&test.required, qt.Equals, test.required)
		})
	}
}

func TestFindMemoryTypeFails(t *testing.T) {
	c := qt.New(t)

	types := []gpu.MemoryType{
		{PropertyFlags: gpu.MemoryPropertyDeviceLocal},
		{PropertyFlags: gpu.MemoryPropertyHostVisible},
	}

	_, err := gpu.FindMemoryType(types, 0, 0)
	c.Assert(errors.Is(err, gpu.ErrNoSuitableMemoryType), qt.IsTrue)

	_, err = gpu.FindMemoryType(types, 0b01, gpu.MemoryPropertyHostVisible)
	c.Assert(errors.Is(err, gpu.ErrNoSuitableMemoryType), qt.IsTrue)

	_, err = gpu.FindMemoryType(types, 0b11, gpu.MemoryPropertyHostVisible|gpu.MemoryPropertyHostCoherent)
	c.Assert(errors.Is(err, gpu.ErrNoSuitableMemoryType), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, `type bits 0b11, required HostVisible\|HostCoherent: .*`)

	// Bits beyond the reported types never match.
	_, err = gpu.FindMemoryType(types, 0b100, 0)
	c.Assert(errors.Is(err, gpu.ErrNoSuitableMemoryType), qt.IsTrue)
}

func TestCallError(t *testing.T) {
	c := qt.New(t)

	err := errors.Wrap(gpu.CallFailed("vkCreateImage", "VK_ERROR_OUT_OF_DEVICE_MEMORY"), "creating image")
	c.Assert(err, qt.ErrorMatches, `creating image: vkCreateImage returned VK_ERROR_OUT_OF_DEVICE_MEMORY`)
	c.Assert(errors.Is(err, gpu.ErrBackendCallFailed), qt.IsTrue)
	c.Assert(stderrors.Is(err, gpu.ErrBackendCallFailed), qt.IsTrue)
	c.Assert(errors.Is(err, gpu.ErrPipelineCreation), qt.IsFalse)

	var callErr *gpu.CallError
	c.Assert(errors.As(err, &callErr), qt.IsTrue)
	c.Assert(callErr.Call, qt.Equals, "vkCreateImage")
	c.Assert(callErr.Code, qt.Equals, "VK_ERROR_OUT_OF_DEVICE_MEMORY")
}

func TestOwnedReleasesOnce(t *testing.T) {
	c := qt.New(t)

	calls := 0
	owned := gpu.Own("fence", 7, func(v int) {
		c.Assert(v, qt.Equals, 7)
		calls++
	})
	c.Assert(owned.Label(), qt.Equals, "fence")
	c.Assert(owned.Value(), qt.Equals, 7)
	c.Assert(owned.Released(), qt.IsFalse)

	owned.Release()
	owned.Release()
	c.Assert(calls, qt.Equals, 1)
	c.Assert(owned.Released(), qt.IsTrue)
}

func TestHandles(t *testing.T) {
	c := qt.New(t)

	var zero gpu.Image
	c.Assert(zero.Valid(), qt.IsFalse)
	c.Assert(gpu.NewImage(1).Valid(), qt.IsTrue)
	c.Assert(gpu.NewFence("native").Native(), qt.Equals, "native")
}
