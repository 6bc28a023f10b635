package gpu

import "github.com/cockroachdb/errors"

// Selection names the adapter and queue family a device will be created on.
type Selection struct {
	Adapter      Adapter
	AdapterIndex int
	QueueFamily  int
}

// SelectAdapter returns the first adapter, in enumeration order, with a queue family that
// supports graphics and exposes at least one queue. The first such family is used.
func SelectAdapter(adapters []Adapter) (Selection, error) {
	for adapterIndex, adapter := range adapters {
		for familyIndex, family := range adapter.QueueFamilies {
			if family.Flags&QueueGraphics == 0 || family.QueueCount <= 0 {
				continue
			}

			return Selection{
				Adapter:      adapter,
				AdapterIndex: adapterIndex,
				QueueFamily:  familyIndex,
			}, nil
		}
	}

	return Selection{}, errors.Wrapf(ErrNoSuitableDevice, "searched %d adapters", len(adapters))
}
