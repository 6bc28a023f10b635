package frame

import (
	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/offscreen/gpu"
)

// teardown is the stack of everything a render has acquired.
type teardown struct {
	stack []gpu.Releaser
}

// own pushes a freshly acquired object and returns its Owned wrapper.
func own[T any](t *teardown, label string, value T, release func(T)) *gpu.Owned[T] {
	owned := gpu.Own(label, value, release)
	t.stack = append(t.stack, owned)
	return owned
}

// unwind releases everything in reverse acquisition order.
func (t *teardown) unwind(logger logrus.FieldLogger) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		logger.WithField("object", t.stack[i].Label()).Debug("releasing")
		t.stack[i].Release()
	}
	t.stack = nil
}
