package frame

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"

	"github.com/vkngwrapper/offscreen/gpu"
)

// submitAndWait resets fence, submits cmd and blocks until the fence signals. The wait is
// issued in slices of gpu.FenceWaitSlice; a timeout <= 0 never expires.
func submitAndWait(dev gpu.Device, queue gpu.Queue, cmd gpu.CommandBuffer, fence gpu.Fence, timeout time.Duration) error {
	if err := dev.ResetFence(fence); err != nil {
		return errors.Wrap(err, "resetting fence")
	}
	if err := dev.QueueSubmit(queue, cmd, fence); err != nil {
		return errors.Wrap(err, "submitting commands")
	}

	start := hrtime.Now()
	for {
		slice := gpu.FenceWaitSlice
		if timeout > 0 {
			remaining := timeout - hrtime.Since(start)
			if remaining <= 0 {
				return errors.Wrapf(gpu.ErrSubmissionTimeout, "fence unsignaled after %s", timeout)
			}
			if remaining < slice {
				slice = remaining
			}
		}

		signaled, err := dev.WaitForFence(fence, slice)
		if err != nil {
			return errors.Wrap(err, "waiting for fence")
		}
		if signaled {
			return nil
		}
	}
}
