package gpu

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrNoSuitableDevice     = errors.New("no device exposes a graphics-capable queue family")
	ErrNoSuitableMemoryType = errors.New("no memory type satisfies the requested properties")
	ErrPipelineCreation     = errors.New("pipeline creation failed")
	ErrSubmissionTimeout    = errors.New("timed out waiting for submission fence")
	ErrBackendCallFailed    = errors.New("backend call failed")
	ErrFormatUnsupported    = errors.New("format does not support the requested features")
)

// CallError reports a native API call that returned a failure code.
type CallError struct {
	Call string
	Code string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s returned %s", e.Call, e.Code)
}

func (e *CallError) Is(target error) bool {
	return target == ErrBackendCallFailed
}

// CallFailed builds the error for a failed native call. code is typically the API's
// result enum; anything with a String method reads well.
func CallFailed(call string, code any) error {
	return errors.WithStackDepth(
		errors.Mark(&CallError{Call: call, Code: fmt.Sprint(code)}, ErrBackendCallFailed),
		1,
	)
}
