package frame

import (
	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/offscreen/gpu"
)

// LogDiagnostics returns a diagnostic handler that logs at the level matching each
// message's severity.
func LogDiagnostics(logger logrus.FieldLogger) func(gpu.Diagnostic) {
	return func(d gpu.Diagnostic) {
		entry := logger.WithFields(logrus.Fields{
			"severity": d.Severity.String(),
			"category": d.Category.String(),
		})

		switch d.Severity {
		case gpu.SeverityError:
			entry.Error(d.Message)
		case gpu.SeverityWarning:
			entry.Warn(d.Message)
		case gpu.SeverityInfo:
			entry.Info(d.Message)
		default:
			entry.Debug(d.Message)
		}
	}
}
