// Package config assembles the run configuration from defaults, the environment, an
// optional env file and the command line, in that order of precedence.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/offscreen/frame"
	"github.com/vkngwrapper/offscreen/gpu"
	"github.com/vkngwrapper/offscreen/imagefile"
)

const (
	BackendVulkan   = "vulkan"
	BackendSoftware = "software"
)

var ErrInvalid = errors.New("invalid configuration")

// Configuration defines everything one run needs
type Configuration struct {
	ApplicationName string
	// Backend is either "vulkan" or "software"
	Backend string

	Render RenderConfiguration
	Output OutputConfiguration
	Log    LogConfiguration
}

// RenderConfiguration is used to configure the renderer
type RenderConfiguration struct {
	Width  int
	Height int

	ClearColor ClearColor
	// Shader is a WGSL or SPIR-V file. Empty means the built in triangle shader.
	Shader string

	Validation   bool
	FenceTimeout time.Duration
}

type OutputConfiguration struct {
	Path string
}

type LogConfiguration struct {
	Level  string
	Format string
}

func Default() Configuration {
	options := frame.DefaultOptions()
	return Configuration{
		ApplicationName: options.ApplicationName,
		Backend:         BackendVulkan,
		Render: RenderConfiguration{
			Width:        options.Extent.Width,
			Height:       options.Extent.Height,
			ClearColor:   ClearColor(options.ClearColor),
			Validation:   options.Validation,
			FenceTimeout: options.FenceTimeout,
		},
		Output: OutputConfiguration{Path: "out.png"},
		Log:    LogConfiguration{Level: "info", Format: "text"},
	}
}

func (c Configuration) Validate() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.Wrapf(ErrInvalid, "extent %dx%d must be positive", c.Render.Width, c.Render.Height)
	}
	switch c.Backend {
	case BackendVulkan, BackendSoftware:
	default:
		return errors.Wrapf(ErrInvalid, "unknown backend %q", c.Backend)
	}
	for i, v := range c.Render.ClearColor {
		if v < 0 || v > 1 {
			return errors.Wrapf(ErrInvalid, "clear color component %d is %g, outside [0, 1]", i, v)
		}
	}
	if c.Render.FenceTimeout < 0 {
		return errors.Wrapf(ErrInvalid, "fence timeout %s is negative", c.Render.FenceTimeout)
	}
	if _, err := imagefile.ForPath(c.Output.Path); err != nil {
		return errors.Mark(err, ErrInvalid)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Mark(errors.Wrap(err, "log level"), ErrInvalid)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Wrapf(ErrInvalid, "unknown log format %q", c.Log.Format)
	}
	return nil
}

// Options maps the configuration onto renderer options. The shader blob and diagnostics
// callback are left for the caller.
func (c Configuration) Options() frame.Options {
	options := frame.DefaultOptions()
	options.ApplicationName = c.ApplicationName
	options.Extent = gpu.Extent2D{Width: c.Render.Width, Height: c.Render.Height}
	options.ClearColor = gpu.ClearColor(c.Render.ClearColor)
	options.Validation = c.Render.Validation
	options.FenceTimeout = c.Render.FenceTimeout
	return options
}

// Configure applies level and formatter to logger.
func (l LogConfiguration) Configure(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	logger.SetLevel(level)

	switch l.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
