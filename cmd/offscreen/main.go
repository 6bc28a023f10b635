package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/offscreen/config"
	"github.com/vkngwrapper/offscreen/frame"
	"github.com/vkngwrapper/offscreen/gpu"
	"github.com/vkngwrapper/offscreen/imagefile"
	"github.com/vkngwrapper/offscreen/shader"
	"github.com/vkngwrapper/offscreen/softgpu"
	"github.com/vkngwrapper/offscreen/vulkan"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	logger := logrus.New()

	cfg, err := config.Load(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatalf("%+v", err)
	}
	if err := cfg.Log.Configure(logger); err != nil {
		logger.Fatalf("%+v", err)
	}

	if err := run(cfg, logger.WithField("run", uuid.New().String())); err != nil {
		logger.Fatalf("%+v", err)
	}
}

func run(cfg config.Configuration, logger logrus.FieldLogger) error {
	sink, err := imagefile.NewFile(cfg.Output.Path)
	if err != nil {
		return err
	}

	options := cfg.Options()
	options.Shader, err = shader.Open(cfg.Render.Shader)
	if err != nil {
		return err
	}

	result, err := frame.NewRenderer(backend(cfg.Backend), options, logger).Render(sink)
	if err != nil {
		return errors.Wrapf(err, "rendering stopped after %s", result.Reached)
	}

	fields := logrus.Fields{
		"adapter": result.Adapter,
		"extent":  result.Extent.String(),
		"output":  result.Output,
	}
	for _, timing := range result.Timings {
		fields[timing.Phase] = timing.Duration
	}
	logger.WithFields(fields).Info("frame written")
	return nil
}

func backend(name string) gpu.Backend {
	if name == config.BackendSoftware {
		return softgpu.New()
	}
	return vulkan.New()
}
