package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ClearColor is an RGBA color with components in [0, 1]. It parses from
// "r,g,b" or "r,g,b,a"; alpha defaults to 1.
type ClearColor [4]float32

func (cc ClearColor) String() string {
	parts := make([]string, len(cc))
	for i, v := range cc {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return strings.Join(parts, ",")
}

func (cc *ClearColor) Set(v string) error {
	fields := strings.Split(v, ",")
	if len(fields) != 3 && len(fields) != 4 {
		return errors.Newf("clear color %q needs 3 or 4 components", v)
	}

	parsed := ClearColor{0, 0, 0, 1}
	for i, field := range fields {
		f, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
		if err != nil {
			return errors.Wrapf(err, "clear color component %d", i)
		}
		parsed[i] = float32(f)
	}
	*cc = parsed
	return nil
}

func bind(fs *flag.FlagSet, c *Configuration) {
	fs.StringVar(&c.ApplicationName, "app-name", c.ApplicationName, "application name reported to the driver")
	fs.StringVar(&c.Backend, "backend", c.Backend, "rendering backend: vulkan or software")
	fs.IntVar(&c.Render.Width, "width", c.Render.Width, "image width in pixels")
	fs.IntVar(&c.Render.Height, "height", c.Render.Height, "image height in pixels")
	fs.Var(&c.Render.ClearColor, "clear", "clear color as r,g,b[,a]")
	fs.StringVar(&c.Render.Shader, "shader", c.Render.Shader, "WGSL or SPIR-V shader file (default: built in triangle)")
	fs.BoolVar(&c.Render.Validation, "validation", c.Render.Validation, "enable driver validation when available")
	fs.DurationVar(&c.Render.FenceTimeout, "fence-timeout", c.Render.FenceTimeout, "maximum wait per submission, 0 waits forever")
	fs.StringVar(&c.Output.Path, "output", c.Output.Path, "output file (.png, .bmp, .tif, .tiff, .rgba.lz4)")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format: text or json")
}

// Load builds a validated configuration from defaults, the environment, the file named
// by -env-file and finally the flags in args.
func Load(name string, args []string, output io.Writer) (Configuration, error) {
	c := Default()
	if err := c.ApplyEnvironment(); err != nil {
		return c, err
	}

	// The env file sits between the environment and the flags, so the flags are parsed
	// once to find it and again on top of it.
	probe := c
	var envFile string
	fs := newFlagSet(name, output, &probe, &envFile)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if fs.NArg() > 0 {
		return c, errors.Newf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if envFile != "" {
		if err := c.ApplyEnvFile(envFile); err != nil {
			return c, err
		}
		if err := newFlagSet(name, io.Discard, &c, &envFile).Parse(args); err != nil {
			return c, err
		}
	} else {
		c = probe
	}

	return c, c.Validate()
}

func newFlagSet(name string, output io.Writer, c *Configuration, envFile *string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	bind(fs, c)
	fs.StringVar(envFile, "env-file", *envFile, "extra env file with OFFSCREEN_* keys")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags]\n", name)
		fs.PrintDefaults()
	}
	return fs
}
