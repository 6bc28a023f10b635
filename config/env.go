package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment key read by this package.
const EnvPrefix = "OFFSCREEN_"

// ApplyEnvironment overrides c with OFFSCREEN_* variables. A .env file in the working
// directory is already merged into the environment by envy.
func (c *Configuration) ApplyEnvironment() error {
	return c.apply(envy.Map())
}

// ApplyEnvFile overrides c with OFFSCREEN_* keys from the named file without touching
// the process environment.
func (c *Configuration) ApplyEnvFile(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		return errors.Wrapf(err, "reading env file %s", path)
	}
	return errors.Wrapf(c.apply(vars), "env file %s", path)
}

func (c *Configuration) apply(vars map[string]string) error {
	get := func(key string) (string, bool) {
		v, ok := vars[EnvPrefix+key]
		return strings.TrimSpace(v), ok
	}

	setters := []struct {
		key string
		set func(string) error
	}{
		{"APP_NAME", func(v string) error { c.ApplicationName = v; return nil }},
		{"BACKEND", func(v string) error { c.Backend = strings.ToLower(v); return nil }},
		{"WIDTH", intSetter(&c.Render.Width)},
		{"HEIGHT", intSetter(&c.Render.Height)},
		{"CLEAR_COLOR", c.Render.ClearColor.Set},
		{"SHADER", func(v string) error { c.Render.Shader = v; return nil }},
		{"VALIDATION", boolSetter(&c.Render.Validation)},
		{"FENCE_TIMEOUT", durationSetter(&c.Render.FenceTimeout)},
		{"OUTPUT", func(v string) error { c.Output.Path = v; return nil }},
		{"LOG_LEVEL", func(v string) error { c.Log.Level = strings.ToLower(v); return nil }},
		{"LOG_FORMAT", func(v string) error { c.Log.Format = strings.ToLower(v); return nil }},
	}

	for _, s := range setters {
		v, ok := get(s.key)
		if !ok {
			continue
		}
		if err := s.set(v); err != nil {
			return errors.Wrapf(err, "%s%s", EnvPrefix, s.key)
		}
	}
	return nil
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %q", v)
		}
		*dst = n
		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %q", v)
		}
		*dst = b
		return nil
	}
}

func durationSetter(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %q", v)
		}
		*dst = d
		return nil
	}
}
