// Package config loads the pancake configuration file and applies
// environment overrides.
package config

import (
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "pancake.yaml"

var validate = validator.New()

type Logging struct {
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Text  bool   `yaml:"text"`
}

// Config holds the build settings. An empty Extensions list selects every file.
type Config struct {
	InputDir   string   `yaml:"input_dir" validate:"required"`
	OutputDir  string   `yaml:"output_dir" validate:"required"`
	Strict     bool     `yaml:"strict"`
	Workers    int      `yaml:"workers" validate:"min=0"`
	KeepGoing  bool     `yaml:"keep_going"`
	Extensions []string `yaml:"extensions" validate:"dive,required"`
	CacheSize  int      `yaml:"cache_size" validate:"min=0"`
	Logging    Logging  `yaml:"logging"`
}

func Default() Config {
	return Config{
		InputDir:  "templates",
		OutputDir: "flattened",
		CacheSize: 512,
		Logging: Logging{
			Level: "info",
			Text:  true,
		},
	}
}

// Load reads the configuration at path on top of the defaults and applies
// environment overrides. A missing file at DefaultPath is not an error; a
// missing file anywhere else is.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		path = DefaultPath
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := c.decode(f); err != nil {
			return c, errors.Wrapf(err, "failed to parse %s", path)
		}
	case os.IsNotExist(err) && path == DefaultPath:
	default:
		return c, errors.Wrap(err, "failed to open config")
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, errors.Wrapf(err, "invalid config %s", path)
	}
	return c, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PANCAKE_INPUT_DIR"); ok {
		c.InputDir = v
	}
	if v, ok := lookup("PANCAKE_OUTPUT_DIR"); ok {
		c.OutputDir = v
	}
	if v, ok := lookup("PANCAKE_STRICT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "PANCAKE_STRICT")
		}
		c.Strict = b
	}
	if v, ok := lookup("PANCAKE_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "PANCAKE_WORKERS")
		}
		c.Workers = n
	}
	if v, ok := lookup("PANCAKE_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("PANCAKE_LOG_TEXT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "PANCAKE_LOG_TEXT")
		}
		c.Logging.Text = b
	}
	return nil
}

// Validate checks c and normalizes extensions to start with a dot.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WithStack(err)
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			c.Extensions[i] = "." + ext
		}
	}
	return nil
}

// WorkerCount returns the configured worker count, or the number of CPUs
// when it is zero.
func (c Config) WorkerCount() int {
	if c.Workers == 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}
