package main

import (
	"math"
	"os"

	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config of a benchmark run, usually loaded from a YAML file.
type Config struct {
	// DeviceType restricts the device selection: "all" (default), "cpu", "gpu", ...
	DeviceType string `yaml:"deviceType"`

	// Iterations is the number of multiplications of each benchmark.
	Iterations int `yaml:"iterations"`

	// Seed of the random operands.
	Seed uint64 `yaml:"seed"`

	// Textfile, if set, is where the Prometheus metrics are written at the end of the run.
	Textfile string `yaml:"textfile"`

	Benchmarks []Benchmark `yaml:"benchmarks"`
}

// Benchmark is one multiplication to time: shape is "NxMxK", and the operands are sampled uniformly in [lo, hi).
type Benchmark struct {
	DType string  `yaml:"dtype"`
	Shape string  `yaml:"shape"`
	Lo    float64 `yaml:"lo"`
	Hi    float64 `yaml:"hi"`
}

const (
	defaultIterations = 10
	defaultSeed       = 42
)

// LoadConfig reads the YAML configuration at path, with defaults for the missing fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read benchmark configuration")
	}
	config := &Config{Iterations: defaultIterations, Seed: defaultSeed}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse benchmark configuration %q", path)
	}
	return config, nil
}

// Validate checks the configuration can run, and returns the device type to use.
func (c *Config) Validate() (cl.DeviceType, error) {
	deviceType, err := cl.ParseDeviceType(c.DeviceType)
	if err != nil {
		return 0, err
	}
	if c.Iterations <= 0 {
		return 0, errors.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if len(c.Benchmarks) == 0 {
		return 0, errors.New("no benchmarks configured")
	}
	for ii, b := range c.Benchmarks {
		if err := b.validate(); err != nil {
			return 0, errors.WithMessagef(err, "benchmark #%d", ii)
		}
	}
	return deviceType, nil
}

func (b Benchmark) validate() error {
	dtype, found := dtypes.MapOfNames[b.DType]
	if !found {
		return errors.Errorf("unknown dtype %q", b.DType)
	}
	if _, found := shapes[b.Shape]; !found {
		return errors.Errorf("shape %q not available, use one of %v", b.Shape, shapeNames())
	}
	if b.Hi <= b.Lo {
		return errors.Errorf("empty range [%g, %g)", b.Lo, b.Hi)
	}
	if dtype.IsInt() {
		bits := 8 * dtype.Size()
		lo, hi := -math.Ldexp(1, bits-1), math.Ldexp(1, bits-1)
		if dtype.IsUnsigned() {
			lo, hi = 0, math.Ldexp(1, bits)
		}
		if b.Lo < lo || b.Hi >= hi {
			return errors.Errorf("range [%g, %g) is not representable by %s", b.Lo, b.Hi, dtype)
		}
	}
	return nil
}
