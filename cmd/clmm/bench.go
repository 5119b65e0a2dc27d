package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/gomlx/goclmm"
	"github.com/gomlx/goclmm/dims"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/gomlx/goclmm/metrics"
	"github.com/gomlx/goclmm/random"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

func benchCommand(driverName *string) *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Time matrix multiplications on the device",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "config", Usage: "YAML file with the benchmarks to run; if set, the other flags only override it"},
			&cli.StringFlag{Name: "device-type", Usage: "Device type: all, cpu, gpu, accelerator"},
			&cli.IntFlag{Name: "iterations", Value: defaultIterations, Usage: "Number of multiplications per benchmark"},
			&cli.Uint64Flag{Name: "seed", Value: defaultSeed, Usage: "Seed of the random operands"},
			&cli.StringFlag{Name: "dtype", Value: "int32", Usage: "Element type"},
			&cli.StringFlag{Name: "shape", Value: "100x100x100", Usage: fmt.Sprintf("Shape NxMxK, one of %v", shapeNames())},
			&cli.Float64Flag{Name: "lo", Value: 0, Usage: "Lower bound (inclusive) of the random values"},
			&cli.Float64Flag{Name: "hi", Value: 100, Usage: "Upper bound (exclusive) of the random values"},
			&cli.PathFlag{Name: "textfile", Usage: "Write the Prometheus metrics to this file"},
		},
		Action: func(c *cli.Context) error {
			config, err := configFromFlags(c)
			if err != nil {
				return err
			}
			return runBenchmarks(os.Stdout, *driverName, config)
		},
	}
}

// configFromFlags loads the configuration file, if given, and applies the flags set on top of it.
// Without a configuration file, the flags describe a single benchmark.
func configFromFlags(c *cli.Context) (*Config, error) {
	config := &Config{Iterations: defaultIterations, Seed: defaultSeed}
	if path := c.Path("config"); path != "" {
		var err error
		if config, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if len(config.Benchmarks) == 0 || c.IsSet("dtype") || c.IsSet("shape") {
		config.Benchmarks = append(config.Benchmarks, Benchmark{
			DType: c.String("dtype"),
			Shape: c.String("shape"),
			Lo:    c.Float64("lo"),
			Hi:    c.Float64("hi"),
		})
	}
	if c.IsSet("device-type") {
		config.DeviceType = c.String("device-type")
	}
	if c.IsSet("iterations") {
		config.Iterations = c.Int("iterations")
	}
	if c.IsSet("seed") {
		config.Seed = c.Uint64("seed")
	}
	if c.IsSet("textfile") {
		config.Textfile = c.Path("textfile")
	}
	return config, nil
}

// runBenchmarks runs each configured benchmark in its own session, and writes a report of the device times to w.
func runBenchmarks(w io.Writer, driverName string, config *Config) error {
	deviceType, err := config.Validate()
	if err != nil {
		return err
	}
	recorder := metrics.New("clmm")
	rng := random.New(config.Seed)
	var device string
	for _, b := range config.Benchmarks {
		dtype := dtypes.MapOfNames[b.DType]
		err := goclmm.Run(func(s *goclmm.Session) error {
			device = s.Device().Name
			return shapes[b.Shape](s, dtype, b, config.Iterations, rng, recorder)
		}, goclmm.WithDriverName(driverName), goclmm.WithDeviceType(deviceType))
		if errors.Is(err, goclmm.ErrKernelResolutionFailed) {
			klog.Warningf("skipping %s %s: not supported by the device: %v", dtype, b.Shape, err)
			continue
		}
		if err != nil {
			return errors.WithMessagef(err, "benchmark %s %s", dtype, b.Shape)
		}
	}

	summaries, err := recorder.Summaries()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Device: %s (driver %s)\n", device, driverName)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DType\tShape\tCount\tAverage\tGOps/s")
	for _, summary := range summaries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.3f\n", summary.DType, summary.Shape, summary.Count, summary.Average(), gops(summary))
	}
	must.M(tw.Flush())

	if config.Textfile != "" {
		return recorder.WriteTextfile(config.Textfile)
	}
	return nil
}

// gops returns the rate of multiply-adds of the summary, in billions per second.
func gops(summary metrics.Summary) float64 {
	n, m, k, err := metrics.ParseShape(summary.Shape)
	if err != nil || summary.Average() <= 0 {
		return 0
	}
	return float64(n) * float64(m) * float64(k) / float64(summary.Average().Nanoseconds())
}

// benchmarkFn runs a benchmark of a fixed shape for the given dtype.
type benchmarkFn func(s *goclmm.Session, dtype dtypes.DType, b Benchmark, iterations int, rng *rand.Rand, recorder *metrics.Recorder) error

// shapes is the catalog of shapes that can be benchmarked: dimensions are part of the matrix types, so each one
// needs its own instantiation.
var shapes = map[string]benchmarkFn{
	"4x4x4":          benchmarkShape[dims.D4, dims.D4, dims.D4],
	"16x16x16":       benchmarkShape[dims.D16, dims.D16, dims.D16],
	"64x64x64":       benchmarkShape[dims.D64, dims.D64, dims.D64],
	"100x90x80":      benchmarkShape[dims.D100, dims.D90, dims.D80],
	"100x100x100":    benchmarkShape[dims.D100, dims.D100, dims.D100],
	"128x128x128":    benchmarkShape[dims.D128, dims.D128, dims.D128],
	"256x256x256":    benchmarkShape[dims.D256, dims.D256, dims.D256],
	"512x512x512":    benchmarkShape[dims.D512, dims.D512, dims.D512],
	"1024x1024x1024": benchmarkShape[dims.D1024, dims.D1024, dims.D1024],
}

func shapeNames() []string {
	names := make([]string, 0, len(shapes))
	for name := range shapes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func benchmarkShape[N, M, K dims.Dim](s *goclmm.Session, dtype dtypes.DType, b Benchmark, iterations int, rng *rand.Rand, recorder *metrics.Recorder) error {
	switch dtype {
	case dtypes.Int8:
		return benchmark[N, M, K, int8](s, b, iterations, rng, recorder)
	case dtypes.Int16:
		return benchmark[N, M, K, int16](s, b, iterations, rng, recorder)
	case dtypes.Int32:
		return benchmark[N, M, K, int32](s, b, iterations, rng, recorder)
	case dtypes.Int64:
		return benchmark[N, M, K, int64](s, b, iterations, rng, recorder)
	case dtypes.Uint8:
		return benchmark[N, M, K, uint8](s, b, iterations, rng, recorder)
	case dtypes.Uint16:
		return benchmark[N, M, K, uint16](s, b, iterations, rng, recorder)
	case dtypes.Uint32:
		return benchmark[N, M, K, uint32](s, b, iterations, rng, recorder)
	case dtypes.Uint64:
		return benchmark[N, M, K, uint64](s, b, iterations, rng, recorder)
	case dtypes.Float16:
		return benchmark[N, M, K, float16.Float16](s, b, iterations, rng, recorder)
	case dtypes.Float32:
		return benchmark[N, M, K, float32](s, b, iterations, rng, recorder)
	case dtypes.Float64:
		return benchmark[N, M, K, float64](s, b, iterations, rng, recorder)
	}
	return errors.Errorf("dtype %s not supported", dtype)
}

func benchmark[N, M, K dims.Dim, T dtypes.Supported](s *goclmm.Session, b Benchmark, iterations int, rng *rand.Rand, recorder *metrics.Recorder) error {
	lo, hi := dtypes.FromFloat64[T](b.Lo), dtypes.FromFloat64[T](b.Hi)
	if dtypes.ToFloat64(lo) >= dtypes.ToFloat64(hi) {
		return errors.Errorf("range [%g, %g) is empty for %s", b.Lo, b.Hi, dtypes.FromGenericsType[T]())
	}
	left, err := random.NewMatrix[N, M](s, rng, lo, hi)
	if err != nil {
		return err
	}
	right, err := random.NewMatrix[M, K](s, rng, lo, hi)
	if err != nil {
		return err
	}
	sink := recorder.Sink(left.DType(), b.Shape)
	for range iterations {
		if _, err := goclmm.Multiply(left, right, sink); err != nil {
			return err
		}
	}
	klog.V(1).Infof("%d multiplications of %s x %s", iterations, left, right)
	return nil
}
