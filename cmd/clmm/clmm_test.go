package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/cl/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	noFloatExtensionsDriver = "host-without-fp16-fp64"
	noDevicesDriver         = "host-without-devices"
)

func init() {
	cl.Register(noFloatExtensionsDriver, func() (cl.Driver, error) {
		return host.New(host.WithExtensions()), nil
	})
	cl.Register(noDevicesDriver, func() (cl.Driver, error) {
		return host.New(host.WithoutDevices()), nil
	})
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(filepath.Join("testdata", "bench.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "all", config.DeviceType)
	assert.Equal(t, 3, config.Iterations)
	assert.Equal(t, uint64(7), config.Seed)
	assert.Empty(t, config.Textfile)
	require.Len(t, config.Benchmarks, 3)
	assert.Equal(t, Benchmark{DType: "float32", Shape: "4x4x4", Lo: -1, Hi: 1}, config.Benchmarks[2])
	deviceType, err := config.Validate()
	require.NoError(t, err)
	assert.Equal(t, cl.DeviceTypeAll, deviceType)

	// Defaults.
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("benchmarks:\n  - {dtype: uint8, shape: 4x4x4, hi: 10}\n"), 0o644))
	config, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultIterations, config.Iterations)
	assert.Equal(t, uint64(defaultSeed), config.Seed)
	_, err = config.Validate()
	require.NoError(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.NoError(t, os.WriteFile(path, []byte("benchmarks: {"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Benchmark{DType: "int32", Shape: "4x4x4", Lo: 0, Hi: 10}
	testCases := []struct {
		name   string
		config Config
	}{
		{"no benchmarks", Config{Iterations: 1}},
		{"no iterations", Config{Benchmarks: []Benchmark{valid}}},
		{"device type", Config{Iterations: 1, DeviceType: "tpu", Benchmarks: []Benchmark{valid}}},
		{"dtype", Config{Iterations: 1, Benchmarks: []Benchmark{{DType: "complex64", Shape: "4x4x4", Hi: 1}}}},
		{"shape", Config{Iterations: 1, Benchmarks: []Benchmark{{DType: "int32", Shape: "3x3x3", Hi: 1}}}},
		{"empty range", Config{Iterations: 1, Benchmarks: []Benchmark{{DType: "float32", Shape: "4x4x4", Lo: 1, Hi: 1}}}},
		{"negative unsigned", Config{Iterations: 1, Benchmarks: []Benchmark{{DType: "uint16", Shape: "4x4x4", Lo: -1, Hi: 1}}}},
		{"int8 overflow", Config{Iterations: 1, Benchmarks: []Benchmark{{DType: "int8", Shape: "4x4x4", Lo: 0, Hi: 128}}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.config.Validate()
			require.Error(t, err)
		})
	}
}

func TestRunBenchmarks(t *testing.T) {
	config, err := LoadConfig(filepath.Join("testdata", "bench.yaml"))
	require.NoError(t, err)
	config.Textfile = filepath.Join(t.TempDir(), "clmm.prom")
	var out bytes.Buffer
	require.NoError(t, runBenchmarks(&out, host.DriverName, config))
	report := out.String()
	assert.Contains(t, report, "Device: goclmm host emulator (driver host)")
	assert.Regexp(t, `Int32\s+100x100x100\s+3\s`, report)
	assert.Regexp(t, `Float32\s+4x4x4\s+3\s`, report)
	assert.Regexp(t, `Float64\s+100x100x100\s+3\s`, report)

	contents, err := os.ReadFile(config.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `clmm_matmul_total{dtype="Int32",shape="100x100x100"} 3`)
}

func TestRunBenchmarksSkipsUnsupported(t *testing.T) {
	config := &Config{
		Iterations: 1,
		Benchmarks: []Benchmark{
			{DType: "float64", Shape: "4x4x4", Hi: 1},
			{DType: "int64", Shape: "4x4x4", Lo: -10, Hi: 10},
		},
	}
	var out bytes.Buffer
	require.NoError(t, runBenchmarks(&out, noFloatExtensionsDriver, config))
	assert.NotContains(t, out.String(), "Float64")
	assert.Contains(t, out.String(), "Int64")

	require.Error(t, runBenchmarks(&out, "nonexistent", config))
}

func TestListDevices(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listDevices(&out, host.DriverName))
	listing := out.String()
	assert.Contains(t, listing, "Platform #0: goclmm host")
	assert.Contains(t, listing, "Device #0: goclmm host emulator [gpu]")
	assert.Contains(t, listing, "Element types: int8, int16, int32, int64, uint8, uint16, uint32, uint64, float16, float32, float64")

	out.Reset()
	require.NoError(t, listDevices(&out, noFloatExtensionsDriver))
	assert.Contains(t, out.String(), "Element types: int8, int16, int32, int64, uint8, uint16, uint32, uint64, float32\n")

	out.Reset()
	require.NoError(t, listDevices(&out, noDevicesDriver))
	assert.Contains(t, out.String(), "no devices")

	require.Error(t, listDevices(&out, "nonexistent"))
}

func TestApp(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "clmm.prom")
	err := newApp().Run([]string{"clmm", "--driver=host", "bench",
		"--shape=16x16x16", "--dtype=uint32", "--lo=0", "--hi=1000", "--iterations=2", "--textfile=" + textfile})
	require.NoError(t, err)
	contents, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `clmm_matmul_total{dtype="Uint32",shape="16x16x16"} 2`)

	require.NoError(t, newApp().Run([]string{"clmm", "--driver=host", "devices"}))
	require.Error(t, newApp().Run([]string{"clmm", "--driver=host", "bench", "--shape=3x3x3"}))
}
