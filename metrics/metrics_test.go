package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gomlx/goclmm"
	"github.com/gomlx/goclmm/cl/host"
	"github.com/gomlx/goclmm/dims"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New("test")
	sink := r.Sink(dtypes.Int32, Shape(4, 8, 4))
	sink(2 * time.Microsecond)
	sink(4 * time.Microsecond)
	r.Observe(dtypes.Float64, Shape(100, 90, 80), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.multiplications.WithLabelValues("Int32", "4x8x4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.multiplications.WithLabelValues("Float64", "100x90x80")))
	assert.Equal(t, 2.0*4*8*4, testutil.ToFloat64(r.flops.WithLabelValues("Int32", "4x8x4")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.durations))

	expected := `
# HELP test_matmul_total The total number of matrix multiplications executed on the device.
# TYPE test_matmul_total counter
test_matmul_total{dtype="Float64",shape="100x90x80"} 1
test_matmul_total{dtype="Int32",shape="4x8x4"} 2
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "test_matmul_total"))

	summaries, err := r.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, Summary{DType: dtypes.Int32, Shape: "4x8x4", Count: 2, Total: 6 * time.Microsecond}, summaries[0])
	assert.Equal(t, 3*time.Microsecond, summaries[0].Average())
	assert.Equal(t, dtypes.Float64, summaries[1].DType)
	assert.Equal(t, time.Millisecond, summaries[1].Average())
	assert.Zero(t, Summary{}.Average())
}

func TestInvalidShape(t *testing.T) {
	r := New("")
	r.Observe(dtypes.Uint8, "square", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.multiplications.WithLabelValues("Uint8", "square")))
	assert.Zero(t, testutil.CollectAndCount(r.flops))
	_, _, _, err := ParseShape("square")
	require.Error(t, err)
}

func TestRecordMultiply(t *testing.T) {
	var now uint64
	d := host.New(host.WithClock(func() uint64 {
		now += 500
		return now
	}))
	r := New("clmm")
	err := goclmm.Run(func(s *goclmm.Session) error {
		a, err := goclmm.NewMatrix[dims.D4, dims.D8, float32](s)
		if err != nil {
			return err
		}
		b, err := goclmm.NewMatrix[dims.D8, dims.D4, float32](s)
		if err != nil {
			return err
		}
		sink := r.Sink(a.DType(), Shape(a.Rows(), a.Cols(), b.Cols()))
		for range 4 {
			if _, err := goclmm.Multiply(a, b, sink); err != nil {
				return err
			}
		}
		return nil
	}, goclmm.WithDriver(d))
	require.NoError(t, err)

	summaries, err := r.Summaries()
	require.NoError(t, err)
	require.Equal(t, []Summary{{DType: dtypes.Float32, Shape: "4x8x4", Count: 4, Total: 2 * time.Microsecond}}, summaries)

	path := filepath.Join(t.TempDir(), "clmm.prom")
	require.NoError(t, r.WriteTextfile(path))
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `clmm_matmul_total{dtype="Float32",shape="4x8x4"} 4`)
	assert.Contains(t, string(contents), "clmm_matmul_device_duration_seconds_count")

	require.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "clmm.prom")))
}
