// Package metrics records the device timings of matrix multiplications as Prometheus metrics.
//
// A Recorder owns its own registry, so several recorders (e.g. one per benchmark run) don't collide:
//
//	recorder := metrics.New("clmm")
//	product, err := goclmm.Multiply(a, b, recorder.Sink(a.DType(), metrics.Shape(4, 8, 4)))
//	...
//	err = recorder.WriteTextfile("clmm.prom")
package metrics

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gomlx/goclmm"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/klog/v2"
)

// Labels of the metrics.
const (
	LabelDType = "dtype"
	LabelShape = "shape"
)

// Recorder collects a histogram of the kernel durations and a counter of multiplications, labeled by dtype and
// shape.
type Recorder struct {
	registry        *prometheus.Registry
	durations       *prometheus.HistogramVec
	multiplications *prometheus.CounterVec
	flops           *prometheus.CounterVec
}

// New creates a Recorder with its own registry. namespace prefixes the metric names, and can be empty.
func New(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matmul_device_duration_seconds",
			Help:      "Duration of the matrix multiplication kernels, as measured by the device profiling counters.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 2, 24), // 1µs to ~8s
		}, []string{LabelDType, LabelShape}),
		multiplications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matmul_total",
			Help:      "The total number of matrix multiplications executed on the device.",
		}, []string{LabelDType, LabelShape}),
		flops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matmul_operations_total",
			Help:      "The total number of multiply-add operations executed on the device.",
		}, []string{LabelDType, LabelShape}),
	}
	r.registry.MustRegister(r.durations, r.multiplications, r.flops)
	return r
}

// Registry returns the registry holding the recorder metrics, e.g. to serve them with promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Shape returns the shape label of the multiplication of a [n x m] matrix by a [m x k] one.
func Shape(n, m, k int) string {
	return fmt.Sprintf("%dx%dx%d", n, m, k)
}

// ParseShape is the inverse of Shape: it returns the dimensions of a shape label.
func ParseShape(shape string) (n, m, k int, err error) {
	parts := strings.Split(shape, "x")
	if len(parts) != 3 {
		return 0, 0, 0, errors.Errorf("invalid shape label %q: expected NxMxK", shape)
	}
	var values [3]int
	for ii, part := range parts {
		if values[ii], err = strconv.Atoi(part); err != nil {
			return 0, 0, 0, errors.Wrapf(err, "invalid shape label %q", shape)
		}
	}
	return values[0], values[1], values[2], nil
}

// Observe records one multiplication of the given dtype and shape that took elapsed on the device.
func (r *Recorder) Observe(dtype dtypes.DType, shape string, elapsed time.Duration) {
	labels := prometheus.Labels{LabelDType: dtype.String(), LabelShape: shape}
	r.durations.With(labels).Observe(elapsed.Seconds())
	r.multiplications.With(labels).Inc()
	if n, m, k, err := ParseShape(shape); err == nil {
		r.flops.With(labels).Add(float64(n) * float64(m) * float64(k))
	}
}

// Sink returns a goclmm.TimingSink that records the timings of multiplications of the given dtype and shape.
func (r *Recorder) Sink(dtype dtypes.DType, shape string) goclmm.TimingSink {
	return func(elapsed time.Duration) {
		r.Observe(dtype, shape, elapsed)
	}
}

// Summary of the multiplications of one dtype and shape.
type Summary struct {
	DType dtypes.DType
	Shape string
	Count uint64
	Total time.Duration
}

// Average returns the mean device time of the multiplications.
func (s Summary) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func (s Summary) String() string {
	return fmt.Sprintf("%s %s: %d multiplications, %s average on device", s.DType, s.Shape, s.Count, s.Average())
}

// Summaries gathers the recorded durations, and returns one Summary per dtype and shape, sorted by dtype and
// then shape.
func (r *Recorder) Summaries() ([]Summary, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "failed to gather metrics")
	}
	var summaries []Summary
	for _, family := range families {
		if family.GetType() != dto.MetricType_HISTOGRAM || !strings.HasSuffix(family.GetName(), "matmul_device_duration_seconds") {
			continue
		}
		for _, metric := range family.GetMetric() {
			summary := Summary{
				Count: metric.GetHistogram().GetSampleCount(),
				Total: time.Duration(math.Round(metric.GetHistogram().GetSampleSum() * float64(time.Second))),
			}
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case LabelDType:
					summary.DType = dtypes.MapOfNames[label.GetValue()]
				case LabelShape:
					summary.Shape = label.GetValue()
				}
			}
			summaries = append(summaries, summary)
		}
	}
	slices.SortFunc(summaries, func(a, b Summary) int {
		if a.DType != b.DType {
			return int(a.DType) - int(b.DType)
		}
		return strings.Compare(a.Shape, b.Shape)
	})
	return summaries, nil
}

// WriteTextfile writes the metrics in the Prometheus text format to path, for the node exporter textfile
// collector. The file is written atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %q", path)
	}
	klog.V(1).Infof("metrics: wrote %s", path)
	return nil
}
