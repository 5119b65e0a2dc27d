// clmm lists the OpenCL devices available and benchmarks matrix multiplications on them.
//
// Usage:
//
//	clmm devices
//	clmm --driver=host bench --shape=100x100x100 --dtype=int32 --lo=0 --hi=100
//	clmm bench --config=bench.yaml --textfile=clmm.prom
//
// The driver defaults to $GOCLMM_DRIVER, or "opencl" if not set.
package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/gomlx/goclmm/cl"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()
	if err := newApp().Run(os.Args); err != nil {
		klog.Exitf("clmm: %+v", err)
	}
}

func newApp() *cli.App {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)

	var driverName string
	var verbosity int
	return &cli.App{
		Name:  "clmm",
		Usage: "Inspect OpenCL devices and benchmark matrix multiplications on them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "driver",
				Value:       cl.DefaultDriver(),
				Usage:       "Device driver: \"opencl\" for the system OpenCL library, \"host\" for the emulated device",
				EnvVars:     []string{cl.DriverEnv},
				Destination: &driverName,
			},
			&cli.IntFlag{
				Name:        "v",
				Value:       0,
				Usage:       "Logging verbosity level",
				Destination: &verbosity,
			},
		},
		Before: func(c *cli.Context) error {
			return klogFlags.Set("v", strconv.Itoa(verbosity))
		},
		Commands: []*cli.Command{
			devicesCommand(&driverName),
			benchCommand(&driverName),
		},
	}
}
