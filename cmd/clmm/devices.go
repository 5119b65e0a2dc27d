package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func devicesCommand(driverName *string) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List the platforms and devices of the driver",
		Action: func(c *cli.Context) error {
			return listDevices(os.Stdout, *driverName)
		},
	}
}

// listDevices writes the description of every platform and device of the named driver.
func listDevices(w io.Writer, driverName string) error {
	driver, err := cl.Get(driverName)
	if err != nil {
		return err
	}
	platforms, err := driver.PlatformIDs()
	if err != nil {
		return errors.WithMessagef(err, "clGetPlatformIDs on driver %q", driverName)
	}
	for ii, platform := range platforms {
		info, err := driver.PlatformInfo(platform)
		if err != nil {
			return errors.WithMessagef(err, "clGetPlatformInfo of platform #%d", ii)
		}
		_, _ = fmt.Fprintf(w, "Platform #%d: %s (%s)\n", ii, info.Name, info.Version)
		_, _ = fmt.Fprintf(w, "\tVendor: %s\n", info.Vendor)
		devices, err := driver.DeviceIDs(platform, cl.DeviceTypeAll)
		if errors.Is(err, cl.DeviceNotFound) {
			_, _ = fmt.Fprintln(w, "\tno devices")
			continue
		}
		if err != nil {
			return errors.WithMessagef(err, "clGetDeviceIDs of platform %q", info.Name)
		}
		for jj, device := range devices {
			deviceInfo, err := driver.DeviceInfo(device)
			if err != nil {
				return errors.WithMessagef(err, "clGetDeviceInfo of device #%d of platform %q", jj, info.Name)
			}
			writeDevice(w, jj, deviceInfo)
			if err := driver.ReleaseDevice(device); err != nil {
				klog.Warningf("failed to release device %q: %v", deviceInfo.Name, err)
			}
		}
	}
	return nil
}

func writeDevice(w io.Writer, index int, info cl.DeviceInfo) {
	_, _ = fmt.Fprintf(w, "\tDevice #%d: %s [%s]\n", index, info.Name, info.Type)
	_, _ = fmt.Fprintf(w, "\t\tVendor: %s, %s, driver %s\n", info.Vendor, info.Version, info.DriverVersion)
	_, _ = fmt.Fprintf(w, "\t\tCompute units: %d, max work-group size: %d, global memory: %d MiB\n",
		info.ComputeUnits, info.MaxWorkGroupSize, info.GlobalMemSize>>20)
	var dtypeNames []string
	for _, dtype := range dtypes.SupportedDTypes() {
		if extension := dtype.Extension(); extension == "" || info.HasExtension(extension) {
			dtypeNames = append(dtypeNames, dtype.GoName())
		}
	}
	_, _ = fmt.Fprintf(w, "\t\tElement types: %s\n", strings.Join(dtypeNames, ", "))
}
