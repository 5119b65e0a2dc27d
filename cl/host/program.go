package host

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/kernels"
	"k8s.io/klog/v2"
)

type program struct {
	ctx      cl.Context
	source   string
	built    bool
	buildLog string
	kernels  map[string]kernelFunc
}

var (
	reKernelDecl = regexp.MustCompile(`__kernel\s+void\s+(\w+)\s*\(`)
	reDirective  = regexp.MustCompile(`^\s*#\s*(\w+)\s*(\w*)`)
)

// CreateProgramWithSource implements cl.Driver.
func (d *Driver) CreateProgramWithSource(ctx cl.Context, source string) (cl.Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, found := d.contexts[ctx]; !found {
		return 0, cl.InvalidContext.Err()
	}
	if strings.TrimSpace(source) == "" {
		return 0, cl.InvalidValue.Err()
	}
	handle := cl.Program(d.newHandle())
	d.programs[handle] = &program{ctx: ctx, source: source}
	return handle, nil
}

// BuildProgram implements cl.Driver.
//
// Building evaluates the #ifdef/#ifndef/#else/#endif directives against the extensions of the device, and
// then looks up a Go implementation for each kernel declared. Build options are ignored.
func (d *Driver) BuildProgram(handle cl.Program, device cl.Device, options string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, found := d.programs[handle]
	if !found {
		return cl.InvalidProgram.Err()
	}
	if !d.validDevice(device) || d.contexts[p.ctx] == nil || d.contexts[p.ctx].device != device {
		return cl.InvalidDevice.Err()
	}
	if options != "" {
		klog.V(2).Infof("host: ignoring build options %q", options)
	}
	p.built = false
	p.kernels = nil
	if d.cfg.failBuild {
		p.buildLog = d.cfg.buildFailure
		return cl.BuildProgramFailure.Err()
	}
	fns, buildLog := compile(p.source, d.cfg.extensions)
	p.buildLog = buildLog
	if fns == nil {
		return cl.BuildProgramFailure.Err()
	}
	p.kernels = fns
	p.built = true
	return nil
}

// compile returns the kernels defined by source for a device with the given extensions.
// On failure it returns nil kernels and the build log with the errors.
func compile(source string, extensions []string) (map[string]kernelFunc, string) {
	active, err := preprocess(source, extensions)
	if err != "" {
		return nil, err
	}
	if depth := strings.Count(active, "{") - strings.Count(active, "}"); depth != 0 {
		return nil, fmt.Sprintf("error: unbalanced braces (%+d) in program source", depth)
	}
	fns := make(map[string]kernelFunc)
	var errs []string
	for _, match := range reKernelDecl.FindAllStringSubmatch(active, -1) {
		name := match[1]
		dtype, ok := kernels.DTypeForEntryPoint(name)
		fn := mulKernels[dtype]
		if !ok || fn == nil {
			errs = append(errs, fmt.Sprintf("error: kernel %q: no implementation available on the host device", name))
			continue
		}
		fns[name] = fn
	}
	if len(errs) > 0 {
		return nil, strings.Join(errs, "\n")
	}
	return fns, ""
}

// preprocess keeps only the lines of source enabled by the conditional directives, taking the extensions as
// the defined macros.
func preprocess(source string, extensions []string) (string, string) {
	type frame struct{ parentActive, active bool }
	var stack []frame
	active := true
	var sb strings.Builder
	for lineNum, line := range strings.Split(source, "\n") {
		parts := reDirective.FindStringSubmatch(line)
		if parts == nil {
			if active {
				sb.WriteString(line)
				sb.WriteByte('\n')
			}
			continue
		}
		switch parts[1] {
		case "ifdef", "ifndef":
			defined := slices.Contains(extensions, parts[2])
			stack = append(stack, frame{parentActive: active, active: defined == (parts[1] == "ifdef")})
			active = active && stack[len(stack)-1].active
		case "else":
			if len(stack) == 0 {
				return "", fmt.Sprintf("error: line %d: #else without #if", lineNum+1)
			}
			top := &stack[len(stack)-1]
			top.active = !top.active
			active = top.parentActive && top.active
		case "endif":
			if len(stack) == 0 {
				return "", fmt.Sprintf("error: line %d: #endif without #if", lineNum+1)
			}
			active = stack[len(stack)-1].parentActive
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return "", "error: unterminated conditional directive"
	}
	return sb.String(), ""
}

// ProgramBuildLog implements cl.Driver.
func (d *Driver) ProgramBuildLog(handle cl.Program, device cl.Device) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, found := d.programs[handle]
	if !found {
		return "", cl.InvalidProgram.Err()
	}
	if !d.validDevice(device) {
		return "", cl.InvalidDevice.Err()
	}
	return p.buildLog, nil
}
