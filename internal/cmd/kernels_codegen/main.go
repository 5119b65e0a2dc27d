// kernels_codegen generates kernels/mul.cl: one multiplication kernel per supported dtype.
//
// It is run by go generate in the kernels package.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/goclmm/dtypes"
	"github.com/gomlx/goclmm/kernels"
	"github.com/janpfeifer/must"
)

const outputFileName = "mul.cl"

const header = `// Code generated by kernels_codegen. DO NOT EDIT.

// Dense matrix multiplication kernels: out[NxK] = left[NxM] * right[MxK], all row-major.
//
// Each element type has its own entry point named mul_<go type name>. The global range is N x K:
// work-item (i, j) computes out[i][j].
`

// kernelFormat arguments: entry point, element type, accumulator type, cast of the operands to the accumulator
// type and cast of the result back to the element type.
const kernelFormat = `
__kernel void %[1]s(int N, int M, int K,
                        __global const %[2]s* left,
                        __global const %[2]s* right,
                        __global %[2]s* out) {
    const int i = get_global_id(0);
    const int j = get_global_id(1);
    if (i >= N || j >= K) {
        return;
    }
    %[3]s sum = 0;
    for (int k = 0; k < M; k++) {
        sum += %[4]sleft[i * M + k] * %[4]sright[k * K + j];
    }
    out[i * K + j] = %[5]ssum;
}
`

func main() {
	source := generate()
	must.M(os.WriteFile(outputFileName, []byte(source), 0644))
	fmt.Printf("Generated %s: %d kernels\n", outputFileName, len(dtypes.SupportedDTypes()))
}

// generate returns the OpenCL C program.
func generate() string {
	var sb strings.Builder
	sb.WriteString(header)
	for _, dtype := range dtypes.SupportedDTypes() {
		writeKernel(&sb, dtype)
	}
	return sb.String()
}

// writeKernel writes the kernel of dtype, guarded by the extension it requires, if any.
func writeKernel(sb *strings.Builder, dtype dtypes.DType) {
	clType := dtype.CLType()
	accumulator, operandCast, resultCast := clType, "", ""
	if dtype == dtypes.Float16 {
		// Half precision is only a storage format: accumulate in single precision.
		accumulator, operandCast, resultCast = "float", "(float)", "(half)"
	}
	extension := dtype.Extension()
	if extension != "" {
		_, _ = fmt.Fprintf(sb, "\n#ifdef %[1]s\n#pragma OPENCL EXTENSION %[1]s : enable\n", extension)
	}
	entryPoint := must.M1(kernels.EntryPoint(dtype))
	_, _ = fmt.Fprintf(sb, kernelFormat, entryPoint, clType, accumulator, operandCast, resultCast)
	if extension != "" {
		sb.WriteString("#endif\n")
	}
}
