package main

import (
	"strings"
	"testing"

	"github.com/gomlx/goclmm/dtypes"
	"github.com/gomlx/goclmm/kernels"
	"github.com/stretchr/testify/require"
)

func TestGeneratedSourceIsUpToDate(t *testing.T) {
	require.Equal(t, generate(), kernels.Source, "kernels/mul.cl is stale: run go generate ./kernels")
}

func TestGenerate(t *testing.T) {
	source := generate()
	require.True(t, strings.HasPrefix(source, "// Code generated by kernels_codegen. DO NOT EDIT."))
	for _, dtype := range dtypes.SupportedDTypes() {
		require.Contains(t, source, "__kernel void mul_"+dtype.GoName()+"(int N, int M, int K,")
		require.Contains(t, source, "__global const "+dtype.CLType()+"* left,")
	}
	require.Contains(t, source, "#ifdef cl_khr_fp16\n#pragma OPENCL EXTENSION cl_khr_fp16 : enable\n")
	require.Contains(t, source, "out[i * K + j] = (half)sum;")
	require.Equal(t, 2, strings.Count(source, "#endif"))
}
