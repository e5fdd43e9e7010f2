package conv

import (
	"context"
	"testing"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/paramdict"
	"github.com/o9nn/otterengine/pkg/tensor"
	"github.com/stretchr/testify/require"
)

func buildIdentityConv(t *testing.T) *Convolution {
	t.Helper()
	l := &Convolution{}
	pd := paramdict.New()
	pd.SetInt(optNumOutput, 1)
	pd.SetInt(optKernelW, 1)
	pd.SetInt(optKernelH, 1)
	pd.SetInt(optBiasTerm, 0)
	require.NoError(t, l.ParseParam(pd))
	return l
}

func TestBiasTermDefaultsTrueWhenUnset(t *testing.T) {
	l := &Convolution{}
	pd := paramdict.New()
	pd.SetInt(optNumOutput, 1)
	pd.SetInt(optKernelW, 1)
	pd.SetInt(optKernelH, 1)
	require.NoError(t, l.ParseParam(pd))
	require.True(t, l.BiasTerm)
}

func TestBiasTermDefaultsFalseWhenBatchNormFused(t *testing.T) {
	l := &Convolution{}
	l.SetBatchNormFused(true)
	pd := paramdict.New()
	pd.SetInt(optNumOutput, 1)
	pd.SetInt(optKernelW, 1)
	pd.SetInt(optKernelH, 1)
	require.NoError(t, l.ParseParam(pd))
	require.False(t, l.BiasTerm)
}

func TestBiasTermExplicitOverridesBatchNormFusedDefault(t *testing.T) {
	l := &Convolution{}
	l.SetBatchNormFused(true)
	pd := paramdict.New()
	pd.SetInt(optNumOutput, 1)
	pd.SetInt(optKernelW, 1)
	pd.SetInt(optKernelH, 1)
	pd.SetInt(optBiasTerm, 1)
	require.NoError(t, l.ParseParam(pd))
	require.True(t, l.BiasTerm)
}

func TestComputeOutputShapeNoPadStride1(t *testing.T) {
	l := buildIdentityConv(t)
	l.inCh = 1
	shapes, err := l.ComputeOutputShape([][]int64{{1, 5, 5}})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 5, 5}, shapes[0])
}

func TestConvolutionProducesKnownSum(t *testing.T) {
	l := buildIdentityConv(t)
	weight, err := tensor.Zeros([]int64{1, 1, 1, 1}, dtype.Float, tensor.Contiguous)
	require.NoError(t, err)
	wb, _ := weight.At(0, 0, 0, 0)
	dtype.FromFloat64(dtype.Float, wb, 5.0)
	l.weight = weight
	l.inCh = 1

	in, err := tensor.Zeros([]int64{1, 1, 1}, dtype.Float, tensor.Contiguous)
	require.NoError(t, err)
	ib, _ := in.At(0, 0, 0)
	dtype.FromFloat64(dtype.Float, ib, 1.0)

	outs, err := l.Forward(context.Background(), []*tensor.Tensor{in})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	v, _ := outs[0].At(0, 0, 0)
	require.Equal(t, 5.0, dtype.ToFloat64(dtype.Float, v))
}

func TestConvolutionWithBiasAndPadding(t *testing.T) {
	l := &Convolution{}
	pd := paramdict.New()
	pd.SetInt(optNumOutput, 1)
	pd.SetInt(optKernelW, 3)
	pd.SetInt(optKernelH, 3)
	pd.SetInt(optPadLeft, 1)
	pd.SetInt(optBiasTerm, 1)
	require.NoError(t, l.ParseParam(pd))
	l.inCh = 1

	weight, _ := tensor.Zeros([]int64{1, 1, 3, 3}, dtype.Float, tensor.Contiguous)
	center, _ := weight.At(0, 0, 1, 1)
	dtype.FromFloat64(dtype.Float, center, 1.0)
	l.weight = weight

	bias, _ := tensor.Zeros([]int64{1}, dtype.Float, tensor.Contiguous)
	bv, _ := bias.At(0)
	dtype.FromFloat64(dtype.Float, bv, 2.0)
	l.bias = bias

	in, _ := tensor.Zeros([]int64{1, 3, 3}, dtype.Float, tensor.Contiguous)
	centerIn, _ := in.At(0, 1, 1)
	dtype.FromFloat64(dtype.Float, centerIn, 3.0)

	outs, err := l.Forward(context.Background(), []*tensor.Tensor{in})
	require.NoError(t, err)
	v, _ := outs[0].At(0, 1, 1)
	require.Equal(t, 5.0, dtype.ToFloat64(dtype.Float, v))

	corner, _ := outs[0].At(0, 0, 0)
	require.Equal(t, 2.0, dtype.ToFloat64(dtype.Float, corner))
}
