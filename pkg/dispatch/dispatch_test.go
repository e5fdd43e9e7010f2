package dispatch

import (
	"context"
	"testing"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/parallel"
	"github.com/o9nn/otterengine/pkg/tensor"
	"github.com/stretchr/testify/require"
)

func addKernel() *Kernel {
	return NewKernel(map[dtype.ScalarType]ElemFn{
		dtype.Float: func(dst []byte, operands ...[]byte) {
			sum := dtype.ToFloat64(dtype.Float, operands[0]) + dtype.ToFloat64(dtype.Float, operands[1])
			dtype.FromFloat64(dtype.Float, dst, sum)
		},
	})
}

func TestDispatchElementwiseAdd(t *testing.T) {
	eng := parallel.NewEngine(4)
	a, _ := tensor.Zeros([]int64{4}, dtype.Float, tensor.Contiguous)
	b, _ := tensor.Zeros([]int64{4}, dtype.Float, tensor.Contiguous)
	out, _ := tensor.Zeros([]int64{4}, dtype.Float, tensor.Contiguous)

	for i := int64(0); i < 4; i++ {
		ab, _ := a.At(i)
		dtype.FromFloat64(dtype.Float, ab, float64(i))
		bb, _ := b.At(i)
		dtype.FromFloat64(dtype.Float, bb, float64(10*i))
	}

	err := Dispatch(context.Background(), eng, 1, out, a, b)(addKernel())
	require.NoError(t, err)

	for i := int64(0); i < 4; i++ {
		v, _ := out.At(i)
		require.Equal(t, float64(i)+float64(10*i), dtype.ToFloat64(dtype.Float, v))
	}
}

func TestDispatchUnsupportedDType(t *testing.T) {
	eng := parallel.NewEngine(2)
	out, _ := tensor.Zeros([]int64{2}, dtype.Double, tensor.Contiguous)
	err := Dispatch(context.Background(), eng, 1, out)(addKernel())
	require.Error(t, err)
}

func TestReduceSum(t *testing.T) {
	in, _ := tensor.Zeros([]int64{3}, dtype.Float, tensor.Contiguous)
	for i := int64(0); i < 3; i++ {
		b, _ := in.At(i)
		dtype.FromFloat64(dtype.Float, b, float64(i+1))
	}
	sum := Reduce(in, 0, func(acc, v float64) float64 { return acc + v })
	require.Equal(t, 6.0, sum)
}

func TestSumContiguousDoubleMatchesReduce(t *testing.T) {
	in, _ := tensor.Zeros([]int64{5}, dtype.Double, tensor.Contiguous)
	for i := int64(0); i < 5; i++ {
		b, _ := in.At(i)
		dtype.FromFloat64(dtype.Double, b, float64(i))
	}
	_, ok := in.Float64Slice()
	require.True(t, ok, "contiguous Double tensor should expose a Float64Slice")
	require.Equal(t, 10.0, Sum(in))
	require.Equal(t, Reduce(in, 0, func(acc, v float64) float64 { return acc + v }), Sum(in))
}

func TestSumFallsBackForNonDouble(t *testing.T) {
	in, _ := tensor.Zeros([]int64{3}, dtype.Float, tensor.Contiguous)
	for i := int64(0); i < 3; i++ {
		b, _ := in.At(i)
		dtype.FromFloat64(dtype.Float, b, float64(i+1))
	}
	require.Equal(t, 6.0, Sum(in))
}
