package relu

import (
	"context"
	"testing"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/tensor"
	"github.com/stretchr/testify/require"
)

func TestReLUZeroesNegatives(t *testing.T) {
	l := &ReLU{}
	in, _ := tensor.Zeros([]int64{3}, dtype.Float, tensor.Contiguous)
	for i, v := range []float64{-2, 0, 3} {
		b, _ := in.At(int64(i))
		dtype.FromFloat64(dtype.Float, b, v)
	}
	outs, err := l.Forward(context.Background(), []*tensor.Tensor{in})
	require.NoError(t, err)
	for i, want := range []float64{0, 0, 3} {
		v, _ := outs[0].At(int64(i))
		require.Equal(t, want, dtype.ToFloat64(dtype.Float, v))
	}
}

func TestLeakyReLUScalesNegatives(t *testing.T) {
	l := &ReLU{Slope: 0.1}
	in, _ := tensor.Zeros([]int64{1}, dtype.Float, tensor.Contiguous)
	b, _ := in.At(int64(0))
	dtype.FromFloat64(dtype.Float, b, -10)
	require.NoError(t, l.ForwardInplace(context.Background(), []*tensor.Tensor{in}))
	v, _ := in.At(int64(0))
	require.InDelta(t, -1.0, dtype.ToFloat64(dtype.Float, v), 1e-9)
}
