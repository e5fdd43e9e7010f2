package batchnorm

import (
	"context"
	"testing"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/tensor"
	"github.com/stretchr/testify/require"
)

func TestFoldedAffineTransform(t *testing.T) {
	l := &BatchNorm{Channels: 1, Eps: 0}
	gamma, _ := tensor.Zeros([]int64{1}, dtype.Float, tensor.Contiguous)
	b, _ := gamma.At(int64(0))
	dtype.FromFloat64(dtype.Float, b, 2.0)
	l.gamma = gamma

	beta, _ := tensor.Zeros([]int64{1}, dtype.Float, tensor.Contiguous)
	bb, _ := beta.At(int64(0))
	dtype.FromFloat64(dtype.Float, bb, 1.0)
	l.beta = beta

	mean, _ := tensor.Zeros([]int64{1}, dtype.Float, tensor.Contiguous)
	mb, _ := mean.At(int64(0))
	dtype.FromFloat64(dtype.Float, mb, 3.0)
	l.mean = mean

	variance, _ := tensor.Zeros([]int64{1}, dtype.Float, tensor.Contiguous)
	vb, _ := variance.At(int64(0))
	dtype.FromFloat64(dtype.Float, vb, 4.0) // sqrt(4) = 2

	l.variance = variance
	require.NoError(t, l.fold())

	in, _ := tensor.Zeros([]int64{1, 2, 2}, dtype.Float, tensor.Contiguous)
	ib, _ := in.At(int64(0), int64(0), int64(0))
	dtype.FromFloat64(dtype.Float, ib, 5.0)

	outs, err := l.Forward(context.Background(), []*tensor.Tensor{in})
	require.NoError(t, err)
	v, _ := outs[0].At(int64(0), int64(0), int64(0))
	// (5-3)/2*2 + 1 = 3
	require.InDelta(t, 3.0, dtype.ToFloat64(dtype.Float, v), 1e-9)
}
