package split

import (
	"context"
	"testing"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/layer"
	"github.com/o9nn/otterengine/pkg/tensor"
	"github.com/stretchr/testify/require"
)

func TestSplitFansOutAliasedViews(t *testing.T) {
	l := &Split{Base: layer.Base{TopBlobs: []int{0, 1, 2}}}
	in, err := tensor.Zeros([]int64{4}, dtype.Float, tensor.Contiguous)
	require.NoError(t, err)
	require.Equal(t, 1, in.UseCount())

	outs, err := l.Forward(context.Background(), []*tensor.Tensor{in})
	require.NoError(t, err)
	require.Len(t, outs, 3)
	require.Equal(t, 4, in.UseCount())

	b, err := in.At(int64(0))
	require.NoError(t, err)
	dtype.FromFloat64(dtype.Float, b, 42.0)
	for _, o := range outs {
		v, err := o.At(int64(0))
		require.NoError(t, err)
		require.Equal(t, 42.0, dtype.ToFloat64(dtype.Float, v))
	}
}
