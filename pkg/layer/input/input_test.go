package input

import (
	"context"
	"testing"

	"github.com/o9nn/otterengine/pkg/paramdict"
	"github.com/stretchr/testify/require"
)

func TestComputeOutputShapeOmitsUnsetDims(t *testing.T) {
	l := &Input{}
	pd := paramdict.New()
	pd.SetInt(optH, 4)
	pd.SetInt(optC, 2)
	require.NoError(t, l.ParseParam(pd))

	shapes, err := l.ComputeOutputShape(nil)
	require.NoError(t, err)
	require.Equal(t, [][]int64{{2, 4}}, shapes)
}

func TestComputeOutputShapeFullyConfigured(t *testing.T) {
	l := &Input{}
	pd := paramdict.New()
	pd.SetInt(optW, 3)
	pd.SetInt(optH, 4)
	pd.SetInt(optC, 2)
	require.NoError(t, l.ParseParam(pd))

	shapes, err := l.ComputeOutputShape(nil)
	require.NoError(t, err)
	require.Equal(t, [][]int64{{2, 4, 3}}, shapes)
}

func TestForwardAlwaysErrors(t *testing.T) {
	l := &Input{}
	_, err := l.Forward(context.Background(), nil)
	require.Error(t, err)
	require.Error(t, l.ForwardInplace(context.Background(), nil))
	require.False(t, l.SupportsInplace())
}
