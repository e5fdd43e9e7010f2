package vecx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddSubMulDivFloat32(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3, 4})
	b := FromSlice([]float32{10, 20, 30, 40})

	require.Equal(t, []float32{11, 22, 33, 44}, a.Add(b).Slice())
	require.Equal(t, []float32{-9, -18, -27, -36}, a.Sub(b).Slice())
	require.Equal(t, []float32{10, 40, 90, 160}, a.Mul(b).Slice())
	require.Equal(t, []float32{0.1, 0.1, 0.1, 0.1}, a.Div(b).Slice())
}

func TestFMAFloat64(t *testing.T) {
	a := FromSlice([]float64{2, 3})
	b := FromSlice([]float64{4, 5})
	c := FromSlice([]float64{1, 1})
	got := a.FMA(b, c).Slice()
	require.Equal(t, []float64{9, 16}, got)
}

func TestBlendAndMask(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3})
	b := FromSlice([]float32{-1, -2, -3})
	mask := a.Lt(Broadcast[float32](3, 0))
	blended := a.Blend(mask, b)
	require.Equal(t, []float32{1, 2, 3}, blended.Slice())
}

func TestAndOrXorUint32(t *testing.T) {
	a := FromSlice([]uint32{0b1100, 0b1010})
	b := FromSlice([]uint32{0b1010, 0b0110})

	require.Equal(t, []uint32{0b1000, 0b0010}, a.And(b).Slice())
	require.Equal(t, []uint32{0b1110, 0b1110}, a.Or(b).Slice())
	require.Equal(t, []uint32{0b0110, 0b1100}, a.Xor(b).Slice())
}

func TestNotIsSelfInverse(t *testing.T) {
	ints := FromSlice([]int32{0, 1, -1, 42})
	require.Equal(t, []int32{0, 1, -1, 42}, ints.Not().Not().Slice())

	floats := FromSlice([]float32{0, 1.5, -3.25})
	require.Equal(t, []float32{0, 1.5, -3.25}, floats.Not().Not().Slice())
}

func TestCastIntToFloat(t *testing.T) {
	ints := FromSlice([]int32{1, 2, 3})
	floats := Cast[float32](ints)
	require.Equal(t, []float32{1, 2, 3}, floats.Slice())
}

func TestMapSquare(t *testing.T) {
	v := FromSlice([]float64{1, 2, 3})
	sq := v.Map(func(x float64) float64 { return x * x })
	require.Equal(t, []float64{1, 4, 9}, sq.Slice())
}
