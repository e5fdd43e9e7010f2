package storage

import (
	"testing"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/stretchr/testify/require"
)

func TestNewStartsWithOneReference(t *testing.T) {
	s := New(16, dtype.Float)
	require.Equal(t, 1, s.UseCount())
	require.Equal(t, 16, s.NBytes())
	require.Equal(t, dtype.Float, s.DType())
}

func TestNewReferenceIncrementsAndReleaseDecrements(t *testing.T) {
	s := New(8, dtype.Byte)
	r := s.NewReference()
	require.Equal(t, 2, s.UseCount())
	r.Release()
	require.Equal(t, 1, s.UseCount())
	s.Release()
	require.Equal(t, 0, s.UseCount())
}

func TestFromBytesWrapsExistingBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	s := FromBytes(buf, dtype.Byte)
	require.Equal(t, buf, s.Bytes())
}

func TestNewWithAllocatorUsesGivenAllocator(t *testing.T) {
	a := NewArena(32)
	s := NewWithAllocator(a, 10, dtype.Byte)
	require.Equal(t, 10, s.NBytes())
	require.Equal(t, 22, a.Available())
}

func TestArenaBumpAllocatesSequentially(t *testing.T) {
	a := NewArena(16)
	first := a.Alloc(4)
	second := a.Alloc(4)
	require.Equal(t, 8, a.Available())
	require.Len(t, first, 4)
	require.Len(t, second, 4)

	first[0] = 0xAA
	require.NotEqual(t, first[0], second[0])
}

func TestArenaFallsBackToHeapOnOverflow(t *testing.T) {
	a := NewArena(4)
	buf := a.Alloc(100)
	require.Len(t, buf, 100)
	require.Equal(t, 4, a.Available(), "overflow allocation must not consume arena space")
}

func TestArenaResetRewindsOffset(t *testing.T) {
	a := NewArena(8)
	a.Alloc(8)
	require.Equal(t, 0, a.Available())
	a.Reset()
	require.Equal(t, 8, a.Available())
}
