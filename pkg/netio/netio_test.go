package netio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/stretchr/testify/require"
)

func floatBytes(vs ...float32) []byte {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func TestReadVersionBanner(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint32(2))
	r := FromStdio(&buf)
	v, err := ReadVersion(r)
	require.NoError(t, err)
	require.Equal(t, Version{Major: 1, Minor: 2}, v)
	require.Equal(t, "v1.2", v.String())
}

func TestLoadPositionalFloats(t *testing.T) {
	buf := bytes.NewBuffer(floatBytes(1, 2, 3, 4))
	ini := FromDataReader(FromStdio(buf))
	out, err := ini.Load([]int64{2, 2}, dtype.Float)
	require.NoError(t, err)

	v, _ := out.At(0, 0)
	require.Equal(t, 1.0, dtype.ToFloat64(dtype.Float, v))
	v, _ = out.At(1, 1)
	require.Equal(t, 4.0, dtype.ToFloat64(dtype.Float, v))
}

func TestLoadShortReadError(t *testing.T) {
	buf := bytes.NewBuffer(floatBytes(1))
	ini := FromDataReader(FromStdio(buf))
	_, err := ini.Load([]int64{2}, dtype.Float)
	require.ErrorIs(t, err, ottererr.ErrShortRead)
}
