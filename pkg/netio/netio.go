// Package netio implements the weight-stream abstraction:
// a DataReader pulls raw bytes off some underlying
// stream, and an Initializer turns those bytes into a populated
// tensor.Tensor for a layer's LoadModel step. The on-disk format has
// no per-tensor header: an 8-byte little-endian (major, minor) version
// banner is followed by each layer's float32 tensors back to back, in
// the exact order the graph's layers were compiled, which is why
// Initializer has no seek/skip operation — it is strictly positional.
package netio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/tensor"
)

// DataReader is the minimal positional byte source LoadModel needs.
// Implementations wrap an io.Reader (files, embedded assets, network
// streams); ottererr.ErrShortRead/ErrIO distinguish a truncated stream
// from any other I/O failure.
type DataReader interface {
	// Read fills buf completely or returns an error; a partial read at
	// EOF is reported as ottererr.ErrShortRead, never returned as a
	// short byte count (unlike io.Reader).
	Read(buf []byte) error
}

type stdioReader struct {
	r io.Reader
}

// FromStdio wraps an ordinary io.Reader (a file, bytes.Buffer, etc.)
// as a DataReader.
func FromStdio(r io.Reader) DataReader {
	return &stdioReader{r: r}
}

func (s *stdioReader) Read(buf []byte) error {
	_, err := io.ReadFull(s.r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return fmt.Errorf("%w: %v", ottererr.ErrShortRead, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ottererr.ErrIO, err)
	}
	return nil
}

// Version is the (major, minor) banner read from the front of a
// weight stream.
type Version struct {
	Major uint32
	Minor uint32
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}

// ReadVersion consumes the 8-byte little-endian version banner that
// precedes every weight stream.
func ReadVersion(r DataReader) (Version, error) {
	buf := make([]byte, 8)
	if err := r.Read(buf); err != nil {
		return Version{}, err
	}
	return Version{
		Major: binary.LittleEndian.Uint32(buf[0:4]),
		Minor: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// Initializer materializes tensors either by reading them positionally
// off a DataReader (LoadModel) or by generating them (InitModel, used
// when no weight file is supplied and a layer still needs e.g. a
// BatchNorm running-mean buffer to exist).
type Initializer struct {
	reader DataReader
	rng    *rand.Rand
}

// FromDataReader builds an Initializer that reads real weights.
func FromDataReader(r DataReader) *Initializer {
	return &Initializer{reader: r}
}

// FromRand builds an Initializer that fabricates random weights (used
// by InitModel when no weight stream is available, e.g. tests).
func FromRand(rng *rand.Rand) *Initializer {
	return &Initializer{rng: rng}
}

// Load reads numel float32 elements positionally into a freshly
// allocated tensor of the given shape. The stream only ever contains
// float32 payloads, regardless of the destination tensor's own dtype;
// Load narrows via dtype.FromFloat64 when dt != Float.
func (ini *Initializer) Load(sizes []int64, dt dtype.ScalarType) (*tensor.Tensor, error) {
	if ini.reader == nil {
		return nil, fmt.Errorf("%w: initializer has no data reader", ottererr.ErrIO)
	}
	out, err := tensor.Empty(sizes, dt, tensor.Contiguous)
	if err != nil {
		return nil, err
	}
	n := out.Numel()
	raw := make([]byte, 4)
	idx := make([]int64, len(sizes))
	for linear := int64(0); linear < n; linear++ {
		unflatten(linear, sizes, idx)
		if err := ini.reader.Read(raw); err != nil {
			return nil, err
		}
		bits := binary.LittleEndian.Uint32(raw)
		f := math.Float32frombits(bits)
		dst, err := out.At(idx...)
		if err != nil {
			return nil, err
		}
		dtype.FromFloat64(dt, dst, float64(f))
	}
	return out, nil
}

// Init fabricates a sizes-shaped tensor with values drawn from the
// Initializer's rng, used by InitModel when no real weights exist.
func (ini *Initializer) Init(sizes []int64, dt dtype.ScalarType) (*tensor.Tensor, error) {
	if ini.rng == nil {
		return nil, fmt.Errorf("%w: initializer has no rng", ottererr.ErrBadOption)
	}
	out, err := tensor.Empty(sizes, dt, tensor.Contiguous)
	if err != nil {
		return nil, err
	}
	n := out.Numel()
	idx := make([]int64, len(sizes))
	for linear := int64(0); linear < n; linear++ {
		unflatten(linear, sizes, idx)
		v := ini.rng.NormFloat64() * 0.02
		dst, err := out.At(idx...)
		if err != nil {
			return nil, err
		}
		dtype.FromFloat64(dt, dst, v)
	}
	return out, nil
}

func unflatten(linear int64, sizes, idx []int64) {
	for i := len(sizes) - 1; i >= 0; i-- {
		if sizes[i] == 0 {
			idx[i] = 0
			continue
		}
		idx[i] = linear % sizes[i]
		linear /= sizes[i]
	}
}
