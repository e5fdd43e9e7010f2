// Package dtype implements the scalar-type registry:
// a closed, process-wide, read-only-after-init mapping from a small
// ScalarType tag to its element size and lifecycle callbacks.
package dtype

import (
	"fmt"
	"sync"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// ScalarType is the closed tagged enumeration of supported element types.
type ScalarType int

const (
	Byte ScalarType = iota
	Char
	Short
	Int
	Long
	Float
	Double
	Half     // packed float16, backed by github.com/x448/float16
	BFloat16 // packed bfloat16, backed by github.com/d4l3k/go-bfloat16
	QInt8    // affine-quantized int8; scale is fixed at 1 (quantized forward
	// kernels are out of scope, mirroring the TODO left in the original
	// otter::Net::do_forward_layer)
	numScalarTypes
)

func (t ScalarType) String() string {
	if m, ok := registry[t]; ok {
		return m.name
	}
	return fmt.Sprintf("ScalarType(%d)", int(t))
}

// Meta describes one registered scalar type: its element byte size and
// the lifecycle callbacks the tensor/storage layers need. Go's garbage
// collector removes the need for explicit placement-destroy/destroy
// hooks (there is no manual free of an individual element), so those
// two collapse to no-ops here; Zero and Copy remain meaningful because
// Storage is a raw byte buffer, not a []T slice.
type Meta struct {
	name string
	// Size is the number of bytes one element of this type occupies.
	Size int
	// Zero writes the default-constructed value into a Size-byte slice
	// (the "default-initialize" callback).
	Zero func(dst []byte)
	// Copy copies one element from src into dst (the "element-copy"
	// callback); both slices must be exactly Size bytes.
	Copy func(dst, src []byte)
}

var (
	registryMu sync.RWMutex
	registry   = map[ScalarType]Meta{}
)

func register(t ScalarType, m Meta) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = m
}

func init() {
	register(Byte, Meta{name: "Byte", Size: 1, Zero: zeroN(1), Copy: copyN(1)})
	register(Char, Meta{name: "Char", Size: 1, Zero: zeroN(1), Copy: copyN(1)})
	register(Short, Meta{name: "Short", Size: 2, Zero: zeroN(2), Copy: copyN(2)})
	register(Int, Meta{name: "Int", Size: 4, Zero: zeroN(4), Copy: copyN(4)})
	register(Long, Meta{name: "Long", Size: 8, Zero: zeroN(8), Copy: copyN(8)})
	register(Float, Meta{name: "Float", Size: 4, Zero: zeroN(4), Copy: copyN(4)})
	register(Double, Meta{name: "Double", Size: 8, Zero: zeroN(8), Copy: copyN(8)})
	register(Half, Meta{name: "Half", Size: 2, Zero: zeroN(2), Copy: copyN(2)})
	register(BFloat16, Meta{name: "BFloat16", Size: 2, Zero: zeroN(2), Copy: copyN(2)})
	register(QInt8, Meta{name: "QInt8", Size: 1, Zero: zeroN(1), Copy: copyN(1)})
}

func zeroN(n int) func([]byte) {
	return func(dst []byte) {
		for i := range dst[:n] {
			dst[i] = 0
		}
	}
}

func copyN(n int) func(dst, src []byte) {
	return func(dst, src []byte) {
		copy(dst[:n], src[:n])
	}
}

// Lookup returns the registered metadata for t, or false if t is not a
// supported dtype (ottererr.ErrUnsupportedDType at the call site).
func Lookup(t ScalarType) (Meta, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := registry[t]
	return m, ok
}

// Size is a convenience wrapper around Lookup for the common case.
func Size(t ScalarType) int {
	m, ok := Lookup(t)
	if !ok {
		return 0
	}
	return m.Size
}

// ToFloat64 widens one element of t, read from raw, into a float64. It
// is the common intermediate representation Convert uses to move
// between any pair of registered dtypes.
func ToFloat64(t ScalarType, raw []byte) float64 {
	switch t {
	case Byte:
		return float64(raw[0])
	case Char, QInt8:
		return float64(int8(raw[0]))
	case Short:
		return float64(int16(le16(raw)))
	case Int:
		return float64(int32(le32(raw)))
	case Long:
		return float64(int64(le64(raw)))
	case Float:
		return float64(f32frombits(le32(raw)))
	case Double:
		return f64frombits(le64(raw))
	case Half:
		return float64(float16.Frombits(le16(raw)).Float32())
	case BFloat16:
		out := bfloat16.DecodeFloat32([]byte{raw[0], raw[1]})
		if len(out) == 0 {
			return 0
		}
		return float64(out[0])
	default:
		return 0
	}
}

// FromFloat64 narrows v into dst using the saturating/truncating cast
// appropriate to t: integer destinations saturate to their range,
// float destinations round per IEEE/the packed format's own rules.
func FromFloat64(t ScalarType, dst []byte, v float64) {
	switch t {
	case Byte:
		dst[0] = byte(saturate(v, 0, 255))
	case Char, QInt8:
		dst[0] = byte(int8(saturate(v, -128, 127)))
	case Short:
		putLE16(dst, uint16(int16(saturate(v, -32768, 32767))))
	case Int:
		putLE32(dst, uint32(int32(saturate(v, -2147483648, 2147483647))))
	case Long:
		switch {
		case v >= 1<<63:
			putLE64(dst, 1<<63-1)
		case v < -(1 << 63):
			putLE64(dst, 1<<63) // bit pattern of the minimum int64
		default:
			putLE64(dst, uint64(int64(v)))
		}
	case Float:
		putLE32(dst, f32bits(float32(v)))
	case Double:
		putLE64(dst, f64bits(v))
	case Half:
		putLE16(dst, float16.Fromfloat32(float32(v)).Bits())
	case BFloat16:
		enc := bfloat16.EncodeFloat32([]float32{float32(v)})
		copy(dst[:2], enc)
	}
}

func saturate(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
