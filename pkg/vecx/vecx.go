// Package vecx implements the fixed-width vectorized numeric type.
// Where a C++ engine instantiates one
// Vectorized<T> template per scalar type backed by hand-written SIMD
// intrinsics, this package instantiates one Vectorized[T] generic type
// per call site and, for the two types that dominate inference
// workloads (float32, float64), dispatches the arithmetic into
// gorgonia.org/vecf32 and gorgonia.org/vecf64 rather than hand-rolling
// SIMD loops; every other T falls back to a plain element loop.
package vecx

import (
	"math"

	"gorgonia.org/vecf32"
	"gorgonia.org/vecf64"
)

// Numeric is the closed set of element kinds Vectorized supports.
type Numeric interface {
	~float32 | ~float64 | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Vectorized holds width lanes of T. It is a value-ish wrapper over a
// slice: copy the slice, don't alias it, when you need an independent
// result (New* constructors and the binary-op methods all allocate a
// fresh backing slice).
type Vectorized[T Numeric] struct {
	data []T
}

// Zero returns a width-lane vector of zero values.
func Zero[T Numeric](width int) *Vectorized[T] {
	return &Vectorized[T]{data: make([]T, width)}
}

// Broadcast returns a width-lane vector with every lane set to v.
func Broadcast[T Numeric](width int, v T) *Vectorized[T] {
	d := make([]T, width)
	for i := range d {
		d[i] = v
	}
	return &Vectorized[T]{data: d}
}

// FromSlice copies vs into a new Vectorized.
func FromSlice[T Numeric](vs []T) *Vectorized[T] {
	d := make([]T, len(vs))
	copy(d, vs)
	return &Vectorized[T]{data: d}
}

// Len reports the lane count.
func (v *Vectorized[T]) Len() int { return len(v.data) }

// LoadU copies count elements starting at offset from src into a new
// Vectorized (the "loadu" unaligned-load primitive).
func LoadU[T Numeric](src []T, offset, count int) *Vectorized[T] {
	return FromSlice(src[offset : offset+count])
}

// Store writes v's lanes into dst starting at offset.
func (v *Vectorized[T]) Store(dst []T, offset int) {
	copy(dst[offset:offset+len(v.data)], v.data)
}

// Slice exposes the underlying lanes read-only.
func (v *Vectorized[T]) Slice() []T { return v.data }

func cloneOf[T Numeric](v *Vectorized[T]) []T {
	out := make([]T, len(v.data))
	copy(out, v.data)
	return out
}

// Add returns v + other, lane-wise.
func (v *Vectorized[T]) Add(other *Vectorized[T]) *Vectorized[T] {
	out := cloneOf(v)
	switch d := any(out).(type) {
	case []float32:
		vecf32.Add(d, any(other.data).([]float32))
	case []float64:
		vecf64.Add(d, any(other.data).([]float64))
	default:
		for i := range out {
			out[i] += other.data[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// Sub returns v - other, lane-wise.
func (v *Vectorized[T]) Sub(other *Vectorized[T]) *Vectorized[T] {
	out := cloneOf(v)
	switch d := any(out).(type) {
	case []float32:
		vecf32.Sub(d, any(other.data).([]float32))
	case []float64:
		vecf64.Sub(d, any(other.data).([]float64))
	default:
		for i := range out {
			out[i] -= other.data[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// Mul returns v * other, lane-wise.
func (v *Vectorized[T]) Mul(other *Vectorized[T]) *Vectorized[T] {
	out := cloneOf(v)
	switch d := any(out).(type) {
	case []float32:
		vecf32.Mul(d, any(other.data).([]float32))
	case []float64:
		vecf64.Mul(d, any(other.data).([]float64))
	default:
		for i := range out {
			out[i] *= other.data[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// Div returns v / other, lane-wise.
func (v *Vectorized[T]) Div(other *Vectorized[T]) *Vectorized[T] {
	out := cloneOf(v)
	switch d := any(out).(type) {
	case []float32:
		vecf32.Div(d, any(other.data).([]float32))
	case []float64:
		vecf64.Div(d, any(other.data).([]float64))
	default:
		for i := range out {
			out[i] /= other.data[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// Neg returns -v, lane-wise.
func (v *Vectorized[T]) Neg() *Vectorized[T] {
	out := cloneOf(v)
	for i := range out {
		out[i] = -out[i]
	}
	return &Vectorized[T]{data: out}
}

// bitwise applies op to the lane-wise bit pattern of v and other, lane
// by lane. Integer lanes feed their native width straight into op;
// float lanes go through the register-reinterpret the IEEE-754
// encoding needs (Float32bits/Float64bits) and back, which is the
// word-sized fallback the closed Numeric set always affords.
func (v *Vectorized[T]) bitwise(other *Vectorized[T], op func(a, b uint64) uint64) *Vectorized[T] {
	out := cloneOf(v)
	switch d := any(out).(type) {
	case []float32:
		o := any(other.data).([]float32)
		for i := range d {
			d[i] = math.Float32frombits(uint32(op(uint64(math.Float32bits(d[i])), uint64(math.Float32bits(o[i])))))
		}
	case []float64:
		o := any(other.data).([]float64)
		for i := range d {
			d[i] = math.Float64frombits(op(math.Float64bits(d[i]), math.Float64bits(o[i])))
		}
	case []int8:
		o := any(other.data).([]int8)
		for i := range d {
			d[i] = int8(op(uint64(uint8(d[i])), uint64(uint8(o[i]))))
		}
	case []int16:
		o := any(other.data).([]int16)
		for i := range d {
			d[i] = int16(op(uint64(uint16(d[i])), uint64(uint16(o[i]))))
		}
	case []int32:
		o := any(other.data).([]int32)
		for i := range d {
			d[i] = int32(op(uint64(uint32(d[i])), uint64(uint32(o[i]))))
		}
	case []int64:
		o := any(other.data).([]int64)
		for i := range d {
			d[i] = int64(op(uint64(d[i]), uint64(o[i])))
		}
	case []uint8:
		o := any(other.data).([]uint8)
		for i := range d {
			d[i] = uint8(op(uint64(d[i]), uint64(o[i])))
		}
	case []uint16:
		o := any(other.data).([]uint16)
		for i := range d {
			d[i] = uint16(op(uint64(d[i]), uint64(o[i])))
		}
	case []uint32:
		o := any(other.data).([]uint32)
		for i := range d {
			d[i] = uint32(op(uint64(d[i]), uint64(o[i])))
		}
	case []uint64:
		o := any(other.data).([]uint64)
		for i := range d {
			d[i] = op(d[i], o[i])
		}
	}
	return &Vectorized[T]{data: out}
}

// And returns v & other, lane-wise.
func (v *Vectorized[T]) And(other *Vectorized[T]) *Vectorized[T] {
	return v.bitwise(other, func(a, b uint64) uint64 { return a & b })
}

// Or returns v | other, lane-wise.
func (v *Vectorized[T]) Or(other *Vectorized[T]) *Vectorized[T] {
	return v.bitwise(other, func(a, b uint64) uint64 { return a | b })
}

// Xor returns v ^ other, lane-wise.
func (v *Vectorized[T]) Xor(other *Vectorized[T]) *Vectorized[T] {
	return v.bitwise(other, func(a, b uint64) uint64 { return a ^ b })
}

// Not returns the lane-wise bitwise complement of v. Applying it twice
// is the identity: complementing a bit pattern twice restores it,
// float lanes included, since Float32/64bits/frombits is a lossless
// round trip through the IEEE-754 encoding.
func (v *Vectorized[T]) Not() *Vectorized[T] {
	out := cloneOf(v)
	switch d := any(out).(type) {
	case []float32:
		for i := range d {
			d[i] = math.Float32frombits(^math.Float32bits(d[i]))
		}
	case []float64:
		for i := range d {
			d[i] = math.Float64frombits(^math.Float64bits(d[i]))
		}
	case []int8:
		for i := range d {
			d[i] = ^d[i]
		}
	case []int16:
		for i := range d {
			d[i] = ^d[i]
		}
	case []int32:
		for i := range d {
			d[i] = ^d[i]
		}
	case []int64:
		for i := range d {
			d[i] = ^d[i]
		}
	case []uint8:
		for i := range d {
			d[i] = ^d[i]
		}
	case []uint16:
		for i := range d {
			d[i] = ^d[i]
		}
	case []uint32:
		for i := range d {
			d[i] = ^d[i]
		}
	case []uint64:
		for i := range d {
			d[i] = ^d[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// FMA returns v*b + c, lane-wise, computed as one fused step per lane
// when T is float32/float64 (math.FMA avoids the intermediate
// rounding a plain mul-then-add would introduce).
func (v *Vectorized[T]) FMA(b, c *Vectorized[T]) *Vectorized[T] {
	out := make([]T, len(v.data))
	switch any(out).(type) {
	case []float32:
		for i := range out {
			out[i] = T(math.FMA(float64(v.data[i]), float64(b.data[i]), float64(c.data[i])))
		}
	case []float64:
		for i := range out {
			out[i] = T(math.FMA(float64(v.data[i]), float64(b.data[i]), float64(c.data[i])))
		}
	default:
		for i := range out {
			out[i] = v.data[i]*b.data[i] + c.data[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// Sqrt returns the lane-wise square root.
func (v *Vectorized[T]) Sqrt() *Vectorized[T] {
	out := cloneOf(v)
	switch d := any(out).(type) {
	case []float32:
		vecf32.Sqrt(d)
	case []float64:
		vecf64.Sqrt(d)
	default:
		for i := range out {
			out[i] = T(math.Sqrt(float64(out[i])))
		}
	}
	return &Vectorized[T]{data: out}
}

// Exp returns the lane-wise exponential, used by activation kernels
// (sigmoid/softmax) elsewhere in the engine.
func (v *Vectorized[T]) Exp() *Vectorized[T] {
	out := cloneOf(v)
	switch d := any(out).(type) {
	case []float32:
		vecf32.Exp(d)
	case []float64:
		vecf64.Exp(d)
	default:
		for i := range out {
			out[i] = T(math.Exp(float64(out[i])))
		}
	}
	return &Vectorized[T]{data: out}
}

// Max returns the lane-wise maximum of v and other.
func (v *Vectorized[T]) Max(other *Vectorized[T]) *Vectorized[T] {
	out := make([]T, len(v.data))
	for i := range out {
		if v.data[i] >= other.data[i] {
			out[i] = v.data[i]
		} else {
			out[i] = other.data[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// Min returns the lane-wise minimum of v and other.
func (v *Vectorized[T]) Min(other *Vectorized[T]) *Vectorized[T] {
	out := make([]T, len(v.data))
	for i := range out {
		if v.data[i] <= other.data[i] {
			out[i] = v.data[i]
		} else {
			out[i] = other.data[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// Eq returns a per-lane boolean mask, v[i] == other[i].
func (v *Vectorized[T]) Eq(other *Vectorized[T]) []bool {
	out := make([]bool, len(v.data))
	for i := range out {
		out[i] = v.data[i] == other.data[i]
	}
	return out
}

// Lt returns a per-lane boolean mask, v[i] < other[i].
func (v *Vectorized[T]) Lt(other *Vectorized[T]) []bool {
	out := make([]bool, len(v.data))
	for i := range out {
		out[i] = v.data[i] < other.data[i]
	}
	return out
}

// Blend selects other[i] where mask[i] is true, else v[i] — the
// blendv primitive used by masked activation kernels (e.g. ReLU's
// x>0 select, LeakyReLU's slope blend).
func (v *Vectorized[T]) Blend(mask []bool, other *Vectorized[T]) *Vectorized[T] {
	out := cloneOf(v)
	for i := range out {
		if i < len(mask) && mask[i] {
			out[i] = other.data[i]
		}
	}
	return &Vectorized[T]{data: out}
}

// Map applies f to every lane, returning a new Vectorized.
func (v *Vectorized[T]) Map(f func(T) T) *Vectorized[T] {
	out := make([]T, len(v.data))
	for i, x := range v.data {
		out[i] = f(x)
	}
	return &Vectorized[T]{data: out}
}

// Cast converts every lane of v into a Vectorized over a different
// numeric type Dst, mirroring Vectorized<T>::cast<Dst>().
func Cast[Dst, Src Numeric](v *Vectorized[Src]) *Vectorized[Dst] {
	out := make([]Dst, len(v.data))
	for i, x := range v.data {
		out[i] = Dst(x)
	}
	return &Vectorized[Dst]{data: out}
}
