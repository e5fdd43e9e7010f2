// Package dispatch implements type-dispatched kernel execution over a
// Tensor. Where a C++ engine would use template instantiation to
// expand one kernel body across every scalar type,
// Go generics play the same role: Kernel holds one instantiation of a
// generic function per supported dtype, and Dispatch looks up the
// instantiation matching a Tensor's runtime ScalarType.
package dispatch

import (
	"context"
	"fmt"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/parallel"
	"github.com/o9nn/otterengine/pkg/tensor"
	"gonum.org/v1/gonum/floats"
)

// ElemFn is one dtype's instantiation of an element-wise kernel body:
// given the raw bytes of one element from each operand, write the
// result into dst.
type ElemFn func(dst []byte, operands ...[]byte)

// Kernel maps a dtype to the instantiation that handles it, mirroring
// the struct-of-function-pointers pattern the original builds per
// AT_DISPATCH-style macro expansion.
type Kernel struct {
	fns map[dtype.ScalarType]ElemFn
}

// NewKernel builds a Kernel from an explicit dtype -> instantiation
// table.
func NewKernel(fns map[dtype.ScalarType]ElemFn) *Kernel {
	return &Kernel{fns: fns}
}

// For looks up the instantiation for dt, reporting
// ottererr.ErrUnsupportedDType if this Kernel was never given one.
func (k *Kernel) For(dt dtype.ScalarType) (ElemFn, error) {
	fn, ok := k.fns[dt]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ottererr.ErrUnsupportedDType, dt)
	}
	return fn, nil
}

// Dispatch applies k element-wise across out and operands, which must
// all share out's shape (no broadcasting; see tensor.Tensor.Copy_'s
// same restriction) and must all share a single dtype. Work is handed
// to eng.ParallelFor so a large tensor's elements are visited
// concurrently; grainSize controls how many elements one goroutine
// handles before yielding the next chunk to another.
func Dispatch(ctx context.Context, eng *parallel.Engine, grainSize int64, out *tensor.Tensor, operands ...*tensor.Tensor) func(k *Kernel) error {
	return func(k *Kernel) error {
		dt := out.DType()
		for _, op := range operands {
			if op.DType() != dt {
				return fmt.Errorf("%w: operand dtype %v does not match output dtype %v", ottererr.ErrUnsupportedDType, op.DType(), dt)
			}
			if op.Numel() != out.Numel() {
				return fmt.Errorf("%w: operand has %d elements, output has %d", ottererr.ErrShapeMismatch, op.Numel(), out.Numel())
			}
		}
		fn, err := k.For(dt)
		if err != nil {
			return err
		}

		n := out.Numel()
		sizes := out.Sizes()
		return eng.ParallelFor(ctx, 0, n, grainSize, func(_ context.Context, begin, end int64) error {
			idx := make([]int64, len(sizes))
			operandBufs := make([][]byte, len(operands))
			for linear := begin; linear < end; linear++ {
				unflattenInto(linear, sizes, idx)
				dst, err := out.At(idx...)
				if err != nil {
					return err
				}
				for i, op := range operands {
					b, err := op.At(idx...)
					if err != nil {
						return err
					}
					operandBufs[i] = b
				}
				fn(dst, operandBufs...)
			}
			return nil
		})
	}
}

func unflattenInto(linear int64, sizes, idx []int64) {
	for i := len(sizes) - 1; i >= 0; i-- {
		if sizes[i] == 0 {
			idx[i] = 0
			continue
		}
		idx[i] = linear % sizes[i]
		linear /= sizes[i]
	}
}

// Reduce folds every element of in into a single float64 accumulator
// using combine, starting from init. Unlike Dispatch, Reduce always
// runs serially: the original's reduction path collapses partial
// per-chunk accumulators behind a mutex, which for this engine's scale
// of models is not worth the complexity of a tree-reduction.
func Reduce(in *tensor.Tensor, init float64, combine func(acc float64, v float64) float64) float64 {
	acc := init
	sizes := in.Sizes()
	idx := make([]int64, len(sizes))
	n := in.Numel()
	for linear := int64(0); linear < n; linear++ {
		unflattenInto(linear, sizes, idx)
		b, err := in.At(idx...)
		if err != nil {
			continue
		}
		acc = combine(acc, dtype.ToFloat64(in.DType(), b))
	}
	return acc
}

// Sum totals every element of in. When in is a contiguous Double
// tensor it hands the backing buffer straight to gonum's floats.Sum
// rather than walking it one dtype.ToFloat64 conversion at a time;
// every other dtype/layout falls back to Reduce.
func Sum(in *tensor.Tensor) float64 {
	if data, ok := in.Float64Slice(); ok {
		return floats.Sum(data)
	}
	return Reduce(in, 0, func(acc, v float64) float64 { return acc + v })
}
