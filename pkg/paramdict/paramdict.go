// Package paramdict implements ParamDict: the
// int-keyed option bag a layer's text-format parameter line parses
// into before ParseParam interprets it. Each key holds exactly one of
// an int, a float, or a tensor (array variants are modeled as a
// tensor with the values along its one axis, matching how the
// original's ParamDict stores a Mat for both scalar-array and single
// cases).
package paramdict

import (
	"fmt"

	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/tensor"
)

// Kind tags which variant a slot holds.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindTensor
)

type value struct {
	kind Kind
	i    int64
	f    float64
	t    *tensor.Tensor
}

// ParamDict is a sparse int-keyed map of typed option values.
type ParamDict struct {
	values map[int]value
}

// New returns an empty ParamDict.
func New() *ParamDict {
	return &ParamDict{values: map[int]value{}}
}

// SetInt stores an integer at key.
func (pd *ParamDict) SetInt(key int, v int64) {
	pd.values[key] = value{kind: KindInt, i: v}
}

// SetFloat stores a float at key.
func (pd *ParamDict) SetFloat(key int, v float64) {
	pd.values[key] = value{kind: KindFloat, f: v}
}

// SetTensor stores a tensor (used for array-valued options) at key.
func (pd *ParamDict) SetTensor(key int, v *tensor.Tensor) {
	pd.values[key] = value{kind: KindTensor, t: v}
}

// Has reports whether key was set.
func (pd *ParamDict) Has(key int) bool {
	_, ok := pd.values[key]
	return ok
}

// Int reads key as an int, returning def if key is absent.
func (pd *ParamDict) Int(key int, def int64) int64 {
	v, ok := pd.values[key]
	if !ok || v.kind != KindInt {
		return def
	}
	return v.i
}

// Float reads key as a float, returning def if key is absent.
func (pd *ParamDict) Float(key int, def float64) float64 {
	v, ok := pd.values[key]
	if !ok || v.kind != KindFloat {
		return def
	}
	return v.f
}

// Tensor reads key as a tensor, or nil if absent.
func (pd *ParamDict) Tensor(key int) *tensor.Tensor {
	v, ok := pd.values[key]
	if !ok || v.kind != KindTensor {
		return nil
	}
	return v.t
}

// RequireInt reads key as an int, failing with ErrBadOption if absent.
func (pd *ParamDict) RequireInt(key int) (int64, error) {
	v, ok := pd.values[key]
	if !ok || v.kind != KindInt {
		return 0, fmt.Errorf("%w: missing int option %d", ottererr.ErrBadOption, key)
	}
	return v.i, nil
}

// Keys returns every key currently set, in no particular order.
func (pd *ParamDict) Keys() []int {
	out := make([]int, 0, len(pd.values))
	for k := range pd.values {
		out = append(out, k)
	}
	return out
}
