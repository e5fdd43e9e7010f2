// Package batchnorm implements inference-mode BatchNorm: out = (x -
// running_mean) / sqrt(running_var + eps) * gamma + beta, folded into
// a single per-channel scale/shift pair at load time exactly as the
// graph builder expects to fuse it onto a preceding Convolution.
// There is no running-statistics update path: training
// is an explicit non-goal, so running_mean/running_var are loaded
// once and never touched again.
package batchnorm

import (
	"context"
	"fmt"
	"math"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/layer"
	"github.com/o9nn/otterengine/pkg/layer/registry"
	"github.com/o9nn/otterengine/pkg/netio"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/paramdict"
	"github.com/o9nn/otterengine/pkg/parallel"
	"github.com/o9nn/otterengine/pkg/tensor"
)

const TypeName = "BatchNorm"

const (
	optChannels = 0
	optEps      = 1
)

func init() {
	registry.Register(TypeName, func(name string) layer.Layer {
		return &BatchNorm{Base: layer.Base{LayerType: TypeName, LayerName: name}}
	})
}

type BatchNorm struct {
	layer.Base
	Channels int64
	Eps      float64

	gamma, beta, mean, variance *tensor.Tensor
	// scale/shift are derived at LoadModel/InitModel time: out = x*scale + shift.
	scale, shift []float64
}

func (l *BatchNorm) ParseParam(pd *paramdict.ParamDict) error {
	ch, err := pd.RequireInt(optChannels)
	if err != nil {
		return err
	}
	l.Channels = ch
	l.Eps = pd.Float(optEps, 1e-5)
	return nil
}

func (l *BatchNorm) ComputeOutputShape(inputShapes [][]int64) ([][]int64, error) {
	if len(inputShapes) != 1 {
		return nil, fmt.Errorf("%w: BatchNorm layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	return [][]int64{inputShapes[0]}, nil
}

func (l *BatchNorm) fold() error {
	l.scale = make([]float64, l.Channels)
	l.shift = make([]float64, l.Channels)
	for c := int64(0); c < l.Channels; c++ {
		g, err := l.gamma.At(c)
		if err != nil {
			return err
		}
		b, err := l.beta.At(c)
		if err != nil {
			return err
		}
		m, err := l.mean.At(c)
		if err != nil {
			return err
		}
		v, err := l.variance.At(c)
		if err != nil {
			return err
		}
		gamma := dtype.ToFloat64(dtype.Float, g)
		beta := dtype.ToFloat64(dtype.Float, b)
		mean := dtype.ToFloat64(dtype.Float, m)
		variance := dtype.ToFloat64(dtype.Float, v)
		denom := math.Sqrt(variance + l.Eps)
		l.scale[c] = gamma / denom
		l.shift[c] = beta - mean*gamma/denom
	}
	return nil
}

func (l *BatchNorm) InitModel(ini *netio.Initializer) error {
	var err error
	if l.gamma, err = ini.Init([]int64{l.Channels}, dtype.Float); err != nil {
		return err
	}
	if l.beta, err = ini.Init([]int64{l.Channels}, dtype.Float); err != nil {
		return err
	}
	if l.mean, err = ini.Init([]int64{l.Channels}, dtype.Float); err != nil {
		return err
	}
	if l.variance, err = ini.Init([]int64{l.Channels}, dtype.Float); err != nil {
		return err
	}
	return l.fold()
}

func (l *BatchNorm) LoadModel(ini *netio.Initializer) error {
	var err error
	if l.gamma, err = ini.Load([]int64{l.Channels}, dtype.Float); err != nil {
		return err
	}
	if l.beta, err = ini.Load([]int64{l.Channels}, dtype.Float); err != nil {
		return err
	}
	if l.mean, err = ini.Load([]int64{l.Channels}, dtype.Float); err != nil {
		return err
	}
	if l.variance, err = ini.Load([]int64{l.Channels}, dtype.Float); err != nil {
		return err
	}
	return l.fold()
}

// apply runs the folded per-channel affine transform over an NCHW (or
// bare C) input using the channel axis closest to dim 0.
func (l *BatchNorm) apply(ctx context.Context, out, in *tensor.Tensor) error {
	eng := parallel.EngineFromContext(ctx)
	sizes := in.Sizes()
	channelDim := 0
	if len(sizes) >= 3 {
		channelDim = 0 // NCHW with N folded out by the executor: dim0 is channel
	}
	channels := sizes[channelDim]
	innerSize := int64(1)
	for i := channelDim + 1; i < len(sizes); i++ {
		innerSize *= sizes[i]
	}
	return eng.ParallelFor(ctx, 0, channels, 1, func(_ context.Context, cb, ce int64) error {
		idx := make([]int64, len(sizes))
		for c := cb; c < ce; c++ {
			scale, shift := l.scale[c], l.shift[c]
			for inner := int64(0); inner < innerSize; inner++ {
				unflattenInner(c, inner, sizes, channelDim, idx)
				src, err := in.At(idx...)
				if err != nil {
					return err
				}
				v := dtype.ToFloat64(in.DType(), src)*scale + shift
				dst, err := out.At(idx...)
				if err != nil {
					return err
				}
				dtype.FromFloat64(out.DType(), dst, v)
			}
		}
		return nil
	})
}

func unflattenInner(c, inner int64, sizes []int64, channelDim int, idx []int64) {
	idx[channelDim] = c
	rest := inner
	for i := len(sizes) - 1; i > channelDim; i-- {
		idx[i] = rest % sizes[i]
		rest /= sizes[i]
	}
	for i := 0; i < channelDim; i++ {
		idx[i] = 0
	}
}

func (l *BatchNorm) Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%w: BatchNorm layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	out, err := tensor.Empty(inputs[0].Sizes(), inputs[0].DType(), inputs[0].MemoryFormatOf())
	if err != nil {
		return nil, err
	}
	if err := l.apply(ctx, out, inputs[0]); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

func (l *BatchNorm) ForwardInplace(ctx context.Context, inputs []*tensor.Tensor) error {
	if len(inputs) != 1 {
		return fmt.Errorf("%w: BatchNorm layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	return l.apply(ctx, inputs[0], inputs[0])
}

func (l *BatchNorm) SupportsInplace() bool { return true }
