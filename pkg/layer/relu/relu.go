// Package relu implements the ReLU/LeakyReLU activation layer, the
// reference activation the graph builder can fuse directly onto a
// producing layer or run standalone.
package relu

import (
	"context"
	"fmt"

	"github.com/o9nn/otterengine/pkg/dispatch"
	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/layer"
	"github.com/o9nn/otterengine/pkg/layer/registry"
	"github.com/o9nn/otterengine/pkg/netio"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/paramdict"
	"github.com/o9nn/otterengine/pkg/parallel"
	"github.com/o9nn/otterengine/pkg/tensor"
)

const TypeName = "ReLU"

const optSlope = 0

func init() {
	registry.Register(TypeName, func(name string) layer.Layer {
		return &ReLU{Base: layer.Base{LayerType: TypeName, LayerName: name}}
	})
}

// ReLU computes max(x, 0) when Slope == 0, or the LeakyReLU variant
// (x >= 0 ? x : x*Slope) otherwise.
type ReLU struct {
	layer.Base
	Slope float64
}

func (l *ReLU) ParseParam(pd *paramdict.ParamDict) error {
	l.Slope = pd.Float(optSlope, 0)
	return nil
}

func (l *ReLU) ComputeOutputShape(inputShapes [][]int64) ([][]int64, error) {
	if len(inputShapes) != 1 {
		return nil, fmt.Errorf("%w: ReLU layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	return [][]int64{inputShapes[0]}, nil
}

func (l *ReLU) InitModel(ini *netio.Initializer) error { return nil }
func (l *ReLU) LoadModel(ini *netio.Initializer) error { return nil }

func (l *ReLU) kernel() *dispatch.Kernel {
	slope := l.Slope
	applyAs := func(dt dtype.ScalarType) dispatch.ElemFn {
		return func(dst []byte, operands ...[]byte) {
			v := dtype.ToFloat64(dt, operands[0])
			if v < 0 {
				v *= slope
			}
			dtype.FromFloat64(dt, dst, v)
		}
	}
	return dispatch.NewKernel(map[dtype.ScalarType]dispatch.ElemFn{
		dtype.Float:  applyAs(dtype.Float),
		dtype.Double: applyAs(dtype.Double),
	})
}

func (l *ReLU) Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%w: ReLU layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	out, err := tensor.Empty(inputs[0].Sizes(), inputs[0].DType(), inputs[0].MemoryFormatOf())
	if err != nil {
		return nil, err
	}
	eng := parallel.EngineFromContext(ctx)
	if err := dispatch.Dispatch(ctx, eng, 4096, out, inputs[0])(l.kernel()); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

func (l *ReLU) ForwardInplace(ctx context.Context, inputs []*tensor.Tensor) error {
	if len(inputs) != 1 {
		return fmt.Errorf("%w: ReLU layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	eng := parallel.EngineFromContext(ctx)
	return dispatch.Dispatch(ctx, eng, 4096, inputs[0], inputs[0])(l.kernel())
}

func (l *ReLU) SupportsInplace() bool { return true }
