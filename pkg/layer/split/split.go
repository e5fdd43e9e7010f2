// Package split implements the Split layer the graph builder
// synthesizes whenever a blob feeds more than one consumer: it fans
// one input blob out to N output blobs, each a reference-counted
// alias of the same Storage rather than a copy, so fan-out is O(1)
// regardless of tensor size.
package split

import (
	"context"
	"fmt"

	"github.com/o9nn/otterengine/pkg/layer"
	"github.com/o9nn/otterengine/pkg/layer/registry"
	"github.com/o9nn/otterengine/pkg/netio"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/paramdict"
	"github.com/o9nn/otterengine/pkg/tensor"
)

const TypeName = "Split"

func init() {
	registry.Register(TypeName, func(name string) layer.Layer {
		return &Split{Base: layer.Base{LayerType: TypeName, LayerName: name}}
	})
}

type Split struct {
	layer.Base
}

func (l *Split) ParseParam(pd *paramdict.ParamDict) error { return nil }

func (l *Split) ComputeOutputShape(inputShapes [][]int64) ([][]int64, error) {
	if len(inputShapes) != 1 {
		return nil, fmt.Errorf("%w: Split layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	out := make([][]int64, len(l.TopBlobs))
	for i := range out {
		out[i] = inputShapes[0]
	}
	return out, nil
}

func (l *Split) InitModel(ini *netio.Initializer) error { return nil }
func (l *Split) LoadModel(ini *netio.Initializer) error { return nil }

func (l *Split) Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%w: Split layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	src := inputs[0]
	outs := make([]*tensor.Tensor, len(l.TopBlobs))
	for i := range outs {
		v, err := src.View(src.Sizes(), src.Strides(), 0)
		if err != nil {
			return nil, err
		}
		outs[i] = v
	}
	return outs, nil
}

// ForwardInplace is meaningless for a fan-out node: it always hands
// back fresh aliasing views, so the executor never routes Split
// through the in-place path.
func (l *Split) ForwardInplace(ctx context.Context, inputs []*tensor.Tensor) error {
	return fmt.Errorf("%w: Split layer %q does not support in-place forward", ottererr.ErrGraphError, l.Name())
}

func (l *Split) SupportsInplace() bool { return false }
