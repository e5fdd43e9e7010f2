// Package input implements the Input layer: a pass-through placeholder
// declared in the layer list as the producer of a graph-input blob,
// carrying the declared shape so ComputeOutputShape has something to report
// even before any real data has been extracted.
package input

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

const TypeName = "Input"

const (
	optW = 0
	optH = 1
	optC = 2
)

func init() {
	registry.Register(TypeName, func(name string) layer.Layer {
		return &Input{Base: layer.Base{LayerType: TypeName, LayerName: name}}
	})
}

// Input has no parent blob; Extractor.Input feeds it its tensor
// directly, so Forward is never called with real operands — it is
// only reached when an extraction needs this Input's blob and it was
// never fed, and then it reports that with an error.
type Input struct {
	layer.Base
	w, h, c int64
}

func (l *Input) ParseParam(pd *paramdict.ParamDict) error {
	l.w = pd.Int(optW, 0)
	l.h = pd.Int(optH, 0)
	l.c = pd.Int(optC, 0)
	return nil
}

func (l *Input) ComputeOutputShape(inputShapes [][]int64) ([][]int64, error) {
	shape := []int64{}
	if l.c > 0 {
		shape = append(shape, l.c)
	}
	if l.h > 0 {
		shape = append(shape, l.h)
	}
	if l.w > 0 {
		shape = append(shape, l.w)
	}
	return [][]int64{shape}, nil
}

func (l *Input) InitModel(ini *netio.Initializer) error { return nil }
func (l *Input) LoadModel(ini *netio.Initializer) error { return nil }

func (l *Input) Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return nil, fmt.Errorf("%w: Input layer %q has no forward computation, feed it via Extractor.Input", ottererr.ErrGraphError, l.Name())
}

func (l *Input) ForwardInplace(ctx context.Context, inputs []*tensor.Tensor) error {
	return fmt.Errorf("%w: Input layer %q does not support in-place forward", ottererr.ErrGraphError, l.Name())
}

func (l *Input) SupportsInplace() bool { return false }
