// Package conv implements Convolution, the one
// reference 2-D layer the engine ships a real compute kernel for.
// Input and output tensors are channel-first [C, H, W] views (no
// batch axis — the Extractor processes one example at a time,
// mirroring the graph executor's single-image contract).
package conv

import (
	"context"
	"fmt"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/layer"
	"github.com/o9nn/otterengine/pkg/layer/registry"
	"github.com/o9nn/otterengine/pkg/netio"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/paramdict"
	"github.com/o9nn/otterengine/pkg/parallel"
	"github.com/o9nn/otterengine/pkg/tensor"
)

const TypeName = "Convolution"

// ParamDict keys. OutputPaddingHeight and OutputPaddingWidth are
// distinct keys so non-square output padding is representable, rather
// than collapsing both axes onto one field.
const (
	optNumOutput           = 0
	optKernelW             = 1
	optKernelH             = 2
	optDilationW           = 3
	optDilationH           = 4
	optStrideW             = 5
	optStrideH             = 6
	optPadLeft             = 7
	optPadRight            = 8
	optPadTop              = 9
	optPadBottom           = 10
	optPadValue            = 11
	optBiasTerm            = 12
	optWeightDataSize      = 13
	optOutputPaddingHeight = 14
	optOutputPaddingWidth  = 15
)

func init() {
	registry.Register(TypeName, func(name string) layer.Layer {
		return &Convolution{Base: layer.Base{LayerType: TypeName, LayerName: name}}
	})
}

type Convolution struct {
	layer.Base

	NumOutput int64
	KernelW   int64
	KernelH   int64
	DilationW int64
	DilationH int64
	StrideW   int64
	StrideH   int64
	PadLeft   int64
	PadRight  int64
	PadTop    int64
	PadBottom int64
	PadValue  float64
	BiasTerm  bool

	WeightDataSize      int64
	OutputPaddingHeight int64
	OutputPaddingWidth  int64

	weight *tensor.Tensor // [NumOutput, InChannels, KernelH, KernelW]
	bias   *tensor.Tensor // [NumOutput], only if BiasTerm
	inCh   int64

	batchNormFused bool
}

// SetBatchNormFused implements graph.FusionAware: when the graph
// builder is about to fuse a BatchNorm directly onto this
// convolution's output, bias_term's unset default flips from true to
// false, since the fused BatchNorm's own shift already subsumes it.
func (l *Convolution) SetBatchNormFused(fused bool) { l.batchNormFused = fused }

func (l *Convolution) ParseParam(pd *paramdict.ParamDict) error {
	numOutput, err := pd.RequireInt(optNumOutput)
	if err != nil {
		return err
	}
	l.NumOutput = numOutput
	l.KernelW = pd.Int(optKernelW, 1)
	l.KernelH = pd.Int(optKernelH, l.KernelW)
	l.DilationW = pd.Int(optDilationW, 1)
	l.DilationH = pd.Int(optDilationH, l.DilationW)
	l.StrideW = pd.Int(optStrideW, 1)
	l.StrideH = pd.Int(optStrideH, l.StrideW)
	l.PadLeft = pd.Int(optPadLeft, 0)
	l.PadRight = pd.Int(optPadRight, l.PadLeft)
	l.PadTop = pd.Int(optPadTop, l.PadLeft)
	l.PadBottom = pd.Int(optPadBottom, l.PadRight)
	l.PadValue = pd.Float(optPadValue, 0)
	defaultBias := int64(1)
	if l.batchNormFused {
		defaultBias = 0
	}
	l.BiasTerm = pd.Int(optBiasTerm, defaultBias) != 0
	l.WeightDataSize = pd.Int(optWeightDataSize, 0)
	l.OutputPaddingHeight = pd.Int(optOutputPaddingHeight, 0)
	l.OutputPaddingWidth = pd.Int(optOutputPaddingWidth, 0)

	if l.KernelW <= 0 || l.KernelH <= 0 {
		return fmt.Errorf("%w: Convolution layer %q has non-positive kernel size", ottererr.ErrBadOption, l.Name())
	}
	return nil
}

func (l *Convolution) outDim(in, kernel, dilation, stride, padBefore, padAfter, outputPadding int64) int64 {
	effectiveKernel := dilation*(kernel-1) + 1
	return (in+padBefore+padAfter-effectiveKernel)/stride + 1 + outputPadding
}

func (l *Convolution) ComputeOutputShape(inputShapes [][]int64) ([][]int64, error) {
	if len(inputShapes) != 1 || len(inputShapes[0]) != 3 {
		return nil, fmt.Errorf("%w: Convolution layer %q wants one [C,H,W] input", ottererr.ErrShapeMismatch, l.Name())
	}
	c, h, w := inputShapes[0][0], inputShapes[0][1], inputShapes[0][2]
	if l.inCh != 0 && l.inCh != c {
		return nil, fmt.Errorf("%w: Convolution layer %q was built for %d input channels, got %d", ottererr.ErrShapeMismatch, l.Name(), l.inCh, c)
	}
	outH := l.outDim(h, l.KernelH, l.DilationH, l.StrideH, l.PadTop, l.PadBottom, l.OutputPaddingHeight)
	outW := l.outDim(w, l.KernelW, l.DilationW, l.StrideW, l.PadLeft, l.PadRight, l.OutputPaddingWidth)
	return [][]int64{{l.NumOutput, outH, outW}}, nil
}

func (l *Convolution) resolveInChannels() (int64, error) {
	if l.WeightDataSize <= 0 || l.NumOutput <= 0 || l.KernelW <= 0 || l.KernelH <= 0 {
		return 0, fmt.Errorf("%w: Convolution layer %q cannot resolve input channel count", ottererr.ErrBadOption, l.Name())
	}
	perOutput := l.WeightDataSize / l.NumOutput
	perChannel := l.KernelW * l.KernelH
	if perOutput%perChannel != 0 {
		return 0, fmt.Errorf("%w: Convolution layer %q weight_data_size %d is not divisible by kernel area", ottererr.ErrWeightMismatch, l.Name(), l.WeightDataSize)
	}
	return perOutput / perChannel, nil
}

func (l *Convolution) InitModel(ini *netio.Initializer) error {
	inCh, err := l.resolveInChannels()
	if err != nil {
		return err
	}
	l.inCh = inCh
	if l.weight, err = ini.Init([]int64{l.NumOutput, inCh, l.KernelH, l.KernelW}, dtype.Float); err != nil {
		return err
	}
	if l.BiasTerm {
		if l.bias, err = ini.Init([]int64{l.NumOutput}, dtype.Float); err != nil {
			return err
		}
	}
	return nil
}

// LoadModel reads bias before weight, matching the stream layout this
// layer's weight files were written in.
func (l *Convolution) LoadModel(ini *netio.Initializer) error {
	inCh, err := l.resolveInChannels()
	if err != nil {
		return err
	}
	l.inCh = inCh
	if l.BiasTerm {
		if l.bias, err = ini.Load([]int64{l.NumOutput}, dtype.Float); err != nil {
			return err
		}
	}
	if l.weight, err = ini.Load([]int64{l.NumOutput, inCh, l.KernelH, l.KernelW}, dtype.Float); err != nil {
		return err
	}
	return nil
}

func (l *Convolution) convolve(ctx context.Context, in, out *tensor.Tensor) error {
	eng := parallel.EngineFromContext(ctx)
	inSizes := in.Sizes()
	inH, inW := inSizes[1], inSizes[2]
	outSizes := out.Sizes()
	outH, outW := outSizes[1], outSizes[2]

	return eng.ParallelFor(ctx, 0, l.NumOutput, 1, func(_ context.Context, ocBegin, ocEnd int64) error {
		for oc := ocBegin; oc < ocEnd; oc++ {
			var biasVal float64
			if l.BiasTerm {
				b, err := l.bias.At(oc)
				if err != nil {
					return err
				}
				biasVal = dtype.ToFloat64(dtype.Float, b)
			}
			for oy := int64(0); oy < outH; oy++ {
				for ox := int64(0); ox < outW; ox++ {
					acc := biasVal
					for ic := int64(0); ic < l.inCh; ic++ {
						for ky := int64(0); ky < l.KernelH; ky++ {
							iy := oy*l.StrideH - l.PadTop + ky*l.DilationH
							for kx := int64(0); kx < l.KernelW; kx++ {
								ix := ox*l.StrideW - l.PadLeft + kx*l.DilationW
								var inVal float64
								if iy >= 0 && iy < inH && ix >= 0 && ix < inW {
									b, err := in.At(ic, iy, ix)
									if err != nil {
										return err
									}
									inVal = dtype.ToFloat64(in.DType(), b)
								} else {
									inVal = l.PadValue
								}
								wb, err := l.weight.At(oc, ic, ky, kx)
								if err != nil {
									return err
								}
								acc += inVal * dtype.ToFloat64(dtype.Float, wb)
							}
						}
					}
					dst, err := out.At(oc, oy, ox)
					if err != nil {
						return err
					}
					dtype.FromFloat64(out.DType(), dst, acc)
				}
			}
		}
		return nil
	})
}

func (l *Convolution) Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%w: Convolution layer %q wants exactly one input", ottererr.ErrShapeMismatch, l.Name())
	}
	shapes, err := l.ComputeOutputShape([][]int64{inputs[0].Sizes()})
	if err != nil {
		return nil, err
	}
	out, err := tensor.Empty(shapes[0], inputs[0].DType(), tensor.Contiguous)
	if err != nil {
		return nil, err
	}
	if err := l.convolve(ctx, inputs[0], out); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

// ForwardInplace is never valid for Convolution: the output shape
// generally differs from the input's, so there is nothing to
// overwrite safely.
func (l *Convolution) ForwardInplace(ctx context.Context, inputs []*tensor.Tensor) error {
	return fmt.Errorf("%w: Convolution layer %q does not support in-place forward", ottererr.ErrGraphError, l.Name())
}

func (l *Convolution) SupportsInplace() bool { return false }
