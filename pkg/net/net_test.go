package net

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	_ "github.com/o9nn/otterengine/pkg/layer/batchnorm"
	_ "github.com/o9nn/otterengine/pkg/layer/conv"
	_ "github.com/o9nn/otterengine/pkg/layer/input"
	_ "github.com/o9nn/otterengine/pkg/layer/relu"
	_ "github.com/o9nn/otterengine/pkg/layer/split"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/graph"
	"github.com/o9nn/otterengine/pkg/netio"
	"github.com/o9nn/otterengine/pkg/paramdict"
	"github.com/o9nn/otterengine/pkg/tensor"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func inputParams(w, h, c int64) *paramdict.ParamDict {
	pd := paramdict.New()
	pd.SetInt(0, w)
	pd.SetInt(1, h)
	pd.SetInt(2, c)
	return pd
}

func convParams(numOutput, kw, kh, inCh int64, bias bool) *paramdict.ParamDict {
	pd := paramdict.New()
	pd.SetInt(0, numOutput)
	pd.SetInt(1, kw)
	pd.SetInt(2, kh)
	pd.SetInt(13, numOutput*inCh*kw*kh)
	if bias {
		pd.SetInt(12, 1)
	}
	return pd
}

func tinyConvSpecs() []graph.LayerSpec {
	return []graph.LayerSpec{
		{Type: "Input", Name: "in", Outputs: []string{"data"}, Params: inputParams(1, 1, 1)},
		{Type: "Convolution", Name: "conv1", Inputs: []string{"data"}, Outputs: []string{"out"}, Params: convParams(1, 1, 1, 1, false)},
	}
}

func float32le(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

func TestTinyConvNetProducesKnownValue(t *testing.T) {
	n := New()
	require.NoError(t, n.Compile(tinyConvSpecs()))

	var stream bytes.Buffer
	stream.Write([]byte{1, 0, 0, 0, 0, 0, 0, 0}) // version banner v1.0
	stream.Write(float32le(5.0))                 // conv1's single weight
	require.NoError(t, n.LoadWeights(netio.FromStdio(&stream)))

	ex := n.NewExtractor()
	in, err := tensor.Zeros([]int64{1, 1, 1}, dtype.Float, tensor.Contiguous)
	require.NoError(t, err)
	ib, _ := in.At(int64(0), int64(0), int64(0))
	dtype.FromFloat64(dtype.Float, ib, 1.0)
	require.NoError(t, ex.Input("data", in))

	out, err := ex.Extract("out")
	require.NoError(t, err)
	v, _ := out.At(int64(0), int64(0), int64(0))
	require.Equal(t, 5.0, dtype.ToFloat64(dtype.Float, v))
}

func TestFusedBatchNormReLUMarked(t *testing.T) {
	specs := []graph.LayerSpec{
		{Type: "Input", Name: "in", Outputs: []string{"data"}, Params: inputParams(1, 1, 1)},
		{Type: "Convolution", Name: "conv1", Inputs: []string{"data"}, Outputs: []string{"c1"}, Params: convParams(1, 1, 1, 1, false)},
		{Type: "BatchNorm", Name: "bn1", Inputs: []string{"c1"}, Outputs: []string{"b1"}, Params: bnParams(1)},
		{Type: "ReLU", Name: "relu1", Inputs: []string{"b1"}, Outputs: []string{"r1"}, Params: paramdict.New()},
	}
	n := New()
	require.NoError(t, n.Compile(specs))
	require.True(t, n.graph.Nodes[1].Fused, "conv1 -> bn1 should be marked fused")
	require.True(t, n.graph.Nodes[2].Fused, "bn1 -> relu1 should be marked fused")
}

func bnParams(channels int64) *paramdict.ParamDict {
	pd := paramdict.New()
	pd.SetInt(0, channels)
	return pd
}

func TestAutoSplitInsertedForFanOut(t *testing.T) {
	specs := []graph.LayerSpec{
		{Type: "Input", Name: "in", Outputs: []string{"data"}, Params: inputParams(1, 1, 1)},
		{Type: "Convolution", Name: "convA", Inputs: []string{"data"}, Outputs: []string{"a"}, Params: convParams(1, 1, 1, 1, false)},
		{Type: "Convolution", Name: "convB", Inputs: []string{"data"}, Outputs: []string{"b"}, Params: convParams(1, 1, 1, 1, false)},
	}
	n := New()
	require.NoError(t, n.Compile(specs))

	foundSplit := false
	for _, node := range n.graph.Nodes {
		if node.Layer.Type() == "Split" {
			foundSplit = true
			require.Equal(t, "auto_sp_0", node.Layer.Name())
		}
	}
	require.True(t, foundSplit)
}

func TestLightModeReleasesIntermediateBlobs(t *testing.T) {
	specs := []graph.LayerSpec{
		{Type: "Input", Name: "in", Outputs: []string{"data"}, Params: inputParams(1, 1, 1)},
		{Type: "Convolution", Name: "conv1", Inputs: []string{"data"}, Outputs: []string{"c1"}, Params: convParams(1, 1, 1, 1, false)},
		{Type: "ReLU", Name: "relu1", Inputs: []string{"c1"}, Outputs: []string{"r1"}, Params: paramdict.New()},
		{Type: "ReLU", Name: "relu2", Inputs: []string{"r1"}, Outputs: []string{"r2"}, Params: paramdict.New()},
	}
	n := New(WithLightMode(true))
	require.NoError(t, n.Compile(specs))
	require.NoError(t, n.InitRandomWeights(1))

	ex := n.NewExtractor()
	in, _ := tensor.Zeros([]int64{1, 1, 1}, dtype.Float, tensor.Contiguous)
	require.NoError(t, ex.Input("data", in))

	_, err := ex.Extract("r2")
	require.NoError(t, err)
	require.LessOrEqual(t, ex.LiveBlobs(), 2)
}

func TestVersionBannerLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	n := New(WithLogger(logger))
	require.NoError(t, n.Compile(tinyConvSpecs()))

	var buf bytes.Buffer
	buf.Write([]byte{1, 0, 0, 0, 2, 0, 0, 0}) // major=1, minor=2
	buf.Write(float32le(5.0))                 // conv1's single weight
	require.NoError(t, n.LoadWeights(netio.FromStdio(&buf)))

	require.Equal(t, 1, logs.Len())
	require.Contains(t, logs.All()[0].Message, "Model: v1.2")
}

func TestExtractByNameAndIndexAgree(t *testing.T) {
	n := New()
	require.NoError(t, n.Compile(tinyConvSpecs()))
	require.NoError(t, n.InitRandomWeights(1))

	ex := n.NewExtractor()
	in, _ := tensor.Zeros([]int64{1, 1, 1}, dtype.Float, tensor.Contiguous)
	require.NoError(t, ex.Input("data", in))

	byName, err := ex.Extract("out")
	require.NoError(t, err)

	ex2 := n.NewExtractor()
	idx, err := n.graph.BlobIndex("data")
	require.NoError(t, err)
	require.NoError(t, ex2.InputIndex(idx, in))
	outIdx, err := n.graph.BlobIndex("out")
	require.NoError(t, err)
	byIndex, err := ex2.ExtractIndex(outIdx)
	require.NoError(t, err)

	va, _ := byName.At(int64(0), int64(0), int64(0))
	vb, _ := byIndex.At(int64(0), int64(0), int64(0))
	require.Equal(t, dtype.ToFloat64(dtype.Float, va), dtype.ToFloat64(dtype.Float, vb))
}

func TestExtractUnknownNameErrors(t *testing.T) {
	n := New()
	require.NoError(t, n.Compile(tinyConvSpecs()))
	ex := n.NewExtractor()
	_, err := ex.Extract("does_not_exist")
	require.Error(t, err)
}
