// Package net implements the compiled network and its per-call
// extractor: Net owns a compiled graph.Graph and loads its weights
// once; Extractor walks that graph on demand,
// recursively forcing each consumed blob's producer to run before
// reading it, and — in lightmode — releasing an intermediate blob's
// storage the moment its last consumer has read it. A single
// Extractor is not safe for concurrent use (its blob cache and
// remaining-consumer counters are unsynchronized instance state); call
// Net.NewExtractor per concurrent caller instead.
package net

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/o9nn/otterengine/pkg/graph"
	"github.com/o9nn/otterengine/pkg/netio"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/parallel"
	"github.com/o9nn/otterengine/pkg/tensor"
	"go.uber.org/zap"
)

// Option configures a Net at construction.
type Option func(*Net)

// WithEngine overrides the default parallel engine.
func WithEngine(eng *parallel.Engine) Option {
	return func(n *Net) { n.engine = eng }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Net) { n.logger = l }
}

// WithLightMode toggles eager intermediate-blob release (on by
// default, matching the original's light_mode default).
func WithLightMode(enabled bool) Option {
	return func(n *Net) { n.lightMode = enabled }
}

// Net is a compiled network ready to be extracted from. Its graph and
// weights are immutable after Compile/LoadWeights return, so the same
// Net can back any number of concurrent Extractors.
type Net struct {
	graph     *graph.Graph
	engine    *parallel.Engine
	logger    *zap.Logger
	lightMode bool
	version   netio.Version
}

// New builds an unconfigured Net; call Compile next.
func New(opts ...Option) *Net {
	n := &Net{
		engine:    parallel.NewEngine(0),
		logger:    zap.NewNop(),
		lightMode: true,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Compile builds the blob/layer graph from specs. It must be called
// exactly once before LoadWeights/InitRandomWeights/NewExtractor.
func (n *Net) Compile(specs []graph.LayerSpec) error {
	g, err := graph.Build(specs)
	if err != nil {
		return err
	}
	n.graph = g
	n.logger.Debug("compiled graph", zap.Int("blobs", len(g.Blobs)), zap.Int("nodes", len(g.Nodes)))
	return nil
}

// Graph exposes the compiled graph for diagnostics (e.g. Summary()).
func (n *Net) Graph() *graph.Graph { return n.graph }

// LoadWeights reads the 8-byte version banner then each node's
// weights positionally, in compiled node order.
func (n *Net) LoadWeights(r netio.DataReader) error {
	if n.graph == nil {
		return fmt.Errorf("%w: Compile must run before LoadWeights", ottererr.ErrGraphError)
	}
	v, err := netio.ReadVersion(r)
	if err != nil {
		return err
	}
	n.version = v
	n.logger.Info(fmt.Sprintf("Model: %s", v))

	ini := netio.FromDataReader(r)
	for _, node := range n.graph.Nodes {
		if err := node.Layer.LoadModel(ini); err != nil {
			return fmt.Errorf("layer %q: %w", node.Layer.Name(), err)
		}
	}
	return nil
}

// InitRandomWeights fabricates every node's weights from a seeded rng,
// bypassing LoadWeights entirely (used by tests and from-scratch
// construction with no weight file).
func (n *Net) InitRandomWeights(seed int64) error {
	if n.graph == nil {
		return fmt.Errorf("%w: Compile must run before InitRandomWeights", ottererr.ErrGraphError)
	}
	ini := netio.FromRand(rand.New(rand.NewSource(seed)))
	for _, node := range n.graph.Nodes {
		if err := node.Layer.InitModel(ini); err != nil {
			return fmt.Errorf("layer %q: %w", node.Layer.Name(), err)
		}
	}
	return nil
}

// Version reports the weight stream's (major, minor) banner, valid
// after LoadWeights.
func (n *Net) Version() netio.Version { return n.version }

// NewExtractor returns a fresh, independently-stated walker over n's
// compiled graph.
func (n *Net) NewExtractor() *Extractor {
	remaining := make([]int, len(n.graph.Blobs))
	for i, b := range n.graph.Blobs {
		remaining[i] = len(b.Consumers)
	}
	return &Extractor{
		net:       n,
		id:        uuid.New(),
		blobs:     make(map[int]*tensor.Tensor),
		remaining: remaining,
		done:      make([]bool, len(n.graph.Nodes)),
		visiting:  make([]bool, len(n.graph.Nodes)),
	}
}

// Extractor walks one compiled Net's graph for one forward pass. Not
// safe for concurrent use; create one Extractor per concurrent caller.
// Each Extractor carries its own session id so that diagnostics from
// overlapping extractors over the same Net can be told apart.
type Extractor struct {
	net       *Net
	id        uuid.UUID
	blobs     map[int]*tensor.Tensor
	remaining []int
	done      []bool
	visiting  []bool
}

// SessionID identifies this Extractor's forward pass in logs.
func (e *Extractor) SessionID() uuid.UUID { return e.id }

// Input feeds t in as the named graph-input blob's value.
func (e *Extractor) Input(name string, t *tensor.Tensor) error {
	idx, err := e.net.graph.BlobIndex(name)
	if err != nil {
		return err
	}
	return e.InputIndex(idx, t)
}

// InputIndex feeds t in as blob idx's value. The extractor holds its
// own view of t's storage, so lightmode releasing the slot drops only
// that reference and leaves the caller's t intact.
func (e *Extractor) InputIndex(idx int, t *tensor.Tensor) error {
	if idx < 0 || idx >= len(e.net.graph.Blobs) {
		return fmt.Errorf("%w: blob index %d out of range", ottererr.ErrGraphError, idx)
	}
	if t.Defined() {
		v, err := t.View(t.Sizes(), t.Strides(), 0)
		if err != nil {
			return err
		}
		t = v
	}
	e.blobs[idx] = t
	if producer := e.net.graph.Blobs[idx].Producer; producer >= 0 {
		e.done[producer] = true
	}
	return nil
}

// Extract returns the named blob's value, computing every producer
// needed to reach it first.
func (e *Extractor) Extract(name string) (*tensor.Tensor, error) {
	idx, err := e.net.graph.BlobIndex(name)
	if err != nil {
		return nil, err
	}
	return e.ExtractIndex(idx)
}

// ExtractIndex is Extract by blob index instead of name.
func (e *Extractor) ExtractIndex(idx int) (*tensor.Tensor, error) {
	if idx < 0 || idx >= len(e.net.graph.Blobs) {
		return nil, fmt.Errorf("%w: blob index %d out of range", ottererr.ErrGraphError, idx)
	}
	ctx := parallel.WithEngine(context.Background(), e.net.engine)
	e.net.logger.Debug("extract",
		zap.String("session", e.id.String()),
		zap.String("blob", e.net.graph.Blobs[idx].Name),
	)
	if err := e.ensureBlob(ctx, idx); err != nil {
		return nil, err
	}
	t, ok := e.blobs[idx]
	if !ok {
		return nil, fmt.Errorf("%w: blob %q was released before extraction completed", ottererr.ErrGraphError, e.net.graph.Blobs[idx].Name)
	}
	return t, nil
}

func (e *Extractor) ensureBlob(ctx context.Context, idx int) error {
	if _, ok := e.blobs[idx]; ok {
		return nil
	}
	producer := e.net.graph.Blobs[idx].Producer
	if producer < 0 {
		return fmt.Errorf("%w: input blob %q was never fed via Extractor.Input", ottererr.ErrGraphError, e.net.graph.Blobs[idx].Name)
	}
	return e.runNode(ctx, producer)
}

func (e *Extractor) runNode(ctx context.Context, nodeIdx int) error {
	if e.done[nodeIdx] {
		return nil
	}
	if e.visiting[nodeIdx] {
		return fmt.Errorf("%w: cycle detected at layer %q", ottererr.ErrGraphError, e.net.graph.Nodes[nodeIdx].Layer.Name())
	}
	e.visiting[nodeIdx] = true
	defer func() { e.visiting[nodeIdx] = false }()

	node := e.net.graph.Nodes[nodeIdx]
	for _, inIdx := range node.Inputs {
		if err := e.ensureBlob(ctx, inIdx); err != nil {
			return err
		}
	}

	inputs := make([]*tensor.Tensor, len(node.Inputs))
	for i, inIdx := range node.Inputs {
		inputs[i] = e.blobs[inIdx]
	}

	inPlace := e.net.lightMode &&
		len(node.Inputs) == 1 &&
		node.Layer.SupportsInplace() &&
		e.remaining[node.Inputs[0]] == 1 &&
		inputs[0].UseCount() == 1

	var outputs []*tensor.Tensor
	if inPlace {
		if err := node.Layer.ForwardInplace(ctx, inputs); err != nil {
			return err
		}
		outputs = inputs
	} else {
		out, err := node.Layer.Forward(ctx, inputs)
		if err != nil {
			return err
		}
		outputs = out
	}

	if len(outputs) != len(node.Outputs) {
		return fmt.Errorf("%w: layer %q produced %d outputs, graph wants %d", ottererr.ErrGraphError, node.Layer.Name(), len(outputs), len(node.Outputs))
	}
	for i, outIdx := range node.Outputs {
		e.blobs[outIdx] = outputs[i]
	}

	for _, inIdx := range node.Inputs {
		e.remaining[inIdx]--
		if !e.net.lightMode || e.remaining[inIdx] > 0 {
			continue
		}
		if inPlace && inIdx == node.Inputs[0] {
			// The input tensor lives on as this node's output; dropping
			// the input-side map entry without releasing keeps it alive.
			delete(e.blobs, inIdx)
			continue
		}
		if t, ok := e.blobs[inIdx]; ok {
			t.Reset()
			delete(e.blobs, inIdx)
		}
	}

	e.done[nodeIdx] = true
	return nil
}

// LiveBlobs reports how many blob slots are currently materialized,
// for lightmode memory-release tests/diagnostics.
func (e *Extractor) LiveBlobs() int {
	return len(e.blobs)
}
