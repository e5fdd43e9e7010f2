// Package graph builds the blob/layer graph an Extractor walks: from
// a list of layer specifications naming their input
// and output blobs by string, turned into an ordered list of
// executable Nodes plus a Blob table with producer/consumer census,
// auto-inserted Split nodes wherever a blob feeds more than one
// consumer, and shape propagation via each layer's
// ComputeOutputShape.
package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/o9nn/otterengine/pkg/layer"
	"github.com/o9nn/otterengine/pkg/layer/registry"
	"github.com/o9nn/otterengine/pkg/layer/split"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/paramdict"
)

// LayerSpec is one line of the text-format network description: a
// registry type tag, an instance name, the blob names it consumes and
// produces, and its option dict.
//
// BatchNorm and Activation carry the fused attachments a single line
// of the original format can declare alongside a layer's own options:
// if BatchNorm is non-nil, Build synthesizes a separate BatchNorm node
// named bn_<name> reading this layer's output; if Activation is
// non-empty, Build synthesizes a node of that registry type tag named
// <lowercased tag>_<name>, chained after any BatchNorm attachment. Either
// synthesized node's output takes over this layer's original output
// blob name, so downstream consumers need no rewiring.
type LayerSpec struct {
	Type    string
	Name    string
	Inputs  []string
	Outputs []string
	Params  *paramdict.ParamDict

	BatchNorm        *paramdict.ParamDict
	Activation       string
	ActivationParams *paramdict.ParamDict

	// fusedBatchNorm survives expandFusedAttachments on the original
	// layer's surviving spec (BatchNorm itself is consumed into a
	// separate synthesized spec), so Build can still tell a
	// FusionAware layer that a BatchNorm was fused onto its output.
	fusedBatchNorm bool
}

// FusionAware is implemented by layers whose parsed defaults depend on
// whether the graph builder is about to fuse a BatchNorm directly onto
// their output (Convolution's bias_term default flips when fused).
// Build calls SetBatchNormFused before ParseParam whenever a spec
// carries a BatchNorm attachment.
type FusionAware interface {
	SetBatchNormFused(fused bool)
}

// Blob tracks one named value flowing through the graph: which node
// produced it (-1 for a graph input with no producer) and every node
// that consumes it.
type Blob struct {
	Name      string
	Producer  int
	Consumers []int
	Shape     []int64
}

// Node is one compiled graph step: a live Layer plus the blob indices
// it reads and writes, in ParseParam/ComputeOutputShape order.
type Node struct {
	Layer   layer.Layer
	Inputs  []int
	Outputs []int
	// Fused records that this node's sole output is exclusively
	// consumed by a single BatchNorm or ReLU node (e.g. the chain a
	// fused Convolution spec expands into), so lightmode's normal
	// release-after-last-consumer rule already frees the intermediate
	// blob the moment this node's consumer finishes — Fused is
	// diagnostic metadata, not a distinct execution path.
	Fused bool
}

// Graph is a compiled network: an ordered Node list plus the Blob
// table Build assembled from the LayerSpecs.
type Graph struct {
	Blobs       []*Blob
	Nodes       []*Node
	blobIndex   map[string]int
	InputBlobs  []int
	OutputBlobs []int
}

func (g *Graph) blob(name string) (int, bool) {
	idx, ok := g.blobIndex[name]
	return idx, ok
}

func (g *Graph) newBlob(name string) int {
	idx := len(g.Blobs)
	g.Blobs = append(g.Blobs, &Blob{Name: name, Producer: -1})
	g.blobIndex[name] = idx
	return idx
}

// normalizeNames applies the name-default rules every spec line gets
// before wiring: an absent name becomes the decimal index, an absent
// output list becomes the name itself, and an absent input list (for
// every spec after the first) becomes the previous spec's first output.
func normalizeNames(specs []LayerSpec) []LayerSpec {
	out := make([]LayerSpec, len(specs))
	var prevOutput string
	for i, s := range specs {
		if s.Name == "" {
			s.Name = strconv.Itoa(i)
		}
		if len(s.Outputs) == 0 {
			s.Outputs = []string{s.Name}
		}
		if len(s.Inputs) == 0 && i > 0 {
			s.Inputs = []string{prevOutput}
		}
		out[i] = s
		prevOutput = s.Outputs[0]
	}
	return out
}

// expandFusedAttachments rewrites each spec carrying a BatchNorm
// and/or Activation attachment into two or three separate specs: the
// original layer, then the synthesized BatchNorm, then the synthesized
// activation. Each synthesized spec's name follows the bn_<name>/
// <lowercased tag>_<name> convention; internal links between the chain use a
// private blob name, while the last node in the chain reclaims the
// original spec's public output name so nothing downstream needs to
// change.
func expandFusedAttachments(specs []LayerSpec) ([]LayerSpec, error) {
	out := make([]LayerSpec, 0, len(specs))
	for _, s := range specs {
		if s.BatchNorm == nil && s.Activation == "" {
			out = append(out, s)
			continue
		}
		if len(s.Outputs) != 1 {
			return nil, fmt.Errorf("%w: layer %q has a batchnorm/activation attachment but does not have exactly one output", ottererr.ErrGraphError, s.Name)
		}
		publicName := s.Outputs[0]

		type link struct {
			typeName string
			name     string
			params   *paramdict.ParamDict
		}
		var chain []link
		if s.BatchNorm != nil {
			chain = append(chain, link{"BatchNorm", "bn_" + s.Name, s.BatchNorm})
		}
		if s.Activation != "" {
			actParams := s.ActivationParams
			if actParams == nil {
				actParams = paramdict.New()
			}
			chain = append(chain, link{s.Activation, strings.ToLower(s.Activation) + "_" + s.Name, actParams})
		}

		base := s
		base.fusedBatchNorm = s.BatchNorm != nil
		base.BatchNorm, base.Activation, base.ActivationParams = nil, "", nil
		base.Outputs = []string{fmt.Sprintf("%s_fused0", s.Name)}
		out = append(out, base)

		prev := base.Outputs[0]
		for i, l := range chain {
			outName := publicName
			if i != len(chain)-1 {
				outName = fmt.Sprintf("%s_fused%d", s.Name, i+1)
			}
			out = append(out, LayerSpec{
				Type:    l.typeName,
				Name:    l.name,
				Inputs:  []string{prev},
				Outputs: []string{outName},
				Params:  l.params,
			})
			prev = outName
		}
	}
	return out, nil
}

// Build compiles specs into a Graph. Build always recomputes
// consume-name state fresh from specs: it never mutates or reuses a
// Graph from a previous call, so the same specs always produce the
// same compiled graph regardless of how many times Build has run.
func Build(specs []LayerSpec) (*Graph, error) {
	specs = normalizeNames(specs)
	specs, err := expandFusedAttachments(specs)
	if err != nil {
		return nil, err
	}

	g := &Graph{blobIndex: map[string]int{}}

	for ni, spec := range specs {
		n := &Node{}
		for _, inName := range spec.Inputs {
			idx, ok := g.blob(inName)
			if !ok {
				return nil, fmt.Errorf("%w: layer %q references unknown input blob %q", ottererr.ErrGraphError, spec.Name, inName)
			}
			g.Blobs[idx].Consumers = append(g.Blobs[idx].Consumers, ni)
			n.Inputs = append(n.Inputs, idx)
		}
		for _, outName := range spec.Outputs {
			if _, exists := g.blob(outName); exists {
				return nil, fmt.Errorf("%w: blob %q produced more than once", ottererr.ErrGraphError, outName)
			}
			idx := g.newBlob(outName)
			g.Blobs[idx].Producer = ni
			n.Outputs = append(n.Outputs, idx)
		}

		l, err := registry.Create(spec.Type, spec.Name)
		if err != nil {
			return nil, err
		}
		if spec.fusedBatchNorm {
			if fa, ok := l.(FusionAware); ok {
				fa.SetBatchNormFused(true)
			}
		}
		l.SetBlobs(n.Inputs, n.Outputs)
		if err := l.ParseParam(spec.Params); err != nil {
			return nil, fmt.Errorf("layer %q: %w", spec.Name, err)
		}
		n.Layer = l
		g.Nodes = append(g.Nodes, n)
	}

	if err := g.insertAutoSplits(); err != nil {
		return nil, err
	}
	g.markFusedActivations()
	if err := g.propagateShapes(); err != nil {
		return nil, err
	}
	g.classifyInputsOutputs()
	return g, nil
}

// insertAutoSplits rewrites the node list so every blob with more than
// one consumer is fanned out through a synthesized Split node inserted
// immediately after its producer. The Split layer is named
// auto_sp_<producerBlobIndex>; each branch output is named
// asp_<producerBlobIndex>_<consumerOrdinal>, and each original
// consumer's Inputs entry is rewired from the shared blob to its
// dedicated branch. Producer/Consumers bookkeeping is rebuilt from
// scratch afterward rather than patched incrementally, since inserting
// nodes mid-list shifts every later node's index.
func (g *Graph) insertAutoSplits() error {
	oldNodes := g.Nodes
	type key struct{ blob, consumer int }
	branchFor := map[key]int{}

	newNodes := make([]*Node, 0, len(oldNodes))
	for _, n := range oldNodes {
		newNodes = append(newNodes, n)
		for _, outIdx := range n.Outputs {
			b := g.Blobs[outIdx]
			if len(b.Consumers) <= 1 {
				continue
			}
			splitLayer, err := registry.Create(split.TypeName, fmt.Sprintf("auto_sp_%d", outIdx))
			if err != nil {
				return err
			}
			sn := &Node{Layer: splitLayer, Inputs: []int{outIdx}}
			for j, consumerOldIdx := range b.Consumers {
				branchName := fmt.Sprintf("asp_%d_%d", outIdx, j)
				branchIdx := g.newBlob(branchName)
				sn.Outputs = append(sn.Outputs, branchIdx)
				branchFor[key{outIdx, consumerOldIdx}] = branchIdx
			}
			sn.Layer.SetBlobs(sn.Inputs, sn.Outputs)
			newNodes = append(newNodes, sn)
		}
	}

	for consumerOldIdx, n := range oldNodes {
		for pos, inIdx := range n.Inputs {
			if branchIdx, ok := branchFor[key{inIdx, consumerOldIdx}]; ok {
				n.Inputs[pos] = branchIdx
			}
		}
	}

	g.Nodes = newNodes
	g.rebuildProducerConsumers()
	return nil
}

func (g *Graph) rebuildProducerConsumers() {
	for _, b := range g.Blobs {
		b.Producer = -1
		b.Consumers = nil
	}
	for nodeIdx, n := range g.Nodes {
		for _, outIdx := range n.Outputs {
			g.Blobs[outIdx].Producer = nodeIdx
		}
		for _, inIdx := range n.Inputs {
			g.Blobs[inIdx].Consumers = append(g.Blobs[inIdx].Consumers, nodeIdx)
		}
	}
}

// markFusedActivations tags a node whose single output blob is
// consumed exclusively by one BatchNorm or activation layer.
func (g *Graph) markFusedActivations() {
	for _, n := range g.Nodes {
		if len(n.Outputs) != 1 {
			continue
		}
		b := g.Blobs[n.Outputs[0]]
		if len(b.Consumers) != 1 {
			continue
		}
		consumer := g.Nodes[b.Consumers[0]]
		switch consumer.Layer.Type() {
		case "BatchNorm", "ReLU":
			n.Fused = true
		}
	}
}

func (g *Graph) propagateShapes() error {
	for _, n := range g.Nodes {
		inShapes := make([][]int64, len(n.Inputs))
		for i, idx := range n.Inputs {
			inShapes[i] = g.Blobs[idx].Shape
		}
		outShapes, err := n.Layer.ComputeOutputShape(inShapes)
		if err != nil {
			return fmt.Errorf("layer %q: %w", n.Layer.Name(), err)
		}
		if len(outShapes) != len(n.Outputs) {
			return fmt.Errorf("%w: layer %q produced %d shapes for %d outputs", ottererr.ErrShapeMismatch, n.Layer.Name(), len(outShapes), len(n.Outputs))
		}
		for i, idx := range n.Outputs {
			g.Blobs[idx].Shape = outShapes[i]
		}
	}
	return nil
}

func (g *Graph) classifyInputsOutputs() {
	g.InputBlobs = g.InputBlobs[:0]
	g.OutputBlobs = g.OutputBlobs[:0]
	for idx, b := range g.Blobs {
		if b.Producer < 0 {
			g.InputBlobs = append(g.InputBlobs, idx)
		}
		if len(b.Consumers) == 0 {
			g.OutputBlobs = append(g.OutputBlobs, idx)
		}
	}
}

// BlobIndex looks up a blob by name.
func (g *Graph) BlobIndex(name string) (int, error) {
	idx, ok := g.blob(name)
	if !ok {
		return 0, fmt.Errorf("%w: no blob named %q", ottererr.ErrGraphError, name)
	}
	return idx, nil
}

// Summary renders a human-readable layout of the compiled graph, in
// the spirit of a framework's network-summary debug print.
func (g *Graph) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph: %d blobs, %d nodes\n", len(g.Blobs), len(g.Nodes))
	for i, n := range g.Nodes {
		fused := ""
		if n.Fused {
			fused = " (fused)"
		}
		fmt.Fprintf(&sb, "  [%d] %s %q in=%v out=%v%s\n", i, n.Layer.Type(), n.Layer.Name(), n.Inputs, n.Outputs, fused)
	}
	for _, idx := range g.OutputBlobs {
		fmt.Fprintf(&sb, "  output blob %q shape=%v\n", g.Blobs[idx].Name, g.Blobs[idx].Shape)
	}
	return sb.String()
}
