// Package layer defines the layer contract every
// graph node implements, plus the shared Base embeddable struct
// concrete layers compose to avoid repeating blob-index/name
// bookkeeping.
package layer

import (
	"context"

	"github.com/o9nn/otterengine/pkg/netio"
	"github.com/o9nn/otterengine/pkg/paramdict"
	"github.com/o9nn/otterengine/pkg/tensor"
)

// Layer is the contract every graph node satisfies. ParseParam reads
// the text-format option line; LoadModel reads the binary weight
// stream; InitModel fabricates weights when no stream is supplied
// (tests, from-scratch construction). Forward and ForwardInplace are
// mutually exclusive entry points selected by SupportsInplace: the
// executor calls ForwardInplace only when lightmode has determined the
// input blob is uniquely owned and safe to overwrite.
type Layer interface {
	// Type returns the registry tag this layer was constructed for.
	Type() string
	// Name returns this layer's instance name, as given in the graph.
	Name() string

	// ParseParam interprets the option dict produced by parsing a
	// layer's parameter line.
	ParseParam(pd *paramdict.ParamDict) error

	// ComputeOutputShape derives output shapes from input shapes alone,
	// without touching any tensor data; called once at compile time.
	ComputeOutputShape(inputShapes [][]int64) ([][]int64, error)

	// InitModel fabricates this layer's weights using ini (a
	// rand-backed Initializer) when no weight stream is available.
	InitModel(ini *netio.Initializer) error

	// LoadModel reads this layer's weights positionally off ini (a
	// DataReader-backed Initializer), in the exact order compile
	// assigned them.
	LoadModel(ini *netio.Initializer) error

	// Forward computes this layer's outputs from inputs without
	// mutating them.
	Forward(ctx context.Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)

	// ForwardInplace overwrites inputs with this layer's outputs.
	// Implementations that cannot compute in place return an
	// ottererr.ErrGraphError and report false from SupportsInplace; the
	// executor only calls ForwardInplace when SupportsInplace is true.
	ForwardInplace(ctx context.Context, inputs []*tensor.Tensor) error

	// SupportsInplace reports whether ForwardInplace is meaningful for
	// this layer instance (some layers, e.g. Split, never support it).
	SupportsInplace() bool

	// SetBlobs records the blob indices the graph builder wired this
	// layer to, in declaration order. Called once, right after
	// construction and before ParseParam, so a layer that needs its own
	// fan-in/fan-out counts (e.g. Split sizing its output list) can read
	// them back off Base instead of re-deriving them elsewhere.
	SetBlobs(bottom, top []int)
}

// Base is the embeddable bookkeeping every concrete layer shares: its
// registry type tag, instance name, and the blob indices the graph
// builder wired it to. Concrete layers embed Base and implement the
// remaining Layer methods themselves.
type Base struct {
	LayerType string
	LayerName string
	// BottomBlobs/TopBlobs are indices into the owning graph.Graph's
	// blob table, in declaration order.
	BottomBlobs []int
	TopBlobs    []int
}

func (b *Base) Type() string { return b.LayerType }
func (b *Base) Name() string { return b.LayerName }

// SetBlobs implements Layer.SetBlobs for every concrete layer that
// embeds Base.
func (b *Base) SetBlobs(bottom, top []int) {
	b.BottomBlobs = bottom
	b.TopBlobs = top
}

// Factory constructs a fresh, unconfigured Layer instance for one
// registry type tag.
type Factory func(name string) Layer
