// Package tensor implements the strided n-dimensional view over a
// storage.Storage buffer. A Tensor never owns
// bytes itself: it carries a shared *storage.Storage, an element
// offset into it, and the sizes/strides/dtype/memory-format describing
// how to read that buffer. Multiple Tensors may alias the same Storage;
// View aliases it, while Clone (and To, when it cannot alias)
// materializes a fresh buffer.
package tensor

import (
	"fmt"
	"unsafe"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/ottererr"
	"github.com/o9nn/otterengine/pkg/storage"
)

// MemoryFormat records the logical-to-physical axis order a Tensor's
// strides were laid out in. Non-goal: no sparse tensors, no layouts
// beyond the two dense orders actually used by the graph executor's
// NCHW/NHWC-sensitive layers.
type MemoryFormat int

const (
	Contiguous MemoryFormat = iota
	ChannelsLast
	// Preserve is a request passed to To(); To() never returns a Tensor
	// whose MemoryFormatOf() is Preserve. It asks To() to keep the source's current
	// physical layout instead of forcing Contiguous.
	Preserve
)

func (f MemoryFormat) String() string {
	switch f {
	case Contiguous:
		return "Contiguous"
	case ChannelsLast:
		return "ChannelsLast"
	case Preserve:
		return "Preserve"
	default:
		return "MemoryFormat(?)"
	}
}

// Tensor is a strided view: sizes[i]/strides[i] are both in units of
// elements, not bytes. The zero value is the "undefined" sentinel
// tensor (Defined() == false), mirroring otter::Tensor's default
// constructor.
type Tensor struct {
	storage *storage.Storage
	offset  int64 // element offset, not byte offset
	sizes   []int64
	strides []int64
	dt      dtype.ScalarType
	format  MemoryFormat
}

// Defined reports whether t wraps live storage.
func (t *Tensor) Defined() bool {
	return t != nil && t.storage != nil
}

// Reset drops this view's reference, returning t to the undefined
// state. It is idempotent.
func (t *Tensor) Reset() {
	if t == nil || t.storage == nil {
		return
	}
	t.storage.Release()
	t.storage = nil
	t.sizes = nil
	t.strides = nil
	t.offset = 0
}

// DType reports the element type.
func (t *Tensor) DType() dtype.ScalarType { return t.dt }

// MemoryFormatOf reports the layout the strides were last computed for.
func (t *Tensor) MemoryFormatOf() MemoryFormat { return t.format }

// Sizes returns the shape. Callers must not mutate the returned slice.
func (t *Tensor) Sizes() []int64 { return t.sizes }

// Strides returns the per-axis element stride. Callers must not
// mutate the returned slice.
func (t *Tensor) Strides() []int64 { return t.strides }

// Dim reports the number of axes.
func (t *Tensor) Dim() int { return len(t.sizes) }

// Size reports one axis's extent.
func (t *Tensor) Size(dim int) int64 { return t.sizes[dim] }

// IsContiguous reports whether t's strides match the row-major layout
// its sizes would produce fresh from Empty, i.e. whether a caller can
// walk its backing buffer as one flat run rather than per-element.
func (t *Tensor) IsContiguous() bool {
	if !t.Defined() {
		return false
	}
	want := contiguousStrides(t.sizes)
	for i := range want {
		if t.strides[i] != want[i] {
			return false
		}
	}
	return true
}

// Float64Slice reinterprets t's backing storage as a []float64,
// letting a caller hand the buffer directly to a vectorized numeric
// library instead of walking it element by element through At. ok is
// false unless t is a contiguous, zero-offset Double tensor — any
// other dtype or layout falls back to the per-element path.
func (t *Tensor) Float64Slice() (data []float64, ok bool) {
	if !t.Defined() || t.dt != dtype.Double || t.offset != 0 || !t.IsContiguous() {
		return nil, false
	}
	n := int(t.Numel())
	if n == 0 {
		return nil, true
	}
	buf := t.storage.Bytes()
	if len(buf) < n*8 {
		return nil, false
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&buf[0])), n), true
}

// Numel reports the total element count (product of sizes).
func (t *Tensor) Numel() int64 {
	n := int64(1)
	for _, s := range t.sizes {
		n *= s
	}
	return n
}

// UseCount reports how many Tensor views currently share this
// Tensor's backing Storage.
func (t *Tensor) UseCount() int {
	if !t.Defined() {
		return 0
	}
	return t.storage.UseCount()
}

func contiguousStrides(sizes []int64) []int64 {
	strides := make([]int64, len(sizes))
	acc := int64(1)
	for i := len(sizes) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= sizes[i]
	}
	return strides
}

// channelsLastStrides lays out an NCHW-shaped size vector (4 dims) so
// that the channel axis (dim 1) has the smallest stride (NHWC order).
func channelsLastStrides(sizes []int64) []int64 {
	if len(sizes) != 4 {
		return contiguousStrides(sizes)
	}
	_, c, h, w := sizes[0], sizes[1], sizes[2], sizes[3]
	return []int64{c * h * w, 1, w * c, c}
}

func stridesFor(sizes []int64, format MemoryFormat) []int64 {
	if format == ChannelsLast {
		return channelsLastStrides(sizes)
	}
	return contiguousStrides(sizes)
}

func numelOf(sizes []int64) int64 {
	n := int64(1)
	for _, s := range sizes {
		n *= s
	}
	return n
}

// EmptyStrided constructs an uninitialized Tensor with caller-supplied
// strides (element units). len(strides) must equal len(sizes).
func EmptyStrided(sizes, strides []int64, dt dtype.ScalarType) (*Tensor, error) {
	if len(sizes) != len(strides) {
		return nil, fmt.Errorf("%w: %d sizes vs %d strides", ottererr.ErrShapeMismatch, len(sizes), len(strides))
	}
	elemSize := dtype.Size(dt)
	if elemSize == 0 {
		return nil, fmt.Errorf("%w: %v", ottererr.ErrUnsupportedDType, dt)
	}
	n := numelOf(sizes)
	st := storage.New(int(n)*elemSize, dt)
	return &Tensor{
		storage: st,
		sizes:   append([]int64(nil), sizes...),
		strides: append([]int64(nil), strides...),
		dt:      dt,
		format:  Contiguous,
	}, nil
}

// Empty constructs an uninitialized Tensor with contiguous strides, or
// ChannelsLast strides for a 4-D shape if requested.
func Empty(sizes []int64, dt dtype.ScalarType, format MemoryFormat) (*Tensor, error) {
	strides := stridesFor(sizes, format)
	t, err := EmptyStrided(sizes, strides, dt)
	if err != nil {
		return nil, err
	}
	t.format = format
	return t, nil
}

// Zeros is Empty with the buffer zero-filled.
func Zeros(sizes []int64, dt dtype.ScalarType, format MemoryFormat) (*Tensor, error) {
	t, err := Empty(sizes, dt, format)
	if err != nil {
		return nil, err
	}
	buf := t.storage.Bytes()
	for i := range buf {
		buf[i] = 0
	}
	return t, nil
}

// FromBlob wraps an existing byte slice as a non-owning Tensor view:
// the returned Tensor takes a Storage reference over buf without
// copying it, mirroring otter::from_blob. The caller is responsible
// for keeping buf alive at least as long as the Tensor (and any View
// made from it; a Clone copies the bytes and does not need buf).
func FromBlob(buf []byte, sizes []int64, dt dtype.ScalarType) (*Tensor, error) {
	elemSize := dtype.Size(dt)
	if elemSize == 0 {
		return nil, fmt.Errorf("%w: %v", ottererr.ErrUnsupportedDType, dt)
	}
	want := int(numelOf(sizes)) * elemSize
	if len(buf) < want {
		return nil, fmt.Errorf("%w: blob has %d bytes, need %d", ottererr.ErrShapeMismatch, len(buf), want)
	}
	st := storage.FromBytes(buf, dt)
	return &Tensor{
		storage: st,
		sizes:   append([]int64(nil), sizes...),
		strides: contiguousStrides(sizes),
		dt:      dt,
		format:  Contiguous,
	}, nil
}

// elemOffset computes the physical element position of a full index:
// t.offset plus the sum of each coordinate times its stride.
func (t *Tensor) elemOffset(idx []int64) int64 {
	off := t.offset
	for i, v := range idx {
		off += v * t.strides[i]
	}
	return off
}

// At returns the raw bytes backing element idx (a full coordinate, one
// entry per axis), as a Size(dtype)-length slice sharing the
// underlying array — mutate in place to write through.
func (t *Tensor) At(idx ...int64) ([]byte, error) {
	if len(idx) != len(t.sizes) {
		return nil, fmt.Errorf("%w: index has %d dims, tensor has %d", ottererr.ErrShapeMismatch, len(idx), len(t.sizes))
	}
	elemSize := dtype.Size(t.dt)
	byteOff := t.elemOffset(idx) * int64(elemSize)
	buf := t.storage.Bytes()
	return buf[byteOff : byteOff+int64(elemSize) : byteOff+int64(elemSize)], nil
}

// Clone deep-copies into a fresh, contiguous, uniquely-owned Storage
// with the same sizes and dtype. The result's UseCount is always 1.
func (t *Tensor) Clone() (*Tensor, error) {
	out, err := Empty(t.sizes, t.dt, Contiguous)
	if err != nil {
		return nil, err
	}
	elemSize := dtype.Size(t.dt)
	dstBuf := out.storage.Bytes()
	idx := make([]int64, len(t.sizes))
	n := t.Numel()
	for linear := int64(0); linear < n; linear++ {
		unflatten(linear, t.sizes, idx)
		src, err := t.At(idx...)
		if err != nil {
			return nil, err
		}
		dstOff := linear * int64(elemSize)
		copy(dstBuf[dstOff:dstOff+int64(elemSize)], src)
	}
	return out, nil
}

// unflatten decodes a row-major linear index into a per-axis
// coordinate, writing into idx (which must have len(sizes) entries).
func unflatten(linear int64, sizes []int64, idx []int64) {
	for i := len(sizes) - 1; i >= 0; i-- {
		if sizes[i] == 0 {
			idx[i] = 0
			continue
		}
		idx[i] = linear % sizes[i]
		linear /= sizes[i]
	}
}

// Copy_ overwrites t's elements in place with src's, converting dtype
// as needed. Shapes must have equal Numel; broadcasting is not
// supported (spec non-goal: no autograd-driven broadcasting machinery).
// nonBlocking is accepted for interface parity with the original and
// is a no-op here since there is no device transfer to overlap.
func (t *Tensor) Copy_(src *Tensor, nonBlocking bool) error {
	_ = nonBlocking
	if t.Numel() != src.Numel() {
		return fmt.Errorf("%w: dst has %d elements, src has %d", ottererr.ErrShapeMismatch, t.Numel(), src.Numel())
	}
	dstIdx := make([]int64, len(t.sizes))
	srcIdx := make([]int64, len(src.sizes))
	n := t.Numel()
	sameDType := t.dt == src.dt
	for linear := int64(0); linear < n; linear++ {
		unflatten(linear, t.sizes, dstIdx)
		unflatten(linear, src.sizes, srcIdx)
		srcBytes, err := src.At(srcIdx...)
		if err != nil {
			return err
		}
		dstBytes, err := t.At(dstIdx...)
		if err != nil {
			return err
		}
		if sameDType {
			copy(dstBytes, srcBytes)
		} else {
			dtype.FromFloat64(t.dt, dstBytes, dtype.ToFloat64(src.dt, srcBytes))
		}
	}
	return nil
}

// willAlias reports whether To() can return t unchanged rather than
// materializing a new Tensor: a no-op conversion request (same dtype,
// and either the same format or Preserve) never copies.
func (t *Tensor) willAlias(dt dtype.ScalarType, format MemoryFormat, copy bool) bool {
	if copy {
		return false
	}
	if t.dt != dt {
		return false
	}
	if format == Preserve || format == t.format {
		return true
	}
	return false
}

// To converts t to the requested dtype/format, returning t itself
// (not a clone) when willAlias says the conversion is a no-op and
// copy is false. Preserve keeps the source's current physical layout
// instead of forcing Contiguous. nonBlocking is accepted for interface
// parity and is a no-op (no device transfers in this engine).
func (t *Tensor) To(dt dtype.ScalarType, format MemoryFormat, nonBlocking, copyAlways bool) (*Tensor, error) {
	_ = nonBlocking
	if t.willAlias(dt, format, copyAlways) {
		return t, nil
	}
	outFormat := format
	if outFormat == Preserve {
		outFormat = t.format
	}
	out, err := Empty(t.sizes, dt, outFormat)
	if err != nil {
		return nil, err
	}
	if err := out.Copy_(t, false); err != nil {
		return nil, err
	}
	return out, nil
}

// View returns a new Tensor sharing t's Storage (refcount incremented)
// but with independently-reset sizes/strides/offset; used by the
// auto-Split synthesis and by layers that only need a relabeled alias
// of an existing blob.
func (t *Tensor) View(sizes, strides []int64, elemOffset int64) (*Tensor, error) {
	if len(sizes) != len(strides) {
		return nil, fmt.Errorf("%w: %d sizes vs %d strides", ottererr.ErrShapeMismatch, len(sizes), len(strides))
	}
	return &Tensor{
		storage: t.storage.NewReference(),
		offset:  t.offset + elemOffset,
		sizes:   append([]int64(nil), sizes...),
		strides: append([]int64(nil), strides...),
		dt:      t.dt,
		format:  t.format,
	}, nil
}

func (t *Tensor) String() string {
	if !t.Defined() {
		return "Tensor(undefined)"
	}
	return fmt.Sprintf("Tensor(sizes=%v, dtype=%v, format=%v)", t.sizes, t.dt, t.format)
}
