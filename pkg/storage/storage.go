// Package storage implements the reference-counted byte buffer behind
// one or more tensor views. Storage is otherwise opaque: callers reach
// the bytes only through Bytes(), never through a typed accessor —
// tensors access it only through a base pointer.
package storage

import (
	"sync/atomic"

	"github.com/o9nn/otterengine/pkg/dtype"
)

// Allocator abstracts where a Storage's backing bytes come from, so
// the tensor layer never hard-codes make([]byte, n). The zero value of
// Default is a plain heap allocator; Arena (arena.go) is the
// pool-backed alternative.
type Allocator interface {
	Alloc(n int) []byte
}

type heapAllocator struct{}

func (heapAllocator) Alloc(n int) []byte { return make([]byte, n) }

// Default is the ordinary make([]byte, n) allocator.
var Default Allocator = heapAllocator{}

// shared is the reference-counted state multiple Storage handles point
// at. refs is atomic because Storage reference counts must be safe to
// touch from concurrent extractors operating on independent Tensor
// views of the same underlying buffer.
type shared struct {
	data  []byte
	dtype dtype.ScalarType
	refs  atomic.Int32
}

// Storage is a handle onto a shared, reference-counted byte buffer.
// The zero value is not usable; construct with New or NewWithAllocator.
type Storage struct {
	s *shared
}

// New allocates nbytes of storage for dtype dt using the default
// allocator, with an initial reference count of 1.
func New(nbytes int, dt dtype.ScalarType) *Storage {
	return NewWithAllocator(Default, nbytes, dt)
}

// NewWithAllocator is New but lets the caller choose where the bytes
// come from (e.g. an Arena), so storage stays allocator-agnostic.
func NewWithAllocator(alloc Allocator, nbytes int, dt dtype.ScalarType) *Storage {
	s := &shared{data: alloc.Alloc(nbytes), dtype: dt}
	s.refs.Store(1)
	return &Storage{s: s}
}

// FromBytes wraps an existing, already-populated byte slice (used by
// from_blob-style non-owning views and by the data reader/initializer
// when it has already materialized a buffer).
func FromBytes(buf []byte, dt dtype.ScalarType) *Storage {
	s := &shared{data: buf, dtype: dt}
	s.refs.Store(1)
	return &Storage{s: s}
}

// NewReference returns a new handle sharing this Storage's buffer and
// increments the reference count. This is what a tensor view does
// when it is copy-constructed from another view over the same Storage
// (e.g. a reshape or an in-place-safe alias).
func (st *Storage) NewReference() *Storage {
	st.s.refs.Add(1)
	return &Storage{s: st.s}
}

// Release decrements the reference count and drops the backing buffer
// once the last holder has released it. Each handle (the one New
// returned, or one from NewReference) must be released at most once;
// releasing a handle twice double-frees the logical reference and is
// a caller bug — mirrored from the C++ original's manual refcounting discipline.
func (st *Storage) Release() {
	if st == nil || st.s == nil {
		return
	}
	if st.s.refs.Add(-1) == 0 {
		st.s.data = nil
	}
}

// UseCount reports how many live handles share this buffer.
func (st *Storage) UseCount() int {
	if st == nil || st.s == nil {
		return 0
	}
	return int(st.s.refs.Load())
}

// Bytes returns the raw backing buffer. Callers reinterpret it via
// dispatch according to DType().
func (st *Storage) Bytes() []byte {
	if st == nil || st.s == nil {
		return nil
	}
	return st.s.data
}

// NBytes returns the size of the backing buffer in bytes.
func (st *Storage) NBytes() int {
	return len(st.Bytes())
}

// DType reports the element type the storage was allocated for.
func (st *Storage) DType() dtype.ScalarType {
	if st == nil || st.s == nil {
		return dtype.Byte
	}
	return st.s.dtype
}
